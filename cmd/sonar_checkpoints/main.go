// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sonar_checkpoints reports on, and edits, checkpoints saved by sonar_train.
//
// Examples:
//
//	sonar_checkpoints -summary experiments/best.ckpt experiments/model.ckpt
//	sonar_checkpoints -vars -history experiments/model.ckpt
//	sonar_checkpoints -perturb=0.01 -clear_optimizer experiments/model.ckpt
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/sonar/pkg/ml/checkpoints"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", false, "Display a summary of each checkpoint: epoch, best validation loss, "+
		"optimizer step and the model sizes.")
	flagHistory  = flag.Bool("history", false, "Lists the metrics of every epoch recorded in the checkpoint.")
	flagGlossary = flag.Bool("glossary", true, "Whether to list a glossary of the abbreviations used in the reports.")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	sectionStyle  = lipgloss.NewStyle().Bold(true)
	emphasisStyle = lipgloss.NewStyle().Bold(true)
	italicStyle   = lipgloss.NewStyle().Italic(true).Faint(true)
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		klog.Errorf("Missing checkpoint file to read from. See 'sonar_checkpoints -help'")
		os.Exit(1)
	}
	if (*flagPerturbVars != 0 || *flagClearOptimizer) && len(paths) > 1 {
		klog.Errorf("Only one checkpoint can be modified at a time, got %d. See 'sonar_checkpoints -help'.", len(paths))
		os.Exit(1)
	}
	if *flagPerturbVars != 0 {
		must.M(PerturbVars(paths[0], *flagPerturbVars, *flagPerturbSeed))
	}
	if *flagClearOptimizer {
		must.M(ClearOptimizer(paths[0]))
	}

	if !*flagSummary && !*flagVars && !*flagHistory {
		return
	}
	ckpts := make([]*checkpoints.Checkpoint, len(paths))
	for ii, path := range paths {
		ckpts[ii] = must.M1(checkpoints.Load(path))
	}
	if *flagSummary {
		Summary(ckpts, paths)
	}
	for ii, ckpt := range ckpts {
		if *flagVars {
			ListVariables(ckpt, paths[ii])
		}
		if *flagHistory {
			fmt.Println(titleStyle.Render(fmt.Sprintf("History of %q", paths[ii])))
			fmt.Println(commandline.SprintHistory(ckpt.History))
		}
	}
}
