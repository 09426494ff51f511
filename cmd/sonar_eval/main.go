// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sonar_eval runs the functional tests (JSON files with examples and their expected labels) on the
// trained model, and records each run as an experiment.
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sonar/internal/config"
	"github.com/gomlx/sonar/pkg/ml/experiments"
	"github.com/gomlx/sonar/pkg/ml/models/mlp"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "YAML configuration file. If empty, the default configuration is used.")
	flagModel  = flag.String("model", "", "Checkpoint with the model to test. Defaults to the configured checkpoint.model_path.")
	flagTests  = flag.String("tests", "", "Directory with the functional tests (*.json). Defaults to the configured data.tests_dir.")
)

// ModelName recorded in the experiments.
const ModelName = "mlp"

func main() {
	settings := commandline.CreateSettingsFlag(config.Default(), "")
	klog.InitFlags(nil)
	flag.Parse()
	cfg, _ := must.M2(config.LoadWithSettings(*flagConfig, *settings))
	err := exceptions.TryCatch[error](func() { evaluate(cfg) })
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func evaluate(cfg *config.Config) {
	modelPath := cfg.Checkpoint.ModelPath
	if *flagModel != "" {
		modelPath = *flagModel
	}
	testsDir := cfg.Data.TestsDir
	if *flagTests != "" {
		testsDir = *flagTests
	}
	model := must.M1(mlp.Load(cfg.Model, fsutil.MustReplaceTildeInDir(modelPath)))
	testCases := must.M1(experiments.LoadTestCases(fsutil.MustReplaceTildeInDir(testsDir)))
	runner := &experiments.Runner{
		Model:       model,
		ModelName:   ModelName,
		ModelParams: cfg.Model,
		Dir:         fsutil.MustReplaceTildeInDir(cfg.Data.ExperimentsDir),
		LogPath:     fsutil.MustReplaceTildeInDir(cfg.Data.LogFile),
	}
	results := must.M1(runner.RunAll(testCases))
	for _, result := range results {
		fmt.Printf("%s passed test %s: accuracy=%s, macro F1=%s (%s)\n", ModelName, result.Record.Test,
			result.Record.Accuracy, result.Record.MacroF1, result.Dir)
	}
}
