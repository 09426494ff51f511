// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sonar_prepare splits the raw sonar data into stratified train and test sets, saved as
// X_train.csv, y_train.csv, X_test.csv and y_test.csv.
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sonar/internal/config"
	"github.com/gomlx/sonar/pkg/ml/datasets"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "", "YAML configuration file. If empty, the default configuration is used.")
	flagData   = flag.String("data", "", "Raw sonar CSV file. Defaults to the configured data.raw.")
	flagOut    = flag.String("out", "", "Directory where to write the split. Defaults to the configured data.dir.")
)

func main() {
	settings := commandline.CreateSettingsFlag(config.Default(), "")
	klog.InitFlags(nil)
	flag.Parse()
	cfg, _ := must.M2(config.LoadWithSettings(*flagConfig, *settings))
	err := exceptions.TryCatch[error](func() { prepare(cfg) })
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func prepare(cfg *config.Config) {
	rawPath := cfg.Data.Raw
	if *flagData != "" {
		rawPath = *flagData
	}
	outDir := cfg.Data.Dir
	if *flagOut != "" {
		outDir = *flagOut
	}
	rawPath = fsutil.MustReplaceTildeInDir(rawPath)
	outDir = fsutil.MustReplaceTildeInDir(outDir)

	data := must.M1(datasets.LoadSonarCSV(rawPath))
	fmt.Printf("Loaded %d examples from %q: %s\n", data.NumExamples(), rawPath,
		datasets.FormatDistribution(datasets.ClassDistribution(data.Labels)))
	split := must.M1(datasets.StratifiedSplit(data, cfg.Data.TestSize, cfg.Seed))
	must.M(datasets.SaveSplit(outDir, split))
	fmt.Printf("Train: %d examples (%s)\n", split.Train.NumExamples(),
		datasets.FormatDistribution(datasets.ClassDistribution(split.Train.Labels)))
	fmt.Printf("Test:  %d examples (%s)\n", split.Test.NumExamples(),
		datasets.FormatDistribution(datasets.ClassDistribution(split.Test.Labels)))
	fmt.Printf("Split saved to %q\n", outDir)
}
