// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sonar_train trains the sonar classifier on the split prepared by sonar_prepare, and saves the
// final state to the configured model path.
//
// Example:
//
//	sonar_train -config=sonar.yaml -set="epochs=200;learning_rate=0.002" -resume=experiments/best.ckpt
package main

import (
	"flag"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sonar/internal/config"
	"github.com/gomlx/sonar/pkg/ml/datasets"
	"github.com/gomlx/sonar/pkg/ml/models/mlp"
	"github.com/gomlx/sonar/pkg/ml/train"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagConfig   = flag.String("config", "", "YAML configuration file. If empty, the default configuration is used.")
	flagResume   = flag.String("resume", "", "Checkpoint to load before training. Training continues from its epoch.")
	flagProgress = flag.Bool("progress", true, "Display a progress bar while training.")
	flagEval     = flag.Bool("eval", true, "Whether to evaluate the model on the train and test data in the end.")
	flagHistory  = flag.Bool("history", false, "Print the metrics of every epoch in the end.")
)

func main() {
	settings := commandline.CreateSettingsFlag(config.Default(), "")
	klog.InitFlags(nil)
	flag.Parse()
	cfg, paramsSet := must.M2(config.LoadWithSettings(*flagConfig, *settings))
	if len(paramsSet) > 0 {
		klog.Infof("Parameters set:\n%s", commandline.SprintModifiedSettings(cfg, paramsSet))
	}
	err := exceptions.TryCatch[error](func() { trainModel(cfg) })
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func trainModel(cfg *config.Config) {
	split := must.M1(datasets.LoadSplit(fsutil.MustReplaceTildeInDir(cfg.Data.Dir), cfg.Model.InputSize))
	trainDS := must.M1(datasets.InMemoryFromData("train", split.Train)).BatchSize(cfg.Data.BatchSize)
	if cfg.Data.Shuffle {
		trainDS.Shuffle(cfg.Seed)
	}
	trainEvalDS := must.M1(datasets.InMemoryFromData("train-eval", split.Train)).BatchSize(cfg.Data.BatchSize)
	testDS := must.M1(datasets.InMemoryFromData("test", split.Test)).BatchSize(cfg.Data.BatchSize)

	model := must.M1(mlp.New(cfg.Model, cfg.Seed))
	optimizer := must.M1(cfg.NewOptimizer())
	trainCfg := cfg.Train
	trainCfg.BestSavePath = fsutil.MustReplaceTildeInDir(trainCfg.BestSavePath)
	trainCfg.PeriodicSavePath = fsutil.MustReplaceTildeInDir(trainCfg.PeriodicSavePath)
	trainer := must.M1(train.NewTrainer(model, optimizer, trainCfg))
	if *flagResume != "" {
		must.M(trainer.Load(fsutil.MustReplaceTildeInDir(*flagResume)))
		fmt.Printf("Resuming from %q at epoch %d\n", *flagResume, trainer.Epoch())
	}
	trainer.OnCheckpoint("report", 0, func(_ *train.Trainer, kind train.CheckpointKind, path string) error {
		klog.V(1).Infof("%s checkpoint saved to %q", kind, path)
		return nil
	})

	numEpochs := trainCfg.Epochs - trainer.Epoch()
	if numEpochs <= 0 {
		fmt.Printf("Model already trained for %d epochs (>= %d configured)\n", trainer.Epoch(), trainCfg.Epochs)
	} else {
		if *flagProgress {
			stop := commandline.AttachProgressBar(trainer)
			defer stop()
		}
		must.M(trainer.RunEpochs(trainDS, testDS, numEpochs))
	}

	if cfg.Checkpoint.ModelPath != "" {
		modelPath := fsutil.MustReplaceTildeInDir(cfg.Checkpoint.ModelPath)
		must.M(trainer.Save(modelPath))
		fmt.Printf("Model saved to %q\n", modelPath)
	}
	if *flagHistory {
		commandline.ReportHistory(trainer.History())
	}
	if *flagEval {
		must.M(commandline.ReportEval(trainer, trainEvalDS, testDS))
	}
}
