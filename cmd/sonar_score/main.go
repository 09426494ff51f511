// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// sonar_score scores the feature rows of the database that have no prediction yet, and stores
// the predictions back in the database.
//
// Example, with a local SQLite database:
//
//	sonar_score -set="" -driver=sqlite -dsn=scores.db -init_schema -import=data/X_test.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/sonar/internal/config"
	"github.com/gomlx/sonar/pkg/ml/datasets"
	"github.com/gomlx/sonar/pkg/ml/models/mlp"
	"github.com/gomlx/sonar/pkg/ml/scoring"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagConfig     = flag.String("config", "", "YAML configuration file. If empty, the default configuration is used.")
	flagModel      = flag.String("model", "", "Checkpoint with the model. Defaults to the configured checkpoint.model_path.")
	flagDriver     = flag.String("driver", "", `Database driver, "pgx" or "sqlite". Defaults to the configured scoring.driver.`)
	flagDSN        = flag.String("dsn", "", "Database data source name. Defaults to one built from the scoring configuration.")
	flagInitSchema = flag.Bool("init_schema", false, "Create the frequencies and predictions tables, if they don't exist.")
	flagPrintSQL   = flag.Bool("print_schema", false, "Print the statements that create the tables and exit.")
	flagImport     = flag.String("import", "", "CSV file with feature rows (no header) to import before scoring.")
	flagScore      = flag.Bool("score", true, "Score the unscored rows.")
)

func main() {
	settings := commandline.CreateSettingsFlag(config.Default(), "")
	klog.InitFlags(nil)
	flag.Parse()
	cfg, _ := must.M2(config.LoadWithSettings(*flagConfig, *settings))
	if *flagDriver != "" {
		cfg.Scoring.Driver = *flagDriver
	}
	if *flagDSN != "" {
		cfg.Scoring.DSN = *flagDSN
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := exceptions.TryCatch[error](func() { score(ctx, cfg) })
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

func score(ctx context.Context, cfg *config.Config) {
	dialect := must.M1(scoring.DialectFromDriver(cfg.Scoring.Driver))
	if *flagPrintSQL {
		for _, stmt := range scoring.NewSQLStore(nil, dialect, cfg.Model.InputSize).SchemaSQL() {
			fmt.Printf("%s;\n\n", stmt)
		}
		return
	}
	store := must.M1(scoring.OpenSQLStore(ctx, dialect, cfg.ScoringDSN(), cfg.Model.InputSize))
	defer func() { must.M(store.Close()) }()
	if *flagInitSchema {
		must.M(store.CreateSchema(ctx))
	}
	if *flagImport != "" {
		features := must.M1(datasets.LoadFeaturesCSV(fsutil.MustReplaceTildeInDir(*flagImport), cfg.Model.InputSize))
		ids := must.M1(store.ImportFeatures(ctx, features))
		fmt.Printf("Imported %d feature rows from %q\n", len(ids), *flagImport)
	}
	if !*flagScore {
		return
	}
	modelPath := cfg.Checkpoint.ModelPath
	if *flagModel != "" {
		modelPath = *flagModel
	}
	model := must.M1(mlp.Load(cfg.Model, fsutil.MustReplaceTildeInDir(modelPath)))
	report := must.M1(scoring.Score(ctx, model, store, cfg.Scoring.BatchSize))
	fmt.Printf("Scoring run %s: %d rows scored in %d batches (%s)\n", report.RunID, report.NumScored,
		report.NumBatches, commandline.FormatDuration(report.Elapsed))
}
