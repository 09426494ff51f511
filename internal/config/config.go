// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package config holds the configuration shared by the sonar commands, loaded from a YAML file
// and optionally overridden from the command line with "-set" (see commandline.ParseSettings).
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/gomlx/sonar/pkg/ml/datasets"
	"github.com/gomlx/sonar/pkg/ml/layers/activations"
	"github.com/gomlx/sonar/pkg/ml/models/mlp"
	"github.com/gomlx/sonar/pkg/ml/scoring"
	"github.com/gomlx/sonar/pkg/ml/train"
	"github.com/gomlx/sonar/pkg/ml/train/optimizers"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/gomlx/sonar/ui/commandline"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of the sonar commands.
type Config struct {
	// Seed used for the model initialization, the data split and the shuffling.
	Seed uint64 `yaml:"seed"`

	Data       DataConfig       `yaml:"data"`
	Model      mlp.Config       `yaml:"model"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Train      train.Config     `yaml:"train"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Scoring    ScoringConfig    `yaml:"scoring"`
}

// DataConfig locates the data files.
type DataConfig struct {
	// Raw is the CSV with the original data, one example per row, the label in the last column.
	Raw string `yaml:"raw"`

	// Dir holds the train/test split (X_train.csv, y_train.csv, X_test.csv, y_test.csv).
	Dir string `yaml:"dir"`

	// TestSize is the fraction of the examples in the test split.
	TestSize float64 `yaml:"test_size"`

	// BatchSize for training and evaluation. 0 uses the whole dataset in each batch.
	BatchSize int `yaml:"batch_size"`

	// Shuffle the training data at every epoch.
	Shuffle bool `yaml:"shuffle"`

	// TestsDir holds the functional tests (*.json), and ExperimentsDir where their records are written.
	TestsDir       string `yaml:"tests_dir"`
	ExperimentsDir string `yaml:"experiments_dir"`

	// LogFile is copied into each experiment record, if it exists.
	LogFile string `yaml:"log_file"`
}

// OptimizerConfig selects and configures the optimizer.
type OptimizerConfig struct {
	// Name of the optimizer, one of optimizers.KnownOptimizers.
	Name string `yaml:"name"`

	// LearningRate, if <= 0 the optimizer's default is used.
	LearningRate float64 `yaml:"learning_rate"`

	// Beta1, Beta2 and Epsilon are used by the Adam optimizers.
	Beta1   float64 `yaml:"beta1"`
	Beta2   float64 `yaml:"beta2"`
	Epsilon float64 `yaml:"epsilon"`
}

// CheckpointConfig of the final model.
type CheckpointConfig struct {
	// ModelPath is where sonar_train saves the final state, and where the other commands load
	// the model from.
	ModelPath string `yaml:"model_path"`
}

// ScoringConfig configures the database used for batch scoring.
type ScoringConfig struct {
	// Driver is "pgx" (Postgres/Greenplum) or "sqlite".
	Driver string `yaml:"driver"`

	// DSN, if set, is used as is. Otherwise, for Postgres it is built from the connection fields,
	// and for SQLite DBName is the database file.
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`

	// BatchSize of the scoring passes. 0 scores all rows in one batch.
	BatchSize int `yaml:"batch_size"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Seed: 42,
		Data: DataConfig{
			Raw:            "data/sonar.all-data",
			Dir:            "data",
			TestSize:       0.2,
			Shuffle:        true,
			TestsDir:       "tests",
			ExperimentsDir: "experiments",
			LogFile:        "logfile.log",
		},
		Model: mlp.DefaultConfig(),
		Optimizer: OptimizerConfig{
			Name:         "adam",
			LearningRate: optimizers.AdamDefaultLearningRate,
			Beta1:        optimizers.AdamDefaultBeta1,
			Beta2:        optimizers.AdamDefaultBeta2,
			Epsilon:      optimizers.AdamDefaultEpsilon,
		},
		Train: train.Config{
			Epochs:       100,
			BestSavePath: "experiments/best.ckpt",
		},
		Checkpoint: CheckpointConfig{ModelPath: "experiments/model.ckpt"},
		Scoring: ScoringConfig{
			Driver: "pgx",
			Host:   "localhost",
			Port:   5432,
			User:   "sonar",
			DBName: "sonar",
		},
	}
}

// Load reads the configuration from a YAML file. Fields missing from the file keep their
// default values, and unknown fields are an error.
func Load(path string) (*Config, error) {
	path, err := fsutil.ReplaceTildeInDir(path)
	if err != nil {
		return nil, failures.Wrapf(failures.KindConfiguration, err, "config path")
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to read config")
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, failures.Wrapf(failures.KindConfiguration, err, "failed to parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "config %q", path)
	}
	return cfg, nil
}

// LoadWithSettings loads the configuration from path (or uses Default if path is empty), applies
// the "-set" settings (see commandline.ParseSettings) and validates the result.
// It returns the configuration and the names of the parameters set.
func LoadWithSettings(path, settings string) (*Config, []string, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, nil, err
		}
	}
	paramsSet, err := commandline.ParseSettings(cfg, settings)
	if err != nil {
		return nil, nil, failures.Wrapf(failures.KindConfiguration, err, "invalid -set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, paramsSet, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	contents, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "failed to encode config")
	}
	err = fsutil.WriteFileAtomic(path, 0o644, func(f *os.File) error {
		_, err := f.Write(contents)
		return err
	})
	return failures.Wrapf(failures.KindIO, err, "failed to write config")
}

// Validate returns a failures.ErrConfiguration on the first invalid value.
func (c *Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.Model.InputSize != datasets.NumSonarFeatures {
		return failures.Errorf(failures.KindConfiguration, "model input size must be %d (the number of sonar features), got %d",
			datasets.NumSonarFeatures, c.Model.InputSize)
	}
	if _, err := optimizers.ByName(c.Optimizer.Name, c.Optimizer.LearningRate); err != nil {
		return err
	}
	if c.Optimizer.Beta1 < 0 || c.Optimizer.Beta1 >= 1 || c.Optimizer.Beta2 < 0 || c.Optimizer.Beta2 >= 1 {
		return failures.Errorf(failures.KindConfiguration, "optimizer betas must be in [0, 1), got %g and %g",
			c.Optimizer.Beta1, c.Optimizer.Beta2)
	}
	if err := c.Train.Validate(); err != nil {
		return err
	}
	if c.Data.TestSize <= 0 || c.Data.TestSize >= 1 {
		return failures.Errorf(failures.KindConfiguration, "data test_size must be in (0, 1), got %g", c.Data.TestSize)
	}
	if c.Data.BatchSize < 0 || c.Scoring.BatchSize < 0 {
		return failures.Errorf(failures.KindConfiguration, "batch sizes must be >= 0")
	}
	if _, err := scoring.DialectFromDriver(c.Scoring.Driver); err != nil {
		return err
	}
	return nil
}

// NewOptimizer creates the configured optimizer.
func (c *Config) NewOptimizer() (optimizers.Interface, error) {
	switch c.Optimizer.Name {
	case "adam", "adamax":
		cfg := optimizers.Adam().
			LearningRate(c.Optimizer.LearningRate).
			Betas(c.Optimizer.Beta1, c.Optimizer.Beta2).
			Epsilon(c.Optimizer.Epsilon)
		if c.Optimizer.Name == "adamax" {
			cfg = cfg.Adamax()
		}
		return cfg.Done(), nil
	}
	return optimizers.ByName(c.Optimizer.Name, c.Optimizer.LearningRate)
}

// ScoringDSN returns the data source name for the scoring database.
func (c *Config) ScoringDSN() string {
	s := c.Scoring
	if s.DSN != "" {
		return s.DSN
	}
	if s.Driver == "sqlite" {
		return s.DBName
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s", s.Host, s.Port, s.User, s.Password, s.DBName)
}

// param of the configuration that can be set from the command line.
type param struct {
	name string
	get  func(c *Config) any
	set  func(c *Config, value any) error
}

// params that can be set with "-set", in display order.
var params = []param{
	{"seed", func(c *Config) any { return c.Seed }, func(c *Config, v any) error { c.Seed = v.(uint64); return nil }},
	{"data_dir", func(c *Config) any { return c.Data.Dir }, func(c *Config, v any) error { c.Data.Dir = v.(string); return nil }},
	{"test_size", func(c *Config) any { return c.Data.TestSize }, func(c *Config, v any) error { c.Data.TestSize = v.(float64); return nil }},
	{"batch_size", func(c *Config) any { return c.Data.BatchSize }, func(c *Config, v any) error { c.Data.BatchSize = v.(int); return nil }},
	{"shuffle", func(c *Config) any { return c.Data.Shuffle }, func(c *Config, v any) error { c.Data.Shuffle = v.(bool); return nil }},
	{"hidden_size", func(c *Config) any { return c.Model.HiddenSize }, func(c *Config, v any) error { c.Model.HiddenSize = v.(int); return nil }},
	{"output_activation", func(c *Config) any { return c.Model.OutputActivation.String() }, func(c *Config, v any) error {
		activation, err := activations.TypeString(v.(string))
		if err != nil {
			return failures.Wrapf(failures.KindConfiguration, err, "valid values are %q", activations.TypeStrings())
		}
		c.Model.OutputActivation = activation
		return nil
	}},
	{optimizers.ParamOptimizer, func(c *Config) any { return c.Optimizer.Name }, func(c *Config, v any) error {
		if _, err := optimizers.ByName(v.(string), 0); err != nil {
			return err
		}
		c.Optimizer.Name = v.(string)
		return nil
	}},
	{optimizers.ParamLearningRate, func(c *Config) any { return c.Optimizer.LearningRate }, func(c *Config, v any) error { c.Optimizer.LearningRate = v.(float64); return nil }},
	{"beta1", func(c *Config) any { return c.Optimizer.Beta1 }, func(c *Config, v any) error { c.Optimizer.Beta1 = v.(float64); return nil }},
	{"beta2", func(c *Config) any { return c.Optimizer.Beta2 }, func(c *Config, v any) error { c.Optimizer.Beta2 = v.(float64); return nil }},
	{"epsilon", func(c *Config) any { return c.Optimizer.Epsilon }, func(c *Config, v any) error { c.Optimizer.Epsilon = v.(float64); return nil }},
	{"epochs", func(c *Config) any { return c.Train.Epochs }, func(c *Config, v any) error { c.Train.Epochs = v.(int); return nil }},
	{"best_save_path", func(c *Config) any { return c.Train.BestSavePath }, func(c *Config, v any) error { c.Train.BestSavePath = v.(string); return nil }},
	{"periodic_save_path", func(c *Config) any { return c.Train.PeriodicSavePath }, func(c *Config, v any) error { c.Train.PeriodicSavePath = v.(string); return nil }},
	{"save_period", func(c *Config) any { return c.Train.SavePeriod }, func(c *Config, v any) error { c.Train.SavePeriod = v.(int); return nil }},
	{"model_path", func(c *Config) any { return c.Checkpoint.ModelPath }, func(c *Config, v any) error { c.Checkpoint.ModelPath = v.(string); return nil }},
	{"scoring_batch_size", func(c *Config) any { return c.Scoring.BatchSize }, func(c *Config, v any) error { c.Scoring.BatchSize = v.(int); return nil }},
}

func findParam(name string) *param {
	for ii := range params {
		if params[ii].name == name {
			return &params[ii]
		}
	}
	return nil
}

// GetParam implements commandline.Params.
func (c *Config) GetParam(name string) (value any, found bool) {
	p := findParam(name)
	if p == nil {
		return nil, false
	}
	return p.get(c), true
}

// SetParam implements commandline.Params. The value must have the type returned by GetParam.
func (c *Config) SetParam(name string, value any) error {
	p := findParam(name)
	if p == nil {
		return failures.Errorf(failures.KindConfiguration, "unknown config parameter %q", name)
	}
	if fmt.Sprintf("%T", value) != fmt.Sprintf("%T", p.get(c)) {
		return failures.Errorf(failures.KindConfiguration, "config parameter %q requires a %T value, got %T",
			name, p.get(c), value)
	}
	return p.set(c, value)
}

// ParamNames implements commandline.Params.
func (c *Config) ParamNames() []string {
	names := make([]string, len(params))
	for ii, p := range params {
		names[ii] = p.name
	}
	return names
}
