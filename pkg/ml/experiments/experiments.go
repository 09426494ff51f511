// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package experiments runs functional tests of a trained model and records each run as an
// experiment directory with its results and logs.
//
// A functional test is a JSON file with the examples and their expected labels:
//
//	{"X": [[0.02, 0.0371, ...], ...], "y": ["R", "M", ...]}
//
// Each run creates "exp_<test>_<YYYY_MM_DD_HH_MM_SS>/" under the experiments directory, with
// the record "exp_config.yaml" and, if configured, a copy of the log file as "exp_logfile.log".
package experiments

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/ml/scoring"
	"github.com/gomlx/sonar/pkg/ml/train/metrics"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

const (
	// RecordFile is the name of the experiment record in the experiment directory.
	RecordFile = "exp_config.yaml"

	// LogFile is the name of the copy of the log file in the experiment directory.
	LogFile = "exp_logfile.log"

	// TimestampLayout used in the experiment directory names.
	TimestampLayout = "2006_01_02_15_04_05"
)

// TestCase is one functional test.
type TestCase struct {
	// Name of the test, the file name without the ".json" extension.
	Name string `json:"-"`

	X [][]float64 `json:"X"`
	Y []string    `json:"y"`
}

// LoadTestCases reads all "*.json" files in dir, sorted by name.
func LoadTestCases(dir string) ([]*TestCase, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tests in %q", dir)
	}
	if len(paths) == 0 {
		return nil, failures.Errorf(failures.KindIO, "no functional tests (*.json) found in %q", dir)
	}
	slices.Sort(paths)
	testCases := make([]*TestCase, 0, len(paths))
	for _, path := range paths {
		tc, err := LoadTestCase(path)
		if err != nil {
			return nil, err
		}
		testCases = append(testCases, tc)
	}
	return testCases, nil
}

// LoadTestCase reads one functional test file.
func LoadTestCase(path string) (*TestCase, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to read test %q", path)
	}
	tc := &TestCase{Name: strings.TrimSuffix(filepath.Base(path), ".json")}
	if err := json.Unmarshal(contents, tc); err != nil {
		return nil, failures.Wrapf(failures.KindDataFormat, err, "failed to parse test %q", path)
	}
	if len(tc.X) == 0 || len(tc.X) != len(tc.Y) {
		return nil, failures.Errorf(failures.KindDataFormat, "test %q has %d examples and %d labels", path, len(tc.X), len(tc.Y))
	}
	return tc, nil
}

// Record of one experiment, saved as RecordFile.
type Record struct {
	Model       string `yaml:"model"`
	ModelParams any    `yaml:"model params"`

	// Accuracy is saved as a string with full precision.
	Accuracy string `yaml:"accuracy"`
	MacroF1  string `yaml:"macro f1"`

	Test        string `yaml:"test"`
	NumExamples int    `yaml:"num examples"`
}

// Runner runs functional tests on a model.
type Runner struct {
	// Model to test.
	Model nn.Forwardable

	// ModelName and ModelParams are saved in the records.
	ModelName   string
	ModelParams any

	// Dir where the experiment directories are created.
	Dir string

	// LogPath is the log file copied into each experiment directory. Ignored if empty or missing.
	LogPath string

	// Now returns the time used to name the experiment directory. Defaults to time.Now.
	Now func() time.Time
}

// Result of a functional test.
type Result struct {
	Record *Record

	// Dir is the experiment directory created.
	Dir string
}

// Evaluate returns the accuracy and macro F1 score of the model on the test.
func Evaluate(model nn.Forwardable, tc *TestCase) (accuracy, f1 float64, err error) {
	ls, err := labels.ParseAll(tc.Y)
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "test %q", tc.Name)
	}
	rows := make([]scoring.FeatureRow, len(tc.X))
	for ii, x := range tc.X {
		rows[ii] = scoring.FeatureRow{ID: int64(ii), Features: x}
	}
	predictions, err := scoring.Predict(model, rows)
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "test %q", tc.Name)
	}
	result := metrics.BatchResult{Predictions: make([]int, len(predictions)), Labels: labels.Indices(ls)}
	for ii, p := range predictions {
		result.Predictions[ii] = p.Label.Index()
	}
	acc, macroF1 := metrics.NewAccuracy(), metrics.NewMacroF1(labels.NumClasses)
	for _, metric := range []metrics.Interface{acc, macroF1} {
		if err := metric.Update(result); err != nil {
			return 0, 0, err
		}
	}
	return acc.Value(), macroF1.Value(), nil
}

// Run evaluates the model on the test and records the experiment.
func (r *Runner) Run(tc *TestCase) (*Result, error) {
	accuracy, f1, err := Evaluate(r.Model, tc)
	if err != nil {
		return nil, err
	}
	klog.Infof("%s passed test %s: accuracy=%g, macro F1=%g", r.ModelName, tc.Name, accuracy, f1)

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	result := &Result{
		Record: &Record{
			Model:       r.ModelName,
			ModelParams: r.ModelParams,
			Accuracy:    fmt.Sprint(accuracy),
			MacroF1:     fmt.Sprint(f1),
			Test:        tc.Name,
			NumExamples: len(tc.X),
		},
		Dir: filepath.Join(r.Dir, fmt.Sprintf("exp_%s_%s", tc.Name, now().Format(TimestampLayout))),
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to create experiments directory %q", r.Dir)
	}
	if err := os.Mkdir(result.Dir, 0o755); err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to create experiment directory")
	}
	contents, err := yaml.Marshal(result.Record)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode experiment record")
	}
	if err := os.WriteFile(filepath.Join(result.Dir, RecordFile), contents, 0o644); err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to write experiment record")
	}
	if r.LogPath != "" {
		exists, err := fsutil.FileExists(r.LogPath)
		if err != nil {
			return nil, failures.Wrapf(failures.KindIO, err, "log file")
		}
		if exists {
			if err := copyFile(r.LogPath, filepath.Join(result.Dir, LogFile)); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// RunAll runs all the tests, stopping at the first failure.
func (r *Runner) RunAll(testCases []*TestCase) ([]*Result, error) {
	results := make([]*Result, 0, len(testCases))
	for _, tc := range testCases {
		result, err := r.Run(tc)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return failures.Wrapf(failures.KindIO, err, "failed to open %q", from)
	}
	defer func() { _ = src.Close() }()
	err = fsutil.WriteFileAtomic(to, 0o644, func(dst *os.File) error {
		_, err := io.Copy(dst, src)
		return err
	})
	return failures.Wrapf(failures.KindIO, err, "failed to copy %q to %q", from, to)
}
