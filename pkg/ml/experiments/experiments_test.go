// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package experiments

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// thresholdModel predicts a mine if the first feature is > 0.5.
type thresholdModel struct{}

func (thresholdModel) Forward(x *mat.Dense) (*mat.Dense, error) {
	rows, _ := x.Dims()
	output := mat.NewDense(rows, labels.NumClasses, nil)
	for row := range rows {
		output.Set(row, labels.Rock.Index(), 1-x.At(row, 0))
		output.Set(row, labels.Mine.Index(), x.At(row, 0))
	}
	return output, nil
}

func writeTest(t *testing.T, dir, name, contents string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadTestCases(t *testing.T) {
	dir := t.TempDir()
	writeTest(t, dir, "b.json", `{"X": [[0.9], [0.2]], "y": ["M", "R"]}`)
	writeTest(t, dir, "a.json", `{"X": [[0.1]], "y": ["M"]}`)
	writeTest(t, dir, "notes.txt", `ignored`)
	testCases, err := LoadTestCases(dir)
	require.NoError(t, err)
	require.Len(t, testCases, 2)
	assert.Equal(t, "a", testCases[0].Name)
	assert.Equal(t, "b", testCases[1].Name)
	assert.Equal(t, [][]float64{{0.9}, {0.2}}, testCases[1].X)
	assert.Equal(t, []string{"M", "R"}, testCases[1].Y)

	_, err = LoadTestCases(t.TempDir())
	assert.ErrorIs(t, err, failures.ErrIO)

	writeTest(t, dir, "c.json", `{"X": [[0.1]], "y": []}`)
	_, err = LoadTestCases(dir)
	assert.ErrorIs(t, err, failures.ErrDataFormat)

	writeTest(t, dir, "c.json", `{"X": `)
	_, err = LoadTestCases(dir)
	assert.ErrorIs(t, err, failures.ErrDataFormat)
}

func TestEvaluate(t *testing.T) {
	accuracy, f1, err := Evaluate(thresholdModel{}, &TestCase{
		Name: "toy",
		X:    [][]float64{{0.9}, {0.8}, {0.2}, {0.7}},
		Y:    []string{"M", "M", "R", "R"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, accuracy, 1e-12)
	// Mine: precision 2/3, recall 1 -> 0.8; Rock: precision 1, recall 1/2 -> 2/3.
	assert.InDelta(t, (0.8+2.0/3.0)/2, f1, 1e-12)

	_, _, err = Evaluate(thresholdModel{}, &TestCase{Name: "bad", X: [][]float64{{0.9}}, Y: []string{"X"}})
	assert.ErrorIs(t, err, failures.ErrDataFormat)
}

func TestRunner(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logfile.log")
	require.NoError(t, os.WriteFile(logPath, []byte("some logs\n"), 0o644))
	runner := &Runner{
		Model:       thresholdModel{},
		ModelName:   "mlp",
		ModelParams: map[string]int{"hidden_size": 40},
		Dir:         filepath.Join(dir, "experiments"),
		LogPath:     logPath,
		Now:         func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC) },
	}
	results, err := runner.RunAll([]*TestCase{{Name: "test_0", X: [][]float64{{0.9}, {0.1}}, Y: []string{"M", "M"}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(dir, "experiments", "exp_test_0_2024_03_05_14_07_09"), results[0].Dir)

	contents, err := os.ReadFile(filepath.Join(results[0].Dir, RecordFile))
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, yaml.Unmarshal(contents, &record))
	assert.Equal(t, "mlp", record["model"])
	assert.Equal(t, "0.5", record["accuracy"])
	assert.Equal(t, map[string]any{"hidden_size": 40}, record["model params"])

	logs, err := os.ReadFile(filepath.Join(results[0].Dir, LogFile))
	require.NoError(t, err)
	assert.Equal(t, "some logs\n", string(logs))

	// Same test at the same time: the experiment directory already exists.
	_, err = runner.Run(&TestCase{Name: "test_0", X: [][]float64{{0.9}}, Y: []string{"M"}})
	assert.ErrorIs(t, err, failures.ErrIO)
}
