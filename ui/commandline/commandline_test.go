// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gomlx/sonar/pkg/ml/train/metrics"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapParams implements Params over a map, rejecting negative "y".
type mapParams struct {
	values map[string]any
	order  []string
}

func (p *mapParams) GetParam(name string) (any, bool) {
	v, found := p.values[name]
	return v, found
}

func (p *mapParams) SetParam(name string, value any) error {
	if name == "y" && value.(int) < 0 {
		return errors.New("y must be >= 0")
	}
	p.values[name] = value
	return nil
}

func (p *mapParams) ParamNames() []string { return p.order }

func createTestParams() *mapParams {
	return &mapParams{
		values: map[string]any{
			"x":          11.0,
			"y":          7,
			"z":          false,
			"s":          "foo",
			"list_int":   []int{},
			"list_float": []float64{},
			"list_str":   []string{},
		},
		order: []string{"x", "y", "z", "s", "list_int", "list_float", "list_str"},
	}
}

func TestParseSettings(t *testing.T) {
	params := createTestParams()

	paramsSet, err := ParseSettings(params, "x=13;z=true;y=3_000;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "z", "y", "s", "list_int", "list_float", "list_str"}, paramsSet)
	assert.Equal(t, 13.0, params.values["x"])
	assert.Equal(t, 3000, params.values["y"])
	assert.Equal(t, true, params.values["z"])
	assert.Equal(t, "bar", params.values["s"])
	assert.Equal(t, []int{1, 3, 7}, params.values["list_int"])
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, params.values["list_float"])
	assert.Equal(t, []string{"a", "b"}, params.values["list_str"])

	// Parameter "q" is unknown.
	_, err = ParseSettings(params, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseSettings(params, "y=3.14")
	require.Error(t, err)

	// Missing "=".
	_, err = ParseSettings(params, "y")
	require.Error(t, err)

	// Rejected by the parameters.
	_, err = ParseSettings(params, "y=-1")
	require.Error(t, err)
	assert.Equal(t, 3000, params.values["y"])
}

func TestParseSettingsFromFile(t *testing.T) {
	params := createTestParams()
	path := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Comment\nx=1.5\n\ny=2;s=from_file\n"), 0o644))
	paramsSet, err := ParseSettings(params, "file:"+path+";z=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "s", "z"}, paramsSet)
	assert.Equal(t, 1.5, params.values["x"])
	assert.Equal(t, "from_file", params.values["s"])

	modified := SprintModifiedSettings(params, append(paramsSet, "x"))
	assert.Equal(t, 4, strings.Count(modified, "\n")+1)
	assert.Contains(t, modified, `"s": (string) from_file`)

	_, err = ParseSettings(params, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23s", FormatDuration(1234567*time.Microsecond))
	assert.Equal(t, "12.35ms", FormatDuration(12345678*time.Nanosecond))
	assert.Equal(t, "0.00s", FormatDuration(0))
	assert.Equal(t, "1.50µs", FormatDuration(1500*time.Nanosecond))
	assert.Equal(t, "1m30.5s", FormatDuration(90500*time.Millisecond))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, time.Duration(0), median(nil))
	assert.Equal(t, 2*time.Second, median([]time.Duration{3 * time.Second, time.Second, 2 * time.Second}))
	assert.Equal(t, 1500*time.Millisecond, median([]time.Duration{2 * time.Second, time.Second}))
}

func TestHistoryRows(t *testing.T) {
	history := metrics.NewHistory()
	for epoch := range 2 {
		for _, phase := range metrics.Phases {
			for _, metric := range metrics.HistoryMetrics {
				history.Append(phase, metric, float64(epoch)+0.5)
			}
		}
	}
	rows := HistoryRows(history)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1], 1+len(metrics.Phases)*len(metrics.HistoryMetrics))
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "1.5000", rows[1][1])

	table := SprintHistory(history)
	assert.Contains(t, table, "train loss")
	assert.Contains(t, table, "val f1")
	assert.Contains(t, table, "0.5000")
}
