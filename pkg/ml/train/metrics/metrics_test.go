// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanLoss(t *testing.T) {
	m := NewMeanLoss()
	assert.True(t, math.IsNaN(m.Value()))
	require.NoError(t, m.Update(BatchResult{Loss: 0.5}))
	require.NoError(t, m.Update(BatchResult{Loss: 1.0}))
	assert.InDelta(t, 0.75, m.Value(), 1e-12)
	assert.Equal(t, 2, m.NumBatches())
	assert.Equal(t, "0.7500", m.PrettyPrint(m.Value()))
	m.Reset()
	assert.Equal(t, 0, m.NumBatches())
}

func TestAccuracy(t *testing.T) {
	m := NewAccuracy()
	require.NoError(t, m.Update(BatchResult{Predictions: []int{0, 1, 1}, Labels: []int{0, 1, 0}}))
	require.NoError(t, m.Update(BatchResult{Predictions: []int{1}, Labels: []int{1}}))
	assert.InDelta(t, 0.75, m.Value(), 1e-12)
	assert.Error(t, m.Update(BatchResult{Predictions: []int{1}, Labels: []int{}}))
	assert.Equal(t, "75.00%", m.PrettyPrint(m.Value()))
}

func TestMacroF1(t *testing.T) {
	m := NewMacroF1(2)
	assert.Equal(t, 0.0, m.Value())
	// Class 0: TP=2, FP=1, FN=1 -> F1 = 4/6. Class 1: TP=1, FP=1, FN=1 -> F1 = 2/4.
	require.NoError(t, m.Update(BatchResult{
		Predictions: []int{0, 0, 1, 0, 1},
		Labels:      []int{0, 0, 1, 1, 0},
	}))
	assert.InDelta(t, (4.0/6+0.5)/2, m.Value(), 1e-12)

	// Only one class present: the absent class is not averaged.
	m.Reset()
	require.NoError(t, m.Update(BatchResult{Predictions: []int{1, 1}, Labels: []int{1, 1}}))
	assert.InDelta(t, 1.0, m.Value(), 1e-12)

	err := m.Update(BatchResult{Predictions: []int{2}, Labels: []int{0}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failures.ErrDataFormat))
	err = m.Update(BatchResult{Predictions: []int{0}, Labels: []int{0, 1}})
	assert.True(t, errors.Is(err, failures.ErrDataFormat))
}

func TestHistoryTruncate(t *testing.T) {
	h := NewHistory()
	for epoch := range 3 {
		for _, phase := range Phases {
			for _, metric := range HistoryMetrics {
				h.Append(phase, metric, float64(epoch))
			}
		}
	}
	h.Truncate(5)
	assert.Equal(t, 3, h.NumEpochs())
	h.Truncate(1)
	assert.Equal(t, 1, h.NumEpochs())
	require.NoError(t, h.Validate())
	assert.Equal(t, []float64{0}, h.Get(PhaseVal, F1MetricType))
	h.Append(PhaseVal, F1MetricType, 7)
	assert.Equal(t, []float64{0, 7}, h.Get(PhaseVal, F1MetricType))
}

func TestHistory(t *testing.T) {
	h := NewHistory()
	assert.Equal(t, 0, h.NumEpochs())
	require.NoError(t, h.Validate())
	for epoch := range 3 {
		for _, phase := range Phases {
			for _, metric := range HistoryMetrics {
				h.Append(phase, metric, float64(epoch))
			}
		}
	}
	assert.Equal(t, 3, h.NumEpochs())
	require.NoError(t, h.Validate())
	last, ok := h.Last(PhaseVal, LossMetricType)
	assert.True(t, ok)
	assert.Equal(t, 2.0, last)

	c := h.Clone()
	c.Append(PhaseTrain, LossMetricType, 10)
	assert.Equal(t, 3, h.NumEpochs())
	require.Error(t, c.Validate())

	encoded, err := json.Marshal(h)
	require.NoError(t, err)
	var decoded History
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, h, decoded)
}
