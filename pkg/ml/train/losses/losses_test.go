// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package losses

import (
	"math"
	"testing"

	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestCrossEntropy(t *testing.T) {
	predictions := mat.NewDense(2, 2, []float64{
		0.7310585786300049, 0.28905049737499605,
		0.5, 0.5,
	})
	loss, grad, err := CrossEntropy(predictions, []int{0, 1})
	require.NoError(t, err)

	// Row 0: log(1+exp(-d)) with d = y0-y1. Row 1: log(2).
	d := 0.7310585786300049 - 0.28905049737499605
	want := (math.Log1p(math.Exp(-d)) + math.Log(2)) / 2
	assert.InDelta(t, want, loss, 1e-12)

	p0 := 1 / (1 + math.Exp(-d))
	assert.InDelta(t, (p0-1)/2, grad.At(0, 0), 1e-12)
	assert.InDelta(t, (1-p0)/2, grad.At(0, 1), 1e-12)
	assert.InDelta(t, 0.25, grad.At(1, 0), 1e-12)
	assert.InDelta(t, -0.25, grad.At(1, 1), 1e-12)

	// Predictions are not modified.
	assert.Equal(t, 0.5, predictions.At(1, 0))
}

func TestCrossEntropyGradientIsNumeric(t *testing.T) {
	predictions := mat.NewDense(3, 2, []float64{0.1, 0.9, 0.8, 0.3, 0.45, 0.55})
	labels := []int{1, 0, 0}
	_, grad, err := CrossEntropy(predictions, labels)
	require.NoError(t, err)
	const eps = 1e-6
	for ii := range predictions.RawMatrix().Data {
		data := predictions.RawMatrix().Data
		orig := data[ii]
		data[ii] = orig + eps
		plus, _, _ := CrossEntropy(predictions, labels)
		data[ii] = orig - eps
		minus, _, _ := CrossEntropy(predictions, labels)
		data[ii] = orig
		assert.InDelta(t, (plus-minus)/(2*eps), grad.RawMatrix().Data[ii], 1e-8)
	}
}

func TestCrossEntropyErrors(t *testing.T) {
	predictions := mat.NewDense(2, 2, nil)
	_, _, err := CrossEntropy(predictions, []int{0, 2})
	assert.True(t, errors.Is(err, failures.ErrDataFormat))
	_, _, err = CrossEntropy(predictions, []int{-1, 0})
	assert.True(t, errors.Is(err, failures.ErrDataFormat))
	_, _, err = CrossEntropy(predictions, []int{0})
	assert.True(t, errors.Is(err, failures.ErrDataFormat))

	assert.True(t, IsFinite(0.3))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(1)))
}
