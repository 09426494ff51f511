// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package initializer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestFanInUniform(t *testing.T) {
	w := FanInUniform(NewRNG(42))(60, 40)
	rows, cols := w.Dims()
	assert.Equal(t, 60, rows)
	assert.Equal(t, 40, cols)
	limit := 1 / math.Sqrt(60)
	for _, v := range w.RawMatrix().Data {
		assert.LessOrEqual(t, math.Abs(v), limit)
	}
	assert.Greater(t, mat.Norm(w, 1), 0.0)

	// Same seed, same values.
	w2 := FanInUniform(NewRNG(42))(60, 40)
	assert.True(t, mat.Equal(w, w2))
	w3 := FanInUniform(NewRNG(43))(60, 40)
	assert.False(t, mat.Equal(w, w3))
}

func TestZero(t *testing.T) {
	b := Zero(1, 3)
	assert.Equal(t, []float64{0, 0, 0}, b.RawRowView(0))
}
