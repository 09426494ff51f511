// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"testing"

	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinear(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	w := mat.NewDense(2, 3, []float64{1, 0, -1, 0, 1, 2})
	b := mat.NewDense(1, 3, []float64{0.5, 0, -0.5})
	y := Linear(x, w, b)
	assert.Equal(t, []float64{1.5, 2, 2.5}, y.RawRowView(0))
	assert.Equal(t, []float64{3.5, 4, 4.5}, y.RawRowView(1))

	dY := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 1})
	dX, dW, dB := LinearBackward(x, w, dY)
	assert.Equal(t, []float64{1, 0}, dX.RawRowView(0))
	assert.Equal(t, []float64{-1, 3}, dX.RawRowView(1))
	assert.Equal(t, []float64{1, 3, 3}, dW.RawRowView(0))
	assert.Equal(t, []float64{2, 4, 4}, dW.RawRowView(1))
	assert.Equal(t, []float64{1, 1, 1}, dB.RawRowView(0))
}

func TestCheckDims(t *testing.T) {
	m := mat.NewDense(2, 3, nil)
	require.NoError(t, CheckDims("m", m, 2, 3))
	require.NoError(t, CheckDims("m", m, -1, 3))
	err := CheckDims("m", m, -1, 4)
	assert.True(t, errors.Is(err, failures.ErrShapeMismatch))
	err = CheckDims("m", nil, 2, 3)
	assert.True(t, errors.Is(err, failures.ErrShapeMismatch))
}

func TestVariable(t *testing.T) {
	v := &Variable{Name: "w1", Value: mat.NewDense(3, 4, nil)}
	assert.Equal(t, []int{3, 4}, v.Dims())
	assert.Equal(t, 12, v.Size())
	assert.Equal(t, "w1[3 4]", v.String())
	c := v.Clone()
	c.Value.Set(0, 0, 1)
	assert.Equal(t, 0.0, v.Value.At(0, 0))
	assert.Equal(t, 24, NumParameters([]*Variable{v, c}))
}

func TestArgmax(t *testing.T) {
	output := mat.NewDense(3, 2, []float64{0.2, 0.8, 0.9, 0.1, 0.5, 0.5})
	assert.Equal(t, []int{1, 0, 0}, Argmax(output))
}
