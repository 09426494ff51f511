// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mlp

import (
	"testing"

	"github.com/gomlx/sonar/pkg/ml/layers/activations"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallConfig() Config {
	return Config{InputSize: 4, HiddenSize: 3, OutputSize: 2, OutputActivation: activations.TypeSigmoid}
}

func TestForwardShapesAndDeterminism(t *testing.T) {
	m, err := New(DefaultConfig(), 42)
	require.NoError(t, err)
	x := mat.NewDense(5, 60, nil)
	for ii := range 5 * 60 {
		x.RawMatrix().Data[ii] = float64(ii%7) / 7
	}
	y1, err := m.Forward(x)
	require.NoError(t, err)
	rows, cols := y1.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 2, cols)
	for _, v := range y1.RawMatrix().Data {
		assert.True(t, v > 0 && v < 1, "sigmoid output out of range: %g", v)
	}

	y2, err := m.Forward(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y1, y2), "forward is not deterministic")

	// Wrong number of columns.
	_, err = m.Forward(mat.NewDense(5, 59, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failures.ErrShapeMismatch))
}

func TestSeededInitialization(t *testing.T) {
	x := mat.NewDense(1, 4, []float64{1, 1, 1, 1})
	m1 := MustNew(smallConfig(), 7)
	m2 := MustNew(smallConfig(), 7)
	y1, err := m1.Forward(x)
	require.NoError(t, err)
	y2, err := m2.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, y1.RawMatrix().Data, y2.RawMatrix().Data)
	assert.Equal(t, []float64{0, 0, 0}, m1.b1.Value.RawRowView(0))
	assert.Equal(t, []float64{0, 0}, m1.b2.Value.RawRowView(0))

	m3 := MustNew(smallConfig(), 8)
	assert.False(t, mat.Equal(m1.w1.Value, m3.w1.Value))
}

// TestSeededGoldenOutput pins the output of the model created with seed 1: it changes if the random
// initialization changes.
func TestSeededGoldenOutput(t *testing.T) {
	m := MustNew(smallConfig(), 1)
	assert.InDelta(t, -0.2617047370188105, m.w1.Value.At(0, 0), 1e-15)
	y, err := m.Forward(mat.NewDense(1, 4, []float64{1, 1, 1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.4421119206506701, y.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5128632206083622, y.At(0, 1), 1e-12)
}

// TestGoldenOutput evaluates a 4-3-2 model with hand-set parameters on [[1,1,1,1]]:
//
//	z1 = [0.4, 0.8-1, 1.2] -> h = [0.4, 0, 1.2]
//	z2 = [0.4+0.6, -0.4-0.5] = [1.0, -0.9] -> y = sigmoid(z2)
func TestGoldenOutput(t *testing.T) {
	m := MustNew(smallConfig(), 0)
	w1 := mat.NewDense(4, 3, nil)
	for i := range 4 {
		for j := range 3 {
			w1.Set(i, j, 0.1*float64(j+1))
		}
	}
	require.NoError(t, m.SetVariables([]*nn.Variable{
		{Name: W1, Value: w1},
		{Name: B1, Value: mat.NewDense(1, 3, []float64{0, -1, 0})},
		{Name: W2, Value: mat.NewDense(3, 2, []float64{1, -1, 2, 2, 0.5, 0})},
		{Name: B2, Value: mat.NewDense(1, 2, []float64{0, -0.5})},
	}))
	y, err := m.Forward(mat.NewDense(1, 4, []float64{1, 1, 1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.7310585786300049, y.At(0, 0), 1e-12)
	assert.InDelta(t, 0.28905049737499605, y.At(0, 1), 1e-12)
	assert.Equal(t, []int{0}, nn.Argmax(y))
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	m := MustNew(smallConfig(), 3)
	x := mat.NewDense(3, 4, []float64{
		0.1, 0.5, -0.3, 0.9,
		1.0, -1.0, 0.2, 0.3,
		0.7, 0.7, 0.7, -0.2,
	})
	dY := mat.NewDense(3, 2, []float64{1, -0.5, 0.25, 2, -1, 0.3})
	objective := func() float64 {
		y, err := m.Forward(x)
		require.NoError(t, err)
		var sum float64
		for ii, v := range y.RawMatrix().Data {
			sum += v * dY.RawMatrix().Data[ii]
		}
		return sum
	}

	tr, err := m.ForwardTrace(x)
	require.NoError(t, err)
	grads, err := m.Backward(tr, dY)
	require.NoError(t, err)
	assert.Equal(t, []string{B1, B2, W1, W2}, grads.Names())

	const eps = 1e-6
	for _, v := range m.Variables() {
		grad := grads[v.Name]
		require.NotNil(t, grad, "missing gradient for %s", v.Name)
		gr, gc := grad.Dims()
		vr, vc := v.Value.Dims()
		require.Equal(t, []int{vr, vc}, []int{gr, gc}, "gradient shape for %s", v.Name)
		for i := range vr {
			for j := range vc {
				orig := v.Value.At(i, j)
				v.Value.Set(i, j, orig+eps)
				plus := objective()
				v.Value.Set(i, j, orig-eps)
				minus := objective()
				v.Value.Set(i, j, orig)
				assert.InDelta(t, (plus-minus)/(2*eps), grad.At(i, j), 1e-6, "%s[%d,%d]", v.Name, i, j)
			}
		}
	}
}

func TestSetVariablesShapeMismatchSurfacesOnForward(t *testing.T) {
	m := MustNew(smallConfig(), 1)
	other := MustNew(Config{InputSize: 5, HiddenSize: 3, OutputSize: 2, OutputActivation: activations.TypeSigmoid}, 1)
	require.NoError(t, m.SetVariables(other.Variables()))
	_, err := m.Forward(mat.NewDense(1, 4, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failures.ErrShapeMismatch))

	// Missing variables are rejected without changing the model.
	before := m.Variables()
	err = m.SetVariables(other.Variables()[:2])
	assert.True(t, errors.Is(err, failures.ErrIO))
	assert.Equal(t, before, m.Variables())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	_, err := New(Config{InputSize: 0, HiddenSize: 1, OutputSize: 1}, 0)
	assert.True(t, errors.Is(err, failures.ErrConfiguration))
	assert.Panics(t, func() { MustNew(Config{}, 0) })
}
