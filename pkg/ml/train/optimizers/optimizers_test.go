// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"testing"

	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newVars() []*nn.Variable {
	return []*nn.Variable{
		{Name: "w", Value: mat.NewDense(1, 2, []float64{1, -1})},
		{Name: "b", Value: mat.NewDense(1, 1, []float64{0})},
	}
}

func newGrads() nn.Gradients {
	return nn.Gradients{
		"w": mat.NewDense(1, 2, []float64{0.5, -2}),
		"b": mat.NewDense(1, 1, []float64{0}),
	}
}

func TestAdam(t *testing.T) {
	opt := Adam().Done()
	vars := newVars()
	// With a constant gradient, the bias-corrected moments are m̂=g and v̂=g², so each
	// step moves each value by lr·g/(|g|+ε).
	for range 2 {
		require.NoError(t, opt.Step(vars, newGrads()))
	}
	lr, eps := AdamDefaultLearningRate, AdamDefaultEpsilon
	assert.InDelta(t, 1-2*lr*0.5/(0.5+eps), vars[0].Value.At(0, 0), 1e-12)
	assert.InDelta(t, -1+2*lr*2/(2+eps), vars[0].Value.At(0, 1), 1e-12)
	assert.Equal(t, 0.0, vars[1].Value.At(0, 0))

	state := opt.State()
	assert.Equal(t, "adam", state.Optimizer)
	assert.Equal(t, int64(2), state.Step)
	require.Len(t, state.Slots, 4)
	assert.Equal(t, "b_1st_moment", state.Slots[0].Name)
	assert.Equal(t, "w_2nd_moment", state.Slots[3].Name)
}

func TestAdamStateRoundTrip(t *testing.T) {
	opt := Adam().LearningRate(0.01).Done()
	vars := newVars()
	require.NoError(t, opt.Step(vars, newGrads()))

	restored := Adam().LearningRate(0.01).Done()
	require.NoError(t, restored.SetState(opt.State()))
	restoredVars := nn.CloneVariables(vars)

	grads := nn.Gradients{
		"w": mat.NewDense(1, 2, []float64{-0.3, 1}),
		"b": mat.NewDense(1, 1, []float64{0.2}),
	}
	require.NoError(t, opt.Step(vars, grads))
	require.NoError(t, restored.Step(restoredVars, grads))
	for ii := range vars {
		assert.Equal(t, vars[ii].Value.RawMatrix().Data, restoredVars[ii].Value.RawMatrix().Data)
	}
	assert.Equal(t, int64(2), restored.State().Step)

	// State is a copy.
	state := opt.State()
	state.Slots[0].Value.Set(0, 0, 1000)
	assert.NotEqual(t, 1000.0, opt.State().Slots[0].Value.At(0, 0))

	// Incompatible states.
	assert.True(t, errors.Is(restored.SetState(StochasticGradientDescent().Done().State()), failures.ErrConfiguration))
	bad := opt.State()
	bad.Slots = bad.Slots[:3]
	assert.True(t, errors.Is(restored.SetState(bad), failures.ErrIO))
}

func TestStepFailuresDontChangeState(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			opt, err := ByName(name, 0)
			require.NoError(t, err)
			vars := newVars()
			grads := newGrads()
			grads["w"] = mat.NewDense(2, 1, nil)
			err = opt.Step(vars, grads)
			assert.True(t, errors.Is(err, failures.ErrShapeMismatch))
			delete(grads, "w")
			err = opt.Step(vars, grads)
			assert.True(t, errors.Is(err, failures.ErrShapeMismatch))
			assert.Equal(t, int64(0), opt.State().Step)
			assert.Equal(t, []float64{1, -1}, vars[0].Value.RawRowView(0))

			require.NoError(t, opt.Step(vars, newGrads()))
			assert.Equal(t, int64(1), opt.State().Step)
		})
	}
}

func TestSGD(t *testing.T) {
	opt := StochasticGradientDescent().WithLearningRate(0.1).Done()
	vars := newVars()
	require.NoError(t, opt.Step(vars, newGrads()))
	assert.InDelta(t, 0.95, vars[0].Value.At(0, 0), 1e-12)
	assert.InDelta(t, -0.8, vars[0].Value.At(0, 1), 1e-12)
	assert.Equal(t, int64(1), opt.State().Step)
	opt.Clear()
	assert.Equal(t, int64(0), opt.State().Step)
}

func TestByName(t *testing.T) {
	assert.Equal(t, []string{"adam", "adamax", "sgd"}, Names())
	opt, err := ByName("adamax", 0.002)
	require.NoError(t, err)
	assert.Equal(t, "adamax", opt.Name())
	_, err = ByName("lion", 0.1)
	assert.True(t, errors.Is(err, failures.ErrConfiguration))
}
