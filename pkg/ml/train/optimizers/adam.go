// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"
	"slices"
	"strings"

	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/mat"
)

const (
	// AdamDefaultLearningRate is used by Adam if no learning rate is set.
	AdamDefaultLearningRate = 0.001

	// AdamDefaultBeta1 is the default moving average coefficient for the gradient (momentum).
	AdamDefaultBeta1 = 0.9

	// AdamDefaultBeta2 is the default moving average coefficient for the squared gradient (variance).
	AdamDefaultBeta2 = 0.999

	// AdamDefaultEpsilon is added to the denominator of the update, for numerical stability.
	AdamDefaultEpsilon = 1e-8

	// Slot names of the moments kept by Adam for each variable.
	firstMomentSlot  = "1st_moment"
	secondMomentSlot = "2nd_moment"
)

// Adam optimization is a stochastic gradient descent method based on an adaptive estimation of first-order and
// second-order moments. See [Kingma et al., 2014](http://arxiv.org/abs/1412.6980).
//
// For each step t (starting at 1), variable and its gradient g:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	variable -= learning_rate · (m / (1-β1^t)) / (√(v / (1-β2^t)) + ε)
//
// It returns a configuration object that can be used to set its parameters. Once configured, call AdamConfig.Done,
// and it will return an optimizers.Interface.
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        AdamDefaultBeta1,
		beta2:        AdamDefaultBeta2,
		epsilon:      AdamDefaultEpsilon,
	}
}

// AdamConfig holds the configuration for an Adam optimizer.
type AdamConfig struct {
	learningRate float64
	beta1, beta2 float64
	epsilon      float64
	adamax       bool
}

// LearningRate sets the learning rate. Values <= 0 keep the default.
func (c *AdamConfig) LearningRate(value float64) *AdamConfig {
	if value > 0 {
		c.learningRate = value
	}
	return c
}

// Betas sets the two moving averages constants (default to 0.9 and 0.999).
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1 = beta1
	c.beta2 = beta2
	return c
}

// Epsilon sets the small value added to the denominator. Default is 1e-8.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// Adamax configures Adam to use an L-infinity norm for the second moment: v = max(β2·v, |g|), and the
// update is learning_rate/(1-β1^t) · m/(v+ε).
func (c *AdamConfig) Adamax() *AdamConfig {
	c.adamax = true
	return c
}

// Done returns the configured optimizer.
func (c *AdamConfig) Done() Interface {
	return &adam{config: *c, moments: make(map[string]*moments)}
}

type moments struct {
	m1, m2 *mat.Dense
}

type adam struct {
	config  AdamConfig
	step    int64
	moments map[string]*moments
}

// Name implements Interface.
func (o *adam) Name() string {
	if o.config.adamax {
		return "adamax"
	}
	return "adam"
}

// getMoments returns the moments for the variable, creating zero moments if they don't exist yet.
// Moments restored from a checkpoint with a different shape are a failures.ErrShapeMismatch.
func (o *adam) getMoments(v *nn.Variable) (*moments, error) {
	dims := v.Dims()
	mm, found := o.moments[v.Name]
	if !found {
		return &moments{m1: mat.NewDense(dims[0], dims[1], nil), m2: mat.NewDense(dims[0], dims[1], nil)}, nil
	}
	if err := nn.CheckDims(SlotName(v.Name, firstMomentSlot), mm.m1, dims[0], dims[1]); err != nil {
		return nil, err
	}
	if err := nn.CheckDims(SlotName(v.Name, secondMomentSlot), mm.m2, dims[0], dims[1]); err != nil {
		return nil, err
	}
	return mm, nil
}

// Step implements Interface.
func (o *adam) Step(vars []*nn.Variable, grads nn.Gradients) error {
	if err := checkGradients(vars, grads); err != nil {
		return err
	}
	allMoments := make([]*moments, len(vars))
	for ii, v := range vars {
		var err error
		allMoments[ii], err = o.getMoments(v)
		if err != nil {
			return err
		}
	}

	o.step++
	t := float64(o.step)
	beta1, beta2 := o.config.beta1, o.config.beta2
	debias1 := 1 - math.Pow(beta1, t)
	debias2 := 1 - math.Pow(beta2, t)
	lr, eps := o.config.learningRate, o.config.epsilon
	for ii, v := range vars {
		mm := allMoments[ii]
		o.moments[v.Name] = mm
		g := grads[v.Name].RawMatrix()
		values := v.Value.RawMatrix()
		m1, m2 := mm.m1.RawMatrix(), mm.m2.RawMatrix()
		rows, cols := v.Value.Dims()
		for row := range rows {
			for col := range cols {
				gIdx := row*g.Stride + col
				vIdx := row*values.Stride + col
				m1Idx := row*m1.Stride + col
				m2Idx := row*m2.Stride + col
				grad := g.Data[gIdx]
				m1.Data[m1Idx] = beta1*m1.Data[m1Idx] + (1-beta1)*grad
				if o.config.adamax {
					m2.Data[m2Idx] = math.Max(beta2*m2.Data[m2Idx], math.Abs(grad))
					values.Data[vIdx] -= lr / debias1 * m1.Data[m1Idx] / (m2.Data[m2Idx] + eps)
				} else {
					m2.Data[m2Idx] = beta2*m2.Data[m2Idx] + (1-beta2)*grad*grad
					mHat := m1.Data[m1Idx] / debias1
					vHat := m2.Data[m2Idx] / debias2
					values.Data[vIdx] -= lr * mHat / (math.Sqrt(vHat) + eps)
				}
			}
		}
	}
	return nil
}

// State implements Interface. Slots are sorted by variable name, first moment before the second.
func (o *adam) State() *State {
	state := &State{Optimizer: o.Name(), Step: o.step}
	names := maps.Keys(o.moments)
	slices.Sort(names)
	for _, name := range names {
		mm := o.moments[name]
		state.Slots = append(state.Slots,
			&nn.Variable{Name: SlotName(name, firstMomentSlot), Value: mat.DenseCopyOf(mm.m1)},
			&nn.Variable{Name: SlotName(name, secondMomentSlot), Value: mat.DenseCopyOf(mm.m2)})
	}
	return state
}

// SetState implements Interface.
//
// Slots whose dimensions don't match their variable are only detected on the next Step.
func (o *adam) SetState(state *State) error {
	if state == nil || state.Optimizer != o.Name() {
		return failures.Errorf(failures.KindConfiguration, "can't restore state %s into optimizer %q", describeState(state), o.Name())
	}
	slots := make(map[string]*mat.Dense, len(state.Slots))
	for _, slot := range state.Slots {
		if slot == nil || slot.Value == nil || slot.Value.IsEmpty() {
			return failures.Errorf(failures.KindIO, "optimizer %q state has an empty slot", o.Name())
		}
		slots[slot.Name] = slot.Value
	}
	newMoments := make(map[string]*moments, len(slots)/2)
	for name, value := range slots {
		for _, suffix := range []string{firstMomentSlot, secondMomentSlot} {
			varName, found := strings.CutSuffix(name, "_"+suffix)
			if !found {
				continue
			}
			mm := newMoments[varName]
			if mm == nil {
				mm = &moments{}
				newMoments[varName] = mm
			}
			if suffix == firstMomentSlot {
				mm.m1 = mat.DenseCopyOf(value)
			} else {
				mm.m2 = mat.DenseCopyOf(value)
			}
		}
	}
	for varName, mm := range newMoments {
		if mm.m1 == nil || mm.m2 == nil {
			return failures.Errorf(failures.KindIO, "optimizer %q state for variable %q is missing one of its moments", o.Name(), varName)
		}
	}
	if len(newMoments)*2 != len(state.Slots) {
		return failures.Errorf(failures.KindIO, "optimizer %q state has unknown slots: %v", o.Name(), state.Slots)
	}
	o.step = state.Step
	o.moments = newMoments
	return nil
}

// Clear implements Interface.
func (o *adam) Clear() {
	o.step = 0
	o.moments = make(map[string]*moments)
}
