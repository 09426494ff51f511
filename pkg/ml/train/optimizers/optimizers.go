// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements the update rules that apply gradients to model variables.
//
// Optimizers keep their own state (e.g. Adam's moments), which can be exported with State and
// restored with SetState, so it can be saved in checkpoints.
package optimizers

import (
	"fmt"
	"slices"

	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/mat"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Name of the optimizer, as in KnownOptimizers. It is saved along with the State.
	Name() string

	// Step applies one update to vars, given the gradients for each of them (by name), and
	// increments the step counter by one.
	//
	// If the gradients don't match the variables, nothing is changed and a failures.ErrShapeMismatch
	// is returned.
	Step(vars []*nn.Variable, grads nn.Gradients) error

	// State returns a copy of the optimizer state.
	State() *State

	// SetState replaces the optimizer state by a copy of state.
	SetState(state *State) error

	// Clear resets the optimizer state, as if it was just created.
	Clear()
}

// State of an optimizer: the number of steps taken so far and its per-variable slots (e.g.: moments).
type State struct {
	// Optimizer name that created the state.
	Optimizer string

	// Step is the number of calls to Step so far.
	Step int64

	// Slots hold per-variable values, named after the variable they refer to (see SlotName).
	Slots []*nn.Variable
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{Optimizer: s.Optimizer, Step: s.Step, Slots: nn.CloneVariables(s.Slots)}
}

// SlotName returns the name of the slot for the given variable, e.g.: "w1_1st_moment".
func SlotName(variableName, slot string) string {
	return fmt.Sprintf("%s_%s", variableName, slot)
}

var (
	// KnownOptimizers is a map of known optimizers by name to their default constructors, given
	// the learning rate. A learning rate <= 0 selects the optimizer's default.
	KnownOptimizers = map[string]func(learningRate float64) Interface{
		"sgd":    func(lr float64) Interface { return StochasticGradientDescent().WithLearningRate(lr).Done() },
		"adam":   func(lr float64) Interface { return Adam().LearningRate(lr).Done() },
		"adamax": func(lr float64) Interface { return Adam().Adamax().LearningRate(lr).Done() },
	}

	// ParamOptimizer is the configuration parameter with the name of the optimizer.
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the configuration parameter name for the learning rate.
	ParamLearningRate = "learning_rate"
)

// Names returns the sorted names of the KnownOptimizers.
func Names() []string {
	names := maps.Keys(KnownOptimizers)
	slices.Sort(names)
	return names
}

// ByName returns one of the KnownOptimizers configured with the given learning rate,
// or a failures.ErrConfiguration if name is not known.
func ByName(name string, learningRate float64) (Interface, error) {
	constructor, found := KnownOptimizers[name]
	if !found {
		return nil, failures.Errorf(failures.KindConfiguration, "unknown optimizer %q, valid values are %q", name, Names())
	}
	return constructor(learningRate), nil
}

// checkGradients verifies there is a gradient with the right shape for each variable.
func checkGradients(vars []*nn.Variable, grads nn.Gradients) error {
	for _, v := range vars {
		grad, found := grads[v.Name]
		if !found || grad == nil {
			return failures.Errorf(failures.KindShapeMismatch, "no gradient for variable %q, got gradients for %q", v.Name, grads.Names())
		}
		dims := v.Dims()
		if err := nn.CheckDims("gradient of "+v.Name, grad, dims[0], dims[1]); err != nil {
			return err
		}
	}
	return nil
}

// SGDConfig holds the configuration of the plain stochastic gradient descent.
type SGDConfig struct {
	learningRate float64
}

// SGDDefaultLearningRate is the default learning rate used by the StochasticGradientDescent optimizer.
const SGDDefaultLearningRate = 0.1

// StochasticGradientDescent creates an optimizer that applies `var -= learning_rate * grad`.
func StochasticGradientDescent() *SGDConfig {
	return &SGDConfig{learningRate: SGDDefaultLearningRate}
}

// WithLearningRate sets the learning rate. Values <= 0 keep the default.
func (c *SGDConfig) WithLearningRate(learningRate float64) *SGDConfig {
	if learningRate > 0 {
		c.learningRate = learningRate
	}
	return c
}

// Done returns the configured optimizer.
func (c *SGDConfig) Done() Interface {
	return &sgd{config: *c}
}

type sgd struct {
	config SGDConfig
	step   int64
}

// Name implements Interface.
func (o *sgd) Name() string { return "sgd" }

// Step implements Interface.
func (o *sgd) Step(vars []*nn.Variable, grads nn.Gradients) error {
	if err := checkGradients(vars, grads); err != nil {
		return err
	}
	o.step++
	for _, v := range vars {
		var update mat.Dense
		update.Scale(o.config.learningRate, grads[v.Name])
		v.Value.Sub(v.Value, &update)
	}
	return nil
}

// State implements Interface. SGD has no slots.
func (o *sgd) State() *State {
	return &State{Optimizer: o.Name(), Step: o.step}
}

// SetState implements Interface.
func (o *sgd) SetState(state *State) error {
	if state == nil || state.Optimizer != o.Name() {
		return failures.Errorf(failures.KindConfiguration, "can't restore state %s into optimizer %q", describeState(state), o.Name())
	}
	o.step = state.Step
	return nil
}

// Clear implements Interface.
func (o *sgd) Clear() { o.step = 0 }

func describeState(state *State) string {
	if state == nil {
		return "<nil>"
	}
	return fmt.Sprintf("of optimizer %q (step %d)", state.Optimizer, state.Step)
}
