// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mlp implements a two-layer feed-forward classifier:
//
//	h = ReLU(x·W1 + b1)    // [B, hidden]
//	y = φ(h·W2 + b2)       // [B, outputs]
//
// where φ is the configured output activation (sigmoid by default).
//
// The backward pass is computed explicitly, so the model can be trained by the train package.
package mlp

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/sonar/pkg/ml/initializer"
	"github.com/gomlx/sonar/pkg/ml/layers/activations"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Names of the model variables, in the order returned by Model.Variables.
const (
	W1 = "w1"
	B1 = "b1"
	W2 = "w2"
	B2 = "b2"
)

// VariableNames lists the model variables in order.
var VariableNames = []string{W1, B1, W2, B2}

// Config of the model shapes and output activation.
type Config struct {
	InputSize        int              `yaml:"input_size" json:"input_size"`
	HiddenSize       int              `yaml:"hidden_size" json:"hidden_size"`
	OutputSize       int              `yaml:"output_size" json:"output_size"`
	OutputActivation activations.Type `yaml:"output_activation" json:"output_activation"`
}

// DefaultConfig for the sonar data: 60 frequency bands, 40 hidden units, 2 classes and a
// sigmoid output.
func DefaultConfig() Config {
	return Config{
		InputSize:        60,
		HiddenSize:       40,
		OutputSize:       2,
		OutputActivation: activations.TypeSigmoid,
	}
}

// Validate returns a failures.ErrConfiguration if the sizes are not positive or the activation is unknown.
func (c Config) Validate() error {
	if c.InputSize <= 0 || c.HiddenSize <= 0 || c.OutputSize <= 0 {
		return failures.Errorf(failures.KindConfiguration,
			"model sizes must be positive, got input=%d, hidden=%d, output=%d", c.InputSize, c.HiddenSize, c.OutputSize)
	}
	if !c.OutputActivation.IsAType() {
		return failures.Errorf(failures.KindConfiguration, "unknown output activation %s", c.OutputActivation)
	}
	return nil
}

// Model is the two-layer classifier. It is not safe for concurrent use while being trained.
type Model struct {
	config         Config
	w1, b1, w2, b2 *nn.Variable
}

var _ nn.Differentiable = (*Model)(nil)

// New creates a model with weights drawn from U(-1/√fan_in, 1/√fan_in), using a generator seeded
// with seed, and zero biases.
//
// Two models created with the same config and seed are identical.
func New(config Config, seed uint64) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rng := initializer.NewRNG(seed)
	weights := initializer.FanInUniform(rng)
	m := &Model{
		config: config,
		w1:     &nn.Variable{Name: W1, Value: weights(config.InputSize, config.HiddenSize)},
		b1:     &nn.Variable{Name: B1, Value: initializer.Zero(1, config.HiddenSize)},
		w2:     &nn.Variable{Name: W2, Value: weights(config.HiddenSize, config.OutputSize)},
		b2:     &nn.Variable{Name: B2, Value: initializer.Zero(1, config.OutputSize)},
	}
	klog.V(2).Infof("created mlp model %+v with %d parameters (seed=%d)", config, nn.NumParameters(m.Variables()), seed)
	return m, nil
}

// MustNew is like New, but panics on error.
func MustNew(config Config, seed uint64) *Model {
	m, err := New(config, seed)
	if err != nil {
		exceptions.Panicf("mlp.MustNew(): %+v", err)
	}
	return m
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.config }

// Variables returns w1, b1, w2, b2.
func (m *Model) Variables() []*nn.Variable {
	return []*nn.Variable{m.w1, m.b1, m.w2, m.b2}
}

// SetVariables replaces the model variables by the ones given, matched by name.
//
// All four variables must be given, otherwise nothing is changed and a failures.ErrIO is returned
// (the variables normally come from a checkpoint). Shapes are not validated here.
func (m *Model) SetVariables(vars []*nn.Variable) error {
	byName := make(map[string]*nn.Variable, len(vars))
	for _, v := range vars {
		byName[v.Name] = v
	}
	for _, name := range VariableNames {
		if byName[name] == nil || byName[name].Value == nil {
			return failures.Errorf(failures.KindIO, "variable %q missing, got variables %v", name, vars)
		}
	}
	if len(byName) != len(VariableNames) {
		return failures.Errorf(failures.KindIO, "unexpected variables %v, the model only has %q", vars, VariableNames)
	}
	m.w1, m.b1, m.w2, m.b2 = byName[W1], byName[B1], byName[W2], byName[B2]
	return nil
}

// checkVariables verifies the variable shapes against the configuration.
func (m *Model) checkVariables() error {
	c := m.config
	if err := nn.CheckDims("variable "+W1, m.w1.Value, c.InputSize, c.HiddenSize); err != nil {
		return err
	}
	if err := nn.CheckDims("variable "+B1, m.b1.Value, 1, c.HiddenSize); err != nil {
		return err
	}
	if err := nn.CheckDims("variable "+W2, m.w2.Value, c.HiddenSize, c.OutputSize); err != nil {
		return err
	}
	return nn.CheckDims("variable "+B2, m.b2.Value, 1, c.OutputSize)
}

// trace of a forward pass.
type trace struct {
	x, z1, h, z2, y *mat.Dense
}

// Output implements nn.Trace.
func (t *trace) Output() *mat.Dense { return t.y }

// Forward evaluates the model on the batch x, shaped [B, InputSize], and returns [B, OutputSize].
//
// It returns a failures.ErrShapeMismatch if x or the model variables don't match the configuration.
func (m *Model) Forward(x *mat.Dense) (*mat.Dense, error) {
	t, err := m.ForwardTrace(x)
	if err != nil {
		return nil, err
	}
	return t.Output(), nil
}

// ForwardTrace implements nn.Differentiable.
func (m *Model) ForwardTrace(x *mat.Dense) (nn.Trace, error) {
	if err := m.checkVariables(); err != nil {
		return nil, err
	}
	if err := nn.CheckDims("input", x, -1, m.config.InputSize); err != nil {
		return nil, err
	}
	var t *trace
	err := exceptions.TryCatch[error](func() {
		t = &trace{x: x}
		t.z1 = nn.Linear(x, m.w1.Value, m.b1.Value)
		t.h = activations.Apply(activations.TypeRelu, t.z1)
		t.z2 = nn.Linear(t.h, m.w2.Value, m.b2.Value)
		t.y = activations.Apply(m.config.OutputActivation, t.z2)
	})
	if err != nil {
		return nil, failures.Wrapf(failures.KindShapeMismatch, err, "mlp forward")
	}
	return t, nil
}

// Backward implements nn.Differentiable. It returns gradients for w1, b1, w2 and b2.
func (m *Model) Backward(tr nn.Trace, outputGrad *mat.Dense) (nn.Gradients, error) {
	t, ok := tr.(*trace)
	if !ok || t == nil {
		return nil, errors.Errorf("mlp.Backward() requires a trace created by mlp.ForwardTrace, got %T", tr)
	}
	rows, _ := t.y.Dims()
	if err := nn.CheckDims("output gradient", outputGrad, rows, m.config.OutputSize); err != nil {
		return nil, err
	}
	var grads nn.Gradients
	err := exceptions.TryCatch[error](func() {
		dZ2 := activations.Backward(m.config.OutputActivation, t.z2, t.y, outputGrad)
		dH, dW2, dB2 := nn.LinearBackward(t.h, m.w2.Value, dZ2)
		dZ1 := activations.Backward(activations.TypeRelu, t.z1, t.h, dH)
		_, dW1, dB1 := nn.LinearBackward(t.x, m.w1.Value, dZ1)
		grads = nn.Gradients{W1: dW1, B1: dB1, W2: dW2, B2: dB2}
	})
	if err != nil {
		return nil, failures.Wrapf(failures.KindShapeMismatch, err, "mlp backward")
	}
	return grads, nil
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	vars := nn.CloneVariables(m.Variables())
	return &Model{config: m.config, w1: vars[0], b1: vars[1], w2: vars[2], b2: vars[3]}
}
