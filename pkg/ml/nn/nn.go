// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn holds the building blocks shared by models: named variables, gradients, the
// interfaces models implement and the linear transformation with its backward pass.
//
// Matrices are gonum *mat.Dense values. Batches are row-major: one example per row.
package nn

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Variable is a named model parameter.
//
// Biases are stored as 1×n matrices.
type Variable struct {
	Name  string
	Value *mat.Dense
}

// Dims returns the dimensions of the variable value.
func (v *Variable) Dims() []int {
	if v.Value == nil || v.Value.IsEmpty() {
		return []int{0, 0}
	}
	r, c := v.Value.Dims()
	return []int{r, c}
}

// Size returns the number of scalar values held by the variable.
func (v *Variable) Size() int {
	dims := v.Dims()
	return dims[0] * dims[1]
}

// Clone returns a deep copy of the variable.
func (v *Variable) Clone() *Variable {
	c := &Variable{Name: v.Name}
	if v.Value != nil && !v.Value.IsEmpty() {
		c.Value = mat.DenseCopyOf(v.Value)
	}
	return c
}

// String implements fmt.Stringer.
func (v *Variable) String() string {
	return fmt.Sprintf("%s%v", v.Name, v.Dims())
}

// NumParameters returns the total number of scalar values in vars.
func NumParameters(vars []*Variable) int {
	var n int
	for _, v := range vars {
		n += v.Size()
	}
	return n
}

// CloneVariables returns deep copies of vars.
func CloneVariables(vars []*Variable) []*Variable {
	clones := make([]*Variable, len(vars))
	for ii, v := range vars {
		clones[ii] = v.Clone()
	}
	return clones
}

// Gradients maps variable names to the gradient of the loss with respect to the variable.
// Each gradient has the same dimensions as its variable.
type Gradients map[string]*mat.Dense

// Names returns the sorted names of the variables with gradients.
func (g Gradients) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Forwardable is anything that maps a [B, inputs] batch to a [B, outputs] batch.
//
// Forward must be deterministic and free of side effects: this is all scoring needs from a model.
type Forwardable interface {
	Forward(x *mat.Dense) (*mat.Dense, error)
}

// Trace holds what a Differentiable model's backward pass needs from its forward pass.
type Trace interface {
	// Output of the forward pass, [B, outputs].
	Output() *mat.Dense
}

// Differentiable models can be trained: they expose their variables and compute gradients.
type Differentiable interface {
	Forwardable

	// Variables returns the model variables, in a fixed order. The returned variables are the live ones:
	// updating their values updates the model.
	Variables() []*Variable

	// SetVariables replaces all the model variables by the given ones (matched by name).
	// Shapes are not checked here; a mismatch surfaces on the next Forward.
	SetVariables(vars []*Variable) error

	// ForwardTrace is like Forward, but keeps the intermediary values needed by Backward.
	ForwardTrace(x *mat.Dense) (Trace, error)

	// Backward returns fresh gradients of the loss for every variable, given the gradient of the loss
	// with respect to the output of the forward pass that generated trace.
	Backward(trace Trace, outputGrad *mat.Dense) (Gradients, error)
}
