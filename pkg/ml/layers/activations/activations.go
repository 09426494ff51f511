// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations implements the activations used by the models, over gonum matrices, along with
// their backward (gradient) functions.
//
// Use FromName (or the generated TypeString) to convert an activation name to its type.
package activations

import (
	"math"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/mat"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeSigmoid -> "sigmoid"), and implements
// encoding.TextMarshaler and encoding.TextUnmarshaler, so it can be used directly in configuration files.
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeSigmoid
	TypeTanh

	// TypeSoftmax is applied over each row (the last axis).
	TypeSoftmax
)

//go:generate go tool enumer -type Type -trimprefix=Type -transform=snake -text -output=gen_type_enumer.go activations.go

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// An empty string is converted to TypeNone.
func FromName(activationName string) Type {
	if activationName == "" {
		return TypeNone
	}
	t, err := TypeString(activationName)
	if err != nil {
		exceptions.Panicf("can't find activation type %q, valid values are %q", activationName, TypeStrings())
	}
	return t
}

// Apply the given activation type to z, returning a new matrix.
// The TypeNone activation returns a copy of z.
func Apply(activation Type, z *mat.Dense) *mat.Dense {
	var y mat.Dense
	switch activation {
	case TypeNone:
		y.CloneFrom(z)
	case TypeRelu:
		y.Apply(func(_, _ int, v float64) float64 { return Relu(v) }, z)
	case TypeSigmoid:
		y.Apply(func(_, _ int, v float64) float64 { return Sigmoid(v) }, z)
	case TypeTanh:
		y.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
	case TypeSoftmax:
		y.CloneFrom(z)
		rows, _ := y.Dims()
		for row := range rows {
			SoftmaxInPlace(y.RawRowView(row))
		}
	default:
		exceptions.Panicf("activations.Apply(): unsupported activation type %s", activation)
	}
	return &y
}

// Backward returns the gradient with respect to the pre-activation z, given the pre-activation z,
// the activation output y = Apply(activation, z) and the gradient dY with respect to y.
func Backward(activation Type, z, y, dY *mat.Dense) *mat.Dense {
	var dZ mat.Dense
	switch activation {
	case TypeNone:
		dZ.CloneFrom(dY)
	case TypeRelu:
		// Sub-gradient 0 at z == 0.
		dZ.Apply(func(i, j int, g float64) float64 {
			if z.At(i, j) > 0 {
				return g
			}
			return 0
		}, dY)
	case TypeSigmoid:
		dZ.Apply(func(i, j int, g float64) float64 {
			s := y.At(i, j)
			return g * s * (1 - s)
		}, dY)
	case TypeTanh:
		dZ.Apply(func(i, j int, g float64) float64 {
			t := y.At(i, j)
			return g * (1 - t*t)
		}, dY)
	case TypeSoftmax:
		dZ.CloneFrom(dY)
		rows, cols := dZ.Dims()
		for row := range rows {
			var dot float64
			for col := range cols {
				dot += dY.At(row, col) * y.At(row, col)
			}
			for col := range cols {
				dZ.Set(row, col, y.At(row, col)*(dY.At(row, col)-dot))
			}
		}
	default:
		exceptions.Panicf("activations.Backward(): unsupported activation type %s", activation)
	}
	return &dZ
}

// Relu returns max(x, 0).
func Relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Sigmoid returns 1/(1+exp(-x)), computed in a numerically stable way for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// SoftmaxInPlace replaces the values in row by their softmax.
func SoftmaxInPlace(row []float64) {
	if len(row) == 0 {
		return
	}
	maxValue := row[0]
	for _, v := range row[1:] {
		maxValue = max(maxValue, v)
	}
	var sum float64
	for ii, v := range row {
		row[ii] = math.Exp(v - maxValue)
		sum += row[ii]
	}
	for ii := range row {
		row[ii] /= sum
	}
}

// LogSumExp returns log(Σ exp(row_i)), computed in a numerically stable way.
func LogSumExp(row []float64) float64 {
	if len(row) == 0 {
		return math.Inf(-1)
	}
	maxValue := row[0]
	for _, v := range row[1:] {
		maxValue = max(maxValue, v)
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(v - maxValue)
	}
	return maxValue + math.Log(sum)
}
