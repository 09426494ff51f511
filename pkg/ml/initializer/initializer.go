// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package initializer provides the initial values of model parameters.
//
// All random initializers draw from an explicit *rand.Rand, so a model created twice with
// generators seeded identically has identical parameters.
package initializer

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Initializer creates a new rows×cols matrix with its initial values.
type Initializer func(rows, cols int) *mat.Dense

// Zero initializes variables with zero.
var Zero Initializer = func(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}

// NewRNG returns a deterministic random number generator for the given seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Uniform returns an initializer that generates random uniform values from [minValue, maxValue).
//
// Values are drawn in row-major order.
func Uniform(rng *rand.Rand, minValue, maxValue float64) Initializer {
	return func(rows, cols int) *mat.Dense {
		data := make([]float64, rows*cols)
		for ii := range data {
			data[ii] = minValue + rng.Float64()*(maxValue-minValue)
		}
		return mat.NewDense(rows, cols, data)
	}
}

// FanInUniform returns an initializer that draws from U(-1/√fanIn, 1/√fanIn), where fanIn is
// the number of rows of the matrix being initialized (the input dimension of a x·W product).
//
// It is the default initialization of linear layers in most frameworks.
func FanInUniform(rng *rand.Rand) Initializer {
	return func(rows, cols int) *mat.Dense {
		limit := 1.0 / math.Sqrt(float64(max(rows, 1)))
		return Uniform(rng, -limit, limit)(rows, cols)
	}
}
