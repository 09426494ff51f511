// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package activations

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestApply(t *testing.T) {
	z := mat.NewDense(1, 3, []float64{-1, 0, 2})
	assert.Equal(t, []float64{0, 0, 2}, Apply(TypeRelu, z).RawRowView(0))
	assert.Equal(t, []float64{-1, 0, 2}, Apply(TypeNone, z).RawRowView(0))

	sig := Apply(TypeSigmoid, z).RawRowView(0)
	assert.InDelta(t, 0.2689414213699951, sig[0], 1e-12)
	assert.InDelta(t, 0.5, sig[1], 1e-12)
	assert.InDelta(t, 0.8807970779778823, sig[2], 1e-12)

	soft := Apply(TypeSoftmax, z).RawRowView(0)
	var sum float64
	for _, v := range soft {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, soft[2], soft[1])

	// Input is not modified.
	assert.Equal(t, []float64{-1, 0, 2}, z.RawRowView(0))

	// No overflow for large values.
	assert.Equal(t, 0.0, Sigmoid(-1000))
	assert.Equal(t, 1.0, Sigmoid(1000))
	assert.InDelta(t, 1000+math.Log(2), LogSumExp([]float64{1000, 1000}), 1e-9)
}

// numericGrad computes the gradient of sum(dY ⊙ Apply(z)) with respect to z by central differences.
func numericGrad(activation Type, z, dY *mat.Dense) *mat.Dense {
	const eps = 1e-6
	rows, cols := z.Dims()
	grad := mat.NewDense(rows, cols, nil)
	for i := range rows {
		for j := range cols {
			orig := z.At(i, j)
			z.Set(i, j, orig+eps)
			plus := mat.Dot(mat.NewVecDense(rows*cols, Apply(activation, z).RawMatrix().Data), mat.NewVecDense(rows*cols, dY.RawMatrix().Data))
			z.Set(i, j, orig-eps)
			minus := mat.Dot(mat.NewVecDense(rows*cols, Apply(activation, z).RawMatrix().Data), mat.NewVecDense(rows*cols, dY.RawMatrix().Data))
			z.Set(i, j, orig)
			grad.Set(i, j, (plus-minus)/(2*eps))
		}
	}
	return grad
}

func TestBackward(t *testing.T) {
	for _, activation := range TypeValues() {
		t.Run(activation.String(), func(t *testing.T) {
			// Values away from 0, where ReLU is not differentiable.
			z := mat.NewDense(2, 3, []float64{-1.5, 0.3, 2, 0.7, -0.2, 1.1})
			dY := mat.NewDense(2, 3, []float64{0.5, -1, 0.25, 1, 2, -0.5})
			y := Apply(activation, z)
			got := Backward(activation, z, y, dY)
			want := numericGrad(activation, z, dY)
			require.True(t, mat.EqualApprox(got, want, 1e-6), "got %v, want %v", mat.Formatted(got), mat.Formatted(want))
		})
	}
}

func TestFromName(t *testing.T) {
	assert.Equal(t, TypeNone, FromName(""))
	assert.Equal(t, TypeSigmoid, FromName("sigmoid"))
	assert.Panics(t, func() { _ = FromName("gelu") })

	var ty Type
	require.NoError(t, ty.UnmarshalText([]byte("relu")))
	assert.Equal(t, TypeRelu, ty)
}
