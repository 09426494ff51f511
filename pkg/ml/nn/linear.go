// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/sonar/pkg/support/failures"
	"gonum.org/v1/gonum/mat"
)

// CheckDims returns a failures.ErrShapeMismatch if m is not rows×cols.
// A negative rows accepts any number of rows.
func CheckDims(what string, m *mat.Dense, rows, cols int) error {
	if m == nil || m.IsEmpty() {
		return failures.Errorf(failures.KindShapeMismatch, "%s is empty, expected shape [%d, %d]", what, rows, cols)
	}
	r, c := m.Dims()
	if (rows >= 0 && r != rows) || c != cols {
		if rows < 0 {
			return failures.Errorf(failures.KindShapeMismatch, "%s has shape [%d, %d], expected [batch, %d]", what, r, c, cols)
		}
		return failures.Errorf(failures.KindShapeMismatch, "%s has shape [%d, %d], expected [%d, %d]", what, r, c, rows, cols)
	}
	return nil
}

// Linear performs a linear transformation: y = x·weight + bias.
//
// x has shape [B, in], weight has shape [in, out] and bias [1, out] (or nil for no bias).
// Shapes must have been checked by the caller.
func Linear(x, weight, bias *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Mul(x, weight)
	if bias != nil {
		b := bias.RawRowView(0)
		rows, _ := y.Dims()
		for row := range rows {
			yRow := y.RawRowView(row)
			for ii := range yRow {
				yRow[ii] += b[ii]
			}
		}
	}
	return &y
}

// LinearBackward returns the gradients of a Linear transformation, given its input x, weight and
// the gradient dY with respect to its output: dX = dY·weightᵀ, dWeight = xᵀ·dY, dBias = Σ_rows dY.
func LinearBackward(x, weight, dY *mat.Dense) (dX, dWeight, dBias *mat.Dense) {
	dX = &mat.Dense{}
	dX.Mul(dY, weight.T())
	dWeight = &mat.Dense{}
	dWeight.Mul(x.T(), dY)
	rows, cols := dY.Dims()
	dBias = mat.NewDense(1, cols, nil)
	b := dBias.RawRowView(0)
	for row := range rows {
		for col, g := range dY.RawRowView(row) {
			b[col] += g
		}
	}
	return
}

// Argmax returns the column index of the largest value of each row, the predicted class for
// classification outputs. Ties go to the lowest index.
func Argmax(output *mat.Dense) []int {
	rows, _ := output.Dims()
	predictions := make([]int, rows)
	for row := range rows {
		values := output.RawRowView(row)
		best := 0
		for col, v := range values {
			if v > values[best] {
				best = col
			}
		}
		predictions[row] = best
	}
	return predictions
}
