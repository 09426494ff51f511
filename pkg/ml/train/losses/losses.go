// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package losses implements the losses used to train models. They all implement LossFn and can be
// used by train.Trainer.
package losses

import (
	"math"

	"github.com/gomlx/sonar/pkg/ml/layers/activations"
	"github.com/gomlx/sonar/pkg/support/failures"
	"gonum.org/v1/gonum/mat"
)

// LossFn takes the model predictions, shaped [B, O], and the integer labels, one per row, and returns
// the mean loss over the batch and the gradient of that mean loss with respect to predictions.
type LossFn func(predictions *mat.Dense, labels []int) (loss float64, grad *mat.Dense, err error)

// checkLabels returns a failures.ErrDataFormat if the labels don't match the predictions.
func checkLabels(predictions *mat.Dense, labels []int) (rows, cols int, err error) {
	if predictions == nil || predictions.IsEmpty() {
		return 0, 0, failures.Errorf(failures.KindDataFormat, "empty predictions")
	}
	rows, cols = predictions.Dims()
	if len(labels) != rows {
		return 0, 0, failures.Errorf(failures.KindDataFormat, "%d labels given for %d predictions", len(labels), rows)
	}
	for ii, label := range labels {
		if label < 0 || label >= cols {
			return 0, 0, failures.Errorf(failures.KindDataFormat, "label #%d is %d, out of range [0, %d)", ii, label, cols)
		}
	}
	return
}

// CrossEntropy treats each row of predictions as unnormalized logits:
//
//	loss = mean_b( logsumexp(predictions[b]) - predictions[b, labels[b]] )
//	grad = (softmax(predictions) - onehot(labels)) / B
//
// Notice that when the model output already went through a bounded activation (e.g. sigmoid), this is
// still what is computed: the logits are then confined to [0, 1] and the loss can't go below ~0.31 for
// two classes.
//
// Labels outside [0, O) return a failures.ErrDataFormat.
func CrossEntropy(predictions *mat.Dense, labels []int) (loss float64, grad *mat.Dense, err error) {
	rows, cols, err := checkLabels(predictions, labels)
	if err != nil {
		return 0, nil, err
	}
	grad = mat.NewDense(rows, cols, nil)
	batchSize := float64(rows)
	for row := range rows {
		logits := predictions.RawRowView(row)
		label := labels[row]
		loss += activations.LogSumExp(logits) - logits[label]
		gradRow := grad.RawRowView(row)
		copy(gradRow, logits)
		activations.SoftmaxInPlace(gradRow)
		gradRow[label] -= 1
		for ii := range gradRow {
			gradRow[ii] /= batchSize
		}
	}
	loss /= batchSize
	return
}

// IsFinite returns whether loss is neither NaN nor ±Inf.
func IsFinite(loss float64) bool {
	return !math.IsNaN(loss) && !math.IsInf(loss, 0)
}
