// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"github.com/gomlx/sonar/pkg/support/failures"
	"gonum.org/v1/gonum/mat"
)

// Batch of examples: one example per row of Features, and one class index per example in Labels.
type Batch struct {
	Features *mat.Dense
	Labels   []int
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	if b.Features == nil || b.Features.IsEmpty() {
		return 0
	}
	rows, _ := b.Features.Dims()
	return rows
}

// Validate returns a failures.ErrDataFormat if the batch is empty or the number of labels
// doesn't match the number of examples.
func (b Batch) Validate() error {
	n := b.Size()
	if n == 0 {
		return failures.Errorf(failures.KindDataFormat, "empty batch")
	}
	if len(b.Labels) != n {
		return failures.Errorf(failures.KindDataFormat, "batch has %d examples but %d labels", n, len(b.Labels))
	}
	return nil
}

// Dataset for a train.Trainer provides the data, one batch at a time.
//
// Datasets must be finite and restartable: the Trainer calls Reset and then Yield until io.EOF,
// once per epoch for each phase.
type Dataset interface {
	// Name identifies the dataset. Used for debugging and pretty-printing.
	Name() string

	// Reset restarts the dataset from the beginning.
	Reset()

	// Yield one batch. At the end of the data it returns io.EOF, and any other error interrupts
	// the training.
	Yield() (Batch, error)
}
