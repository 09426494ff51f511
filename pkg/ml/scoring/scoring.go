// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scoring applies a trained model to the feature rows of a store that don't have a
// prediction yet, and appends the predictions back to the store.
//
// Scoring is incremental: each pass only sees the delta of unscored rows, so re-running a pass
// after a failure doesn't score any row twice.
package scoring

import (
	"context"
	"time"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/ml/nn"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// FeatureRow is one sonar return in the store.
type FeatureRow struct {
	ID       int64
	Features []float64
}

// Prediction for one FeatureRow.
type Prediction struct {
	FeatureID int64
	Label     labels.Label

	// PositiveProbability is the model output for the labels.Positive class.
	PositiveProbability float64
}

// Store holds feature rows and their predictions.
type Store interface {
	// Unscored returns the feature rows that have no prediction, ordered by ID.
	Unscored(ctx context.Context) ([]FeatureRow, error)

	// Append stores the predictions.
	Append(ctx context.Context, predictions []Prediction) error
}

// Report summarizes a scoring pass.
type Report struct {
	// RunID identifies the pass in the logs.
	RunID uuid.UUID

	NumScored, NumBatches int
	Elapsed               time.Duration
}

// Score scores all unscored rows of the store with the model, batchSize rows at a time
// (batchSize <= 0 scores everything in one batch).
//
// Predictions are appended to the store after each batch, so if a batch fails, the previous
// ones are kept and the next pass resumes from the failing one.
func Score(ctx context.Context, model nn.Forwardable, store Store, batchSize int) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.New()}
	rows, err := store.Unscored(ctx)
	if err != nil {
		return report, errors.WithMessagef(err, "scoring run %s: failed to read unscored rows", report.RunID)
	}
	if len(rows) == 0 {
		klog.Infof("scoring run %s: nothing to score", report.RunID)
		return report, nil
	}
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	for batchStart := 0; batchStart < len(rows); batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrapf(err, "scoring run %s interrupted after %d rows", report.RunID, report.NumScored)
		}
		batch := rows[batchStart:min(batchStart+batchSize, len(rows))]
		predictions, err := Predict(model, batch)
		if err != nil {
			return report, errors.WithMessagef(err, "scoring run %s, batch #%d", report.RunID, report.NumBatches)
		}
		if err := store.Append(ctx, predictions); err != nil {
			return report, errors.WithMessagef(err, "scoring run %s: failed to store predictions of batch #%d",
				report.RunID, report.NumBatches)
		}
		report.NumBatches++
		report.NumScored += len(predictions)
		klog.V(1).Infof("scoring run %s: batch #%d scored %d rows", report.RunID, report.NumBatches, len(predictions))
	}
	report.Elapsed = time.Since(start)
	klog.Infof("scoring run %s: scored %d rows in %d batches (%s)", report.RunID, report.NumScored, report.NumBatches, report.Elapsed)
	return report, nil
}

// Predict applies the model to the rows. All rows must have the same number of features.
func Predict(model nn.Forwardable, rows []FeatureRow) ([]Prediction, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	numFeatures := len(rows[0].Features)
	x := mat.NewDense(len(rows), max(numFeatures, 1), nil)
	for ii, row := range rows {
		if len(row.Features) != numFeatures {
			return nil, failures.Errorf(failures.KindDataFormat, "feature row %d has %d features, expected %d",
				row.ID, len(row.Features), numFeatures)
		}
		copy(x.RawRowView(ii), row.Features)
	}
	output, err := model.Forward(x)
	if err != nil {
		return nil, err
	}
	if _, cols := output.Dims(); cols != labels.NumClasses {
		return nil, failures.Errorf(failures.KindShapeMismatch, "model has %d outputs, expected one per label (%d)",
			cols, labels.NumClasses)
	}
	predictions := make([]Prediction, len(rows))
	for ii, idx := range nn.Argmax(output) {
		predictions[ii] = Prediction{
			FeatureID:           rows[ii].ID,
			Label:               labels.Label(idx),
			PositiveProbability: output.At(ii, labels.Positive.Index()),
		}
	}
	return predictions, nil
}
