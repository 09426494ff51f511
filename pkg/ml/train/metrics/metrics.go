// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds the metrics computed during training and evaluation, and the History of
// their values per epoch.
package metrics

import (
	"fmt"
	"math"

	"github.com/gomlx/sonar/pkg/support/failures"
)

const (
	// LossMetricType is the type (and history key) of the average loss.
	LossMetricType = "loss"

	// AccuracyMetricType is the type (and history key) of the accuracy.
	AccuracyMetricType = "accuracy"

	// F1MetricType is the type (and history key) of the macro F1 score.
	F1MetricType = "f1"
)

// BatchResult is what metrics are updated with, after each batch is evaluated.
type BatchResult struct {
	// Loss is the mean loss over the batch.
	Loss float64

	// Predictions and Labels are the predicted and true class indices, one per example.
	Predictions, Labels []int
}

// Interface for a Metric, accumulated over the batches of one phase of an epoch.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is the key used for the metric in History.
	MetricType() string

	// Update the metric with the results of one batch.
	Update(result BatchResult) error

	// Value of the metric over all batches since the last Reset.
	Value() float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new phase.
	Reset()
}

// Defaults returns new instances of the metrics recorded in History for each phase: the mean loss,
// accuracy and macro F1.
func Defaults(numClasses int) []Interface {
	return []Interface{NewMeanLoss(), NewAccuracy(), NewMacroF1(numClasses)}
}

// MeanLoss is the average of the per-batch losses: running_loss / number_of_batches.
type MeanLoss struct {
	sum        float64
	numBatches int
}

// NewMeanLoss returns a new MeanLoss metric.
func NewMeanLoss() *MeanLoss { return &MeanLoss{} }

func (m *MeanLoss) Name() string       { return "Mean Loss" }
func (m *MeanLoss) ShortName() string  { return "loss" }
func (m *MeanLoss) MetricType() string { return LossMetricType }
func (m *MeanLoss) Reset()             { m.sum, m.numBatches = 0, 0 }

// Update implements Interface.
func (m *MeanLoss) Update(result BatchResult) error {
	m.sum += result.Loss
	m.numBatches++
	return nil
}

// NumBatches accumulated since the last Reset.
func (m *MeanLoss) NumBatches() int { return m.numBatches }

// Value implements Interface. It is NaN if there were no batches.
func (m *MeanLoss) Value() float64 {
	if m.numBatches == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.numBatches)
}

// PrettyPrint implements Interface.
func (m *MeanLoss) PrettyPrint(value float64) string { return fmt.Sprintf("%.4f", value) }

// Accuracy is the fraction of examples whose predicted class equals the label.
type Accuracy struct {
	correct, total int
}

// NewAccuracy returns a new Accuracy metric.
func NewAccuracy() *Accuracy { return &Accuracy{} }

func (m *Accuracy) Name() string       { return "Accuracy" }
func (m *Accuracy) ShortName() string  { return "acc" }
func (m *Accuracy) MetricType() string { return AccuracyMetricType }
func (m *Accuracy) Reset()             { m.correct, m.total = 0, 0 }

// Update implements Interface.
func (m *Accuracy) Update(result BatchResult) error {
	if err := checkResult(result); err != nil {
		return err
	}
	for ii, p := range result.Predictions {
		if p == result.Labels[ii] {
			m.correct++
		}
	}
	m.total += len(result.Labels)
	return nil
}

// Value implements Interface. It is 0 if there were no examples.
func (m *Accuracy) Value() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.correct) / float64(m.total)
}

// PrettyPrint implements Interface.
func (m *Accuracy) PrettyPrint(value float64) string { return fmt.Sprintf("%.2f%%", 100*value) }

// MacroF1 is the unweighted mean of the per-class F1 scores, over the classes that appear either in the
// labels or in the predictions.
type MacroF1 struct {
	confusion *ConfusionMatrix
}

// NewMacroF1 returns a new MacroF1 metric for the given number of classes.
func NewMacroF1(numClasses int) *MacroF1 {
	return &MacroF1{confusion: NewConfusionMatrix(numClasses)}
}

func (m *MacroF1) Name() string       { return "Macro F1" }
func (m *MacroF1) ShortName() string  { return "f1" }
func (m *MacroF1) MetricType() string { return F1MetricType }
func (m *MacroF1) Reset()             { m.confusion.Reset() }

// Update implements Interface.
func (m *MacroF1) Update(result BatchResult) error {
	if err := checkResult(result); err != nil {
		return err
	}
	return m.confusion.Add(result.Predictions, result.Labels)
}

// Value implements Interface.
func (m *MacroF1) Value() float64 { return m.confusion.MacroF1() }

// PrettyPrint implements Interface.
func (m *MacroF1) PrettyPrint(value float64) string { return fmt.Sprintf("%.4f", value) }

func checkResult(result BatchResult) error {
	if len(result.Predictions) != len(result.Labels) {
		return failures.Errorf(failures.KindDataFormat, "metrics: %d predictions for %d labels", len(result.Predictions), len(result.Labels))
	}
	return nil
}
