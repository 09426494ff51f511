// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math"

	"github.com/gomlx/sonar/pkg/support/failures"
)

// ConfusionMatrix counts, for each true class (row), how many examples were predicted as each class (column).
type ConfusionMatrix struct {
	NumClasses int
	Counts     [][]int
}

// NewConfusionMatrix returns an empty confusion matrix.
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	cm := &ConfusionMatrix{NumClasses: numClasses}
	cm.Reset()
	return cm
}

// Reset all counts to zero.
func (cm *ConfusionMatrix) Reset() {
	cm.Counts = make([][]int, cm.NumClasses)
	for ii := range cm.Counts {
		cm.Counts[ii] = make([]int, cm.NumClasses)
	}
}

// Add the predictions and labels to the counts.
func (cm *ConfusionMatrix) Add(predictions, labels []int) error {
	for ii, p := range predictions {
		l := labels[ii]
		if p < 0 || p >= cm.NumClasses || l < 0 || l >= cm.NumClasses {
			return failures.Errorf(failures.KindDataFormat,
				"confusion matrix: prediction %d / label %d out of range [0, %d)", p, l, cm.NumClasses)
		}
	}
	for ii, p := range predictions {
		cm.Counts[labels[ii]][p]++
	}
	return nil
}

// Total number of examples counted.
func (cm *ConfusionMatrix) Total() int {
	var total int
	for _, row := range cm.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// F1 returns the F1 score of the class: 2·TP / (2·TP + FP + FN).
// It returns NaN if the class never appears in labels or predictions.
func (cm *ConfusionMatrix) F1(class int) float64 {
	tp := cm.Counts[class][class]
	var fp, fn int
	for other := range cm.NumClasses {
		if other == class {
			continue
		}
		fp += cm.Counts[other][class]
		fn += cm.Counts[class][other]
	}
	denominator := 2*tp + fp + fn
	if denominator == 0 {
		return math.NaN()
	}
	return 2 * float64(tp) / float64(denominator)
}

// MacroF1 is the mean F1 over the classes present in labels or predictions. It is 0 if nothing was counted.
func (cm *ConfusionMatrix) MacroF1() float64 {
	var sum float64
	var count int
	for class := range cm.NumClasses {
		f1 := cm.F1(class)
		if math.IsNaN(f1) {
			continue
		}
		sum += f1
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
