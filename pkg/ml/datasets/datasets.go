// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets loads the sonar data from CSV files, splits it into train and test sets, and
// serves it to the train.Trainer with InMemoryDataset.
package datasets

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/sonar/pkg/ml/labels"
)

// NumSonarFeatures is the number of frequency bands of each sonar return.
const NumSonarFeatures = 60

// Data is a set of examples and their labels.
type Data struct {
	Features [][]float64
	Labels   []labels.Label
}

// NumExamples in the data.
func (d *Data) NumExamples() int { return len(d.Labels) }

// ClassDistribution counts the examples of each label.
func ClassDistribution(ls []labels.Label) map[labels.Label]int {
	counts := make(map[labels.Label]int, labels.NumClasses)
	for _, l := range ls {
		counts[l]++
	}
	return counts
}

// FormatDistribution pretty-prints a class distribution, e.g. "M:111 R:97".
func FormatDistribution(counts map[labels.Label]int) string {
	parts := make([]string, 0, len(counts))
	for l, count := range counts {
		parts = append(parts, fmt.Sprintf("%s:%d", l, count))
	}
	slices.Sort(parts)
	return strings.Join(parts, " ")
}
