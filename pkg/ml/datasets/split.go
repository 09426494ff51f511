// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"math"
	"path/filepath"
	"slices"

	"github.com/gomlx/sonar/pkg/ml/initializer"
	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/support/failures"
	"k8s.io/klog/v2"
)

// Split of the data into train and test sets.
type Split struct {
	Train, Test *Data
}

// File names used by SaveSplit and LoadSplit.
const (
	TrainFeaturesFile = "X_train.csv"
	TestFeaturesFile  = "X_test.csv"
	TrainLabelsFile   = "y_train.csv"
	TestLabelsFile    = "y_test.csv"
)

// StratifiedSplit splits data into train and test sets keeping the class proportions: each class
// contributes round(testFraction·count) of its examples, chosen at random, to the test set.
//
// The split is deterministic for a given seed. Examples keep their relative order in both sets.
func StratifiedSplit(data *Data, testFraction float64, seed uint64) (*Split, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, failures.Errorf(failures.KindConfiguration, "test fraction must be in (0, 1), got %g", testFraction)
	}
	if data == nil || data.NumExamples() == 0 || len(data.Features) != data.NumExamples() {
		return nil, failures.Errorf(failures.KindDataFormat, "no examples to split, or features and labels don't match")
	}
	rng := initializer.NewRNG(seed)
	isTest := make([]bool, data.NumExamples())
	for _, class := range labels.Values() {
		var indices []int
		for ii, l := range data.Labels {
			if l == class {
				indices = append(indices, ii)
			}
		}
		numTest := int(math.Round(testFraction * float64(len(indices))))
		rng.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		for _, idx := range indices[:numTest] {
			isTest[idx] = true
		}
	}
	split := &Split{Train: &Data{}, Test: &Data{}}
	for ii, test := range isTest {
		target := split.Train
		if test {
			target = split.Test
		}
		target.Features = append(target.Features, slices.Clone(data.Features[ii]))
		target.Labels = append(target.Labels, data.Labels[ii])
	}
	klog.V(1).Infof("split %d examples: train=%d (%s), test=%d (%s)", data.NumExamples(),
		split.Train.NumExamples(), FormatDistribution(ClassDistribution(split.Train.Labels)),
		split.Test.NumExamples(), FormatDistribution(ClassDistribution(split.Test.Labels)))
	return split, nil
}

// SaveSplit writes the split to dir as X_train.csv, X_test.csv, y_train.csv and y_test.csv.
func SaveSplit(dir string, split *Split) error {
	if err := SaveFeaturesCSV(filepath.Join(dir, TrainFeaturesFile), split.Train.Features); err != nil {
		return err
	}
	if err := SaveFeaturesCSV(filepath.Join(dir, TestFeaturesFile), split.Test.Features); err != nil {
		return err
	}
	if err := SaveLabelsCSV(filepath.Join(dir, TrainLabelsFile), split.Train.Labels); err != nil {
		return err
	}
	return SaveLabelsCSV(filepath.Join(dir, TestLabelsFile), split.Test.Labels)
}

// LoadSplit reads a split written by SaveSplit.
func LoadSplit(dir string, numFeatures int) (*Split, error) {
	train, err := LoadData(filepath.Join(dir, TrainFeaturesFile), filepath.Join(dir, TrainLabelsFile), numFeatures)
	if err != nil {
		return nil, err
	}
	test, err := LoadData(filepath.Join(dir, TestFeaturesFile), filepath.Join(dir, TestLabelsFile), numFeatures)
	if err != nil {
		return nil, err
	}
	return &Split{Train: train, Test: test}, nil
}
