// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"math/rand/v2"

	"github.com/gomlx/sonar/pkg/ml/initializer"
	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/ml/train"
	"github.com/gomlx/sonar/pkg/support/failures"
	"gonum.org/v1/gonum/mat"
)

// InMemoryDataset serves examples held in memory, in batches, optionally shuffled at every Reset.
//
// It implements train.Dataset.
type InMemoryDataset struct {
	name        string
	features    []float64 // row-major, numExamples × numFeatures.
	labels      []int
	numFeatures int

	batchSize int
	rng       *rand.Rand // nil if not shuffling.
	order     []int
	next      int
}

var _ train.Dataset = (*InMemoryDataset)(nil)

// InMemoryFromData creates a dataset from the given examples. All examples must have the same number of
// features, and there must be one label per example, otherwise a failures.ErrDataFormat is returned.
//
// The dataset is initially not shuffled and yields the whole data in one batch (see BatchSize).
func InMemoryFromData(name string, data *Data) (*InMemoryDataset, error) {
	if data == nil || len(data.Features) == 0 {
		return nil, failures.Errorf(failures.KindDataFormat, "dataset %q has no examples", name)
	}
	if len(data.Features) != len(data.Labels) {
		return nil, failures.Errorf(failures.KindDataFormat, "dataset %q has %d examples but %d labels",
			name, len(data.Features), len(data.Labels))
	}
	numFeatures := len(data.Features[0])
	mds := &InMemoryDataset{
		name:        name,
		features:    make([]float64, 0, len(data.Features)*numFeatures),
		labels:      make([]int, len(data.Labels)),
		numFeatures: numFeatures,
		order:       make([]int, len(data.Labels)),
	}
	for ii, row := range data.Features {
		if len(row) != numFeatures {
			return nil, failures.Errorf(failures.KindDataFormat, "dataset %q: example #%d has %d features, expected %d",
				name, ii, len(row), numFeatures)
		}
		mds.features = append(mds.features, row...)
	}
	for ii, l := range data.Labels {
		if !l.IsValid() {
			return nil, failures.Errorf(failures.KindDataFormat, "dataset %q: example #%d has invalid label %d", name, ii, int(l))
		}
		mds.labels[ii] = l.Index()
		mds.order[ii] = ii
	}
	return mds, nil
}

// BatchSize configures the number of examples per batch. The last batch of an epoch may be smaller.
// A value <= 0 yields all examples in a single batch.
func (mds *InMemoryDataset) BatchSize(batchSize int) *InMemoryDataset {
	mds.batchSize = batchSize
	return mds
}

// Shuffle configures the dataset to visit the examples in a new random order after every Reset,
// using a generator seeded with seed.
func (mds *InMemoryDataset) Shuffle(seed uint64) *InMemoryDataset {
	mds.rng = initializer.NewRNG(seed)
	mds.Reset()
	return mds
}

// Name implements train.Dataset.
func (mds *InMemoryDataset) Name() string { return mds.name }

// NumExamples in the dataset.
func (mds *InMemoryDataset) NumExamples() int { return len(mds.labels) }

// NumFeatures of each example.
func (mds *InMemoryDataset) NumFeatures() int { return mds.numFeatures }

// NumBatches per epoch.
func (mds *InMemoryDataset) NumBatches() int {
	n := mds.NumExamples()
	if mds.batchSize <= 0 || mds.batchSize >= n {
		return 1
	}
	return (n + mds.batchSize - 1) / mds.batchSize
}

// Reset implements train.Dataset.
func (mds *InMemoryDataset) Reset() {
	mds.next = 0
	if mds.rng != nil {
		mds.rng.Shuffle(len(mds.order), func(i, j int) {
			mds.order[i], mds.order[j] = mds.order[j], mds.order[i]
		})
	}
}

// Yield implements train.Dataset.
func (mds *InMemoryDataset) Yield() (train.Batch, error) {
	n := mds.NumExamples()
	if mds.next >= n {
		return train.Batch{}, io.EOF
	}
	size := n - mds.next
	if mds.batchSize > 0 {
		size = min(size, mds.batchSize)
	}
	batch := train.Batch{
		Features: mat.NewDense(size, mds.numFeatures, nil),
		Labels:   make([]int, size),
	}
	for ii := range size {
		idx := mds.order[mds.next+ii]
		copy(batch.Features.RawRowView(ii), mds.features[idx*mds.numFeatures:(idx+1)*mds.numFeatures])
		batch.Labels[ii] = mds.labels[idx]
	}
	mds.next += size
	return batch, nil
}

// Labels returns the labels of the dataset, in their original order.
func (mds *InMemoryDataset) Labels() []labels.Label {
	ls := make([]labels.Label, len(mds.labels))
	for ii, l := range mds.labels {
		ls[ii] = labels.Label(l)
	}
	return ls
}
