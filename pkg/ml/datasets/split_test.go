// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"testing"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStratifiedSplit(t *testing.T) {
	// 30 rocks and 20 mines.
	data := &Data{}
	for ii := range 50 {
		l := labels.Rock
		if ii >= 30 {
			l = labels.Mine
		}
		data.Features = append(data.Features, []float64{float64(ii)})
		data.Labels = append(data.Labels, l)
	}
	split, err := StratifiedSplit(data, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, 40, split.Train.NumExamples())
	assert.Equal(t, 10, split.Test.NumExamples())
	assert.Equal(t, map[labels.Label]int{labels.Rock: 6, labels.Mine: 4}, ClassDistribution(split.Test.Labels))
	assert.Equal(t, map[labels.Label]int{labels.Rock: 24, labels.Mine: 16}, ClassDistribution(split.Train.Labels))

	// Every example lands in exactly one of the sets, in its original relative order.
	seen := make(map[float64]bool)
	for _, set := range []*Data{split.Train, split.Test} {
		last := -1.0
		for ii, row := range set.Features {
			assert.Greater(t, row[0], last)
			last = row[0]
			assert.False(t, seen[row[0]])
			seen[row[0]] = true
			assert.Equal(t, data.Labels[int(row[0])], set.Labels[ii])
		}
	}
	assert.Len(t, seen, 50)

	again, err := StratifiedSplit(data, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, split, again)

	_, err = StratifiedSplit(data, 1.0, 42)
	assert.ErrorIs(t, err, failures.ErrConfiguration)
	_, err = StratifiedSplit(&Data{}, 0.2, 42)
	assert.ErrorIs(t, err, failures.ErrDataFormat)
}

func TestSaveAndLoadSplit(t *testing.T) {
	split, err := StratifiedSplit(toyData(10, 4), 0.2, 1)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, SaveSplit(dir, split))

	loaded, err := LoadSplit(dir, 4)
	require.NoError(t, err)
	assert.Equal(t, split.Train.Labels, loaded.Train.Labels)
	assert.Equal(t, split.Test.Labels, loaded.Test.Labels)
	require.Len(t, loaded.Test.Features, 2)
	for ii := range split.Test.Features {
		assert.InDeltaSlice(t, split.Test.Features[ii], loaded.Test.Features[ii], 1e-6)
	}

	_, err = LoadSplit(dir, 5)
	assert.ErrorIs(t, err, failures.ErrDataFormat)
}
