// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"context"
	"slices"
	"sync"

	"github.com/gomlx/sonar/pkg/support/failures"
)

// MemoryStore is a Store kept in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	rows        []FeatureRow
	predictions map[int64]Prediction
	nextID      int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{predictions: make(map[int64]Prediction), nextID: 1}
}

// ImportFeatures adds the feature rows to the store and returns their ids.
func (s *MemoryStore) ImportFeatures(_ context.Context, features [][]float64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, len(features))
	for ii, values := range features {
		ids[ii] = s.nextID
		s.rows = append(s.rows, FeatureRow{ID: s.nextID, Features: slices.Clone(values)})
		s.nextID++
	}
	return ids, nil
}

// Unscored implements Store.
func (s *MemoryStore) Unscored(ctx context.Context) ([]FeatureRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []FeatureRow
	for _, row := range s.rows {
		if _, found := s.predictions[row.ID]; !found {
			rows = append(rows, FeatureRow{ID: row.ID, Features: slices.Clone(row.Features)})
		}
	}
	return rows, nil
}

// Append implements Store. Predictions for unknown or already scored rows are rejected, and
// in that case none of the predictions is stored.
func (s *MemoryStore) Append(ctx context.Context, predictions []Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range predictions {
		if p.FeatureID <= 0 || p.FeatureID >= s.nextID {
			return failures.Errorf(failures.KindDataFormat, "prediction for unknown feature row %d", p.FeatureID)
		}
		if _, found := s.predictions[p.FeatureID]; found {
			return failures.Errorf(failures.KindDataFormat, "feature row %d already has a prediction", p.FeatureID)
		}
	}
	for _, p := range predictions {
		s.predictions[p.FeatureID] = p
	}
	return nil
}

// Predictions returns the stored predictions, ordered by feature id.
func (s *MemoryStore) Predictions() []Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	predictions := make([]Prediction, 0, len(s.predictions))
	for _, row := range s.rows {
		if p, found := s.predictions[row.ID]; found {
			predictions = append(predictions, p)
		}
	}
	return predictions
}
