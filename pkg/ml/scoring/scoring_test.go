// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/ml/models/mlp"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// firstFeatureModel outputs [1-x0, x0] for each row: rows with x0 > 0.5 are mines.
type firstFeatureModel struct {
	calls int
}

func (m *firstFeatureModel) Forward(x *mat.Dense) (*mat.Dense, error) {
	m.calls++
	rows, _ := x.Dims()
	output := mat.NewDense(rows, labels.NumClasses, nil)
	for row := range rows {
		output.Set(row, labels.Rock.Index(), 1-x.At(row, 0))
		output.Set(row, labels.Mine.Index(), x.At(row, 0))
	}
	return output, nil
}

var toyFeatures = [][]float64{{0.9, 0}, {0.1, 0}, {0.7, 1}, {0.2, 1}, {0.6, 2}}

func TestPredict(t *testing.T) {
	predictions, err := Predict(&firstFeatureModel{}, []FeatureRow{{ID: 7, Features: []float64{0.8, 0}}, {ID: 9, Features: []float64{0.3, 0}}})
	require.NoError(t, err)
	assert.Equal(t, []Prediction{
		{FeatureID: 7, Label: labels.Mine, PositiveProbability: 0.8},
		{FeatureID: 9, Label: labels.Rock, PositiveProbability: 0.3},
	}, predictions)

	_, err = Predict(&firstFeatureModel{}, []FeatureRow{{ID: 1, Features: []float64{0.8, 0}}, {ID: 2, Features: []float64{0.3}}})
	assert.ErrorIs(t, err, failures.ErrDataFormat)

	// A real model with the wrong number of inputs.
	config := mlp.DefaultConfig()
	model, err := mlp.New(config, 1)
	require.NoError(t, err)
	_, err = Predict(model, []FeatureRow{{ID: 1, Features: []float64{0.8, 0}}})
	assert.ErrorIs(t, err, failures.ErrShapeMismatch)
}

// testStore runs the scoring scenario common to all Store implementations.
func testStore(t *testing.T, store interface {
	Store
	ImportFeatures(ctx context.Context, features [][]float64) ([]int64, error)
}, predictions func() []Prediction) {
	ctx := context.Background()
	ids, err := store.ImportFeatures(ctx, toyFeatures[:3])
	require.NoError(t, err)
	require.Len(t, ids, 3)

	model := &firstFeatureModel{}
	report, err := Score(ctx, model, store, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, report.NumScored)
	assert.Equal(t, 2, report.NumBatches)
	assert.Equal(t, 2, model.calls)

	// Nothing left to score.
	report, err = Score(ctx, model, store, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, report.NumScored)
	assert.Equal(t, 2, model.calls)

	// Only the delta is scored.
	newIDs, err := store.ImportFeatures(ctx, toyFeatures[3:])
	require.NoError(t, err)
	report, err = Score(ctx, model, store, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.NumScored)
	assert.Equal(t, 1, report.NumBatches)

	got := predictions()
	require.Len(t, got, 5)
	allIDs := append(ids, newIDs...)
	wantLabels := []labels.Label{labels.Mine, labels.Rock, labels.Mine, labels.Rock, labels.Mine}
	for ii, p := range got {
		assert.Equal(t, allIDs[ii], p.FeatureID)
		assert.Equal(t, wantLabels[ii], p.Label)
		assert.InDelta(t, toyFeatures[ii][0], p.PositiveProbability, 1e-12)
	}

	// Cancelled context.
	_, err = store.ImportFeatures(ctx, toyFeatures[:1])
	require.NoError(t, err)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Score(cancelled, model, store, 1)
	assert.ErrorIs(t, err, context.Canceled)
	unscored, err := store.Unscored(ctx)
	require.NoError(t, err)
	assert.Len(t, unscored, 1)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStore(t, store, store.Predictions)

	err := store.Append(context.Background(), []Prediction{{FeatureID: 1, Label: labels.Rock}})
	assert.ErrorIs(t, err, failures.ErrDataFormat, "row 1 was already scored")
	err = store.Append(context.Background(), []Prediction{{FeatureID: 100, Label: labels.Rock}})
	assert.ErrorIs(t, err, failures.ErrDataFormat, "row 100 doesn't exist")
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, SQLite, filepath.Join(t.TempDir(), "scoring.db"), 2)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()
	require.NoError(t, store.CreateSchema(ctx))
	require.NoError(t, store.CreateSchema(ctx), "schema creation must be idempotent")

	testStore(t, store, func() []Prediction {
		predictions, err := store.Predictions(ctx)
		require.NoError(t, err)
		return predictions
	})

	_, err = store.ImportFeatures(ctx, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, failures.ErrDataFormat)
}

func TestSchemaSQL(t *testing.T) {
	store := NewSQLStore(nil, Postgres, 2)
	schema := store.SchemaSQL()
	require.Len(t, schema, 2)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS frequencies (
    id SERIAL PRIMARY KEY,
    freq_0 FLOAT NOT NULL,
    freq_1 FLOAT NOT NULL
)`, schema[0])
	assert.Contains(t, schema[1], "frequencies_id INTEGER NOT NULL REFERENCES frequencies(id)")

	dialect, err := DialectFromDriver("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, dialect)
	_, err = DialectFromDriver("oracle")
	assert.ErrorIs(t, err, failures.ErrConfiguration)
}
