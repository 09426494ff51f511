// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gomlx/sonar/pkg/ml/labels"
	"github.com/gomlx/sonar/pkg/support/failures"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	// Drivers for the supported dialects.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect of SQL spoken by the database.
type Dialect int

const (
	// Postgres (or Greenplum), through the "pgx" driver.
	Postgres Dialect = iota

	// SQLite, through the "sqlite" driver.
	SQLite
)

// DialectFromDriver returns the dialect for the database/sql driver name ("pgx" or "sqlite").
func DialectFromDriver(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	}
	return 0, failures.Errorf(failures.KindConfiguration, "unsupported database driver %q, valid values are \"pgx\" and \"sqlite\"", driver)
}

// Driver returns the database/sql driver name for the dialect.
func (d Dialect) Driver() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// String implements fmt.Stringer.
func (d Dialect) String() string {
	if d == SQLite {
		return "SQLite"
	}
	return "Postgres"
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (d Dialect) serialPrimaryKey() string {
	if d == SQLite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "SERIAL PRIMARY KEY"
}

// Table names used by SQLStore.
const (
	FeaturesTable    = "frequencies"
	PredictionsTable = "predictions"
)

// SQLStore is a Store backed by a SQL database with the tables:
//
//	frequencies(id, freq_0, ..., freq_<n-1>)
//	predictions(id, frequencies_id, prediction, probability)
//
// A feature row is unscored if no prediction refers to its id.
type SQLStore struct {
	db          *sql.DB
	dialect     Dialect
	numFeatures int
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a store over db, for feature rows with numFeatures values.
func NewSQLStore(db *sql.DB, dialect Dialect, numFeatures int) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, numFeatures: numFeatures}
}

// OpenSQLStore opens the database with the dialect's driver and checks the connection.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string, numFeatures int) (*SQLStore, error) {
	db, err := sql.Open(dialect.Driver(), dsn)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to open %s database", dialect)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, failures.Wrapf(failures.KindIO, err, "failed to connect to %s database", dialect)
	}
	return NewSQLStore(db, dialect, numFeatures), nil
}

// Close the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) featureColumns() []string {
	columns := make([]string, s.numFeatures)
	for ii := range columns {
		columns[ii] = fmt.Sprintf("freq_%d", ii)
	}
	return columns
}

// SchemaSQL returns the statements that create the tables, if they don't exist yet.
func (s *SQLStore) SchemaSQL() []string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n    id %s", FeaturesTable, s.dialect.serialPrimaryKey())
	for _, column := range s.featureColumns() {
		fmt.Fprintf(&sb, ",\n    %s FLOAT NOT NULL", column)
	}
	sb.WriteString("\n)")
	features := sb.String()
	predictions := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id %s,
    frequencies_id INTEGER NOT NULL REFERENCES %s(id),
    prediction TEXT NOT NULL,
    probability FLOAT NOT NULL
)`, PredictionsTable, s.dialect.serialPrimaryKey(), FeaturesTable)
	return []string{features, predictions}
}

// CreateSchema creates the tables, if they don't exist yet.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	for _, stmt := range s.SchemaSQL() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return failures.Wrapf(failures.KindIO, err, "failed to create schema")
		}
	}
	return nil
}

// ImportFeatures inserts the feature rows in one transaction and returns their ids.
func (s *SQLStore) ImportFeatures(ctx context.Context, features [][]float64) (ids []int64, err error) {
	columns := s.featureColumns()
	placeholders := make([]string, len(columns))
	for ii := range placeholders {
		placeholders[ii] = s.dialect.placeholder(ii + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		FeaturesTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	err = s.inTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		args := make([]any, len(columns))
		for rowIdx, row := range features {
			if len(row) != len(columns) {
				return failures.Errorf(failures.KindDataFormat, "feature row #%d has %d values, expected %d",
					rowIdx, len(row), len(columns))
			}
			for ii, value := range row {
				args[ii] = value
			}
			var id int64
			if err := stmt.QueryRowContext(ctx, args...).Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to import %d feature rows", len(features))
	}
	klog.V(1).Infof("imported %d feature rows into %s", len(ids), FeaturesTable)
	return ids, nil
}

// Unscored implements Store.
func (s *SQLStore) Unscored(ctx context.Context) ([]FeatureRow, error) {
	columns := s.featureColumns()
	for ii, column := range columns {
		columns[ii] = "f." + column
	}
	query := fmt.Sprintf(`SELECT f.id, %s FROM %s f
LEFT JOIN %s p ON p.frequencies_id = f.id
WHERE p.id IS NULL
ORDER BY f.id`, strings.Join(columns, ", "), FeaturesTable, PredictionsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to query unscored rows")
	}
	defer func() { _ = rows.Close() }()

	var result []FeatureRow
	dest := make([]any, 1+s.numFeatures)
	for rows.Next() {
		row := FeatureRow{Features: make([]float64, s.numFeatures)}
		dest[0] = &row.ID
		for ii := range row.Features {
			dest[ii+1] = &row.Features[ii]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, failures.Wrapf(failures.KindIO, err, "failed to read unscored row")
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to read unscored rows")
	}
	return result, nil
}

// Append implements Store. All predictions are inserted in one transaction.
func (s *SQLStore) Append(ctx context.Context, predictions []Prediction) error {
	query := fmt.Sprintf("INSERT INTO %s (frequencies_id, prediction, probability) VALUES (%s, %s, %s)",
		PredictionsTable, s.dialect.placeholder(1), s.dialect.placeholder(2), s.dialect.placeholder(3))
	err := s.inTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, p := range predictions {
			if !p.Label.IsValid() {
				return failures.Errorf(failures.KindDataFormat, "invalid label %d for feature row %d", int(p.Label), p.FeatureID)
			}
			if _, err := stmt.ExecContext(ctx, p.FeatureID, p.Label.String(), p.PositiveProbability); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.WithMessagef(err, "failed to append %d predictions", len(predictions))
}

// Predictions reads all stored predictions, ordered by feature id.
func (s *SQLStore) Predictions(ctx context.Context) ([]Prediction, error) {
	query := fmt.Sprintf("SELECT frequencies_id, prediction, probability FROM %s ORDER BY frequencies_id", PredictionsTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to query predictions")
	}
	defer func() { _ = rows.Close() }()
	var predictions []Prediction
	for rows.Next() {
		var p Prediction
		var symbol string
		if err := rows.Scan(&p.FeatureID, &symbol, &p.PositiveProbability); err != nil {
			return nil, failures.Wrapf(failures.KindIO, err, "failed to read prediction")
		}
		if p.Label, err = labels.Parse(symbol); err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, failures.Wrapf(failures.KindIO, err, "failed to read predictions")
	}
	return predictions, nil
}

// inTransaction runs fn in a transaction, committed if fn succeeds, rolled back otherwise.
// Database errors are failures.ErrIO.
func (s *SQLStore) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return failures.Wrapf(failures.KindIO, err, "failed to start transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if failures.KindOf(err) == failures.KindUnknown {
			err = failures.Wrapf(failures.KindIO, err, "transaction rolled back")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return failures.Wrapf(failures.KindIO, err, "failed to commit transaction")
	}
	return nil
}
