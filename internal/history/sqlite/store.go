// Package sqlite provides a SQLite implementation of the history.Backend
// interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/touchline-tools/touchlined/internal/history"
	"github.com/touchline-tools/touchlined/internal/models"
)

// Store persists daily aggregates in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewMemoryStore creates an in-memory backend, for tests and memory-only
// deployments.
func NewMemoryStore() (*Store, error) {
	return newStore(":memory:")
}

// NewFileStore creates a file-backed backend at path.
func NewFileStore(path string) (*Store, error) {
	return newStore(path)
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) SaveAggregate(ctx context.Context, agg models.DailyAggregate, zoneName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO daily_aggregates (zone_id, date, sample_count, temp_sum, temp_min, temp_max)
		VALUES (?, ?, ?, ?, ?, ?)
	`, agg.ZoneID, agg.Date, agg.Count, agg.Sum, agg.Min, agg.Max)
	if err != nil {
		return err
	}

	if zoneName != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO zone_names (zone_id, name)
			VALUES (?, ?)
		`, agg.ZoneID, zoneName)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) LoadAll(ctx context.Context) ([]models.DailyAggregate, map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT zone_id, date, sample_count, temp_sum, temp_min, temp_max
		FROM daily_aggregates
		ORDER BY zone_id, date
	`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var aggregates []models.DailyAggregate
	for rows.Next() {
		var agg models.DailyAggregate
		if err := rows.Scan(&agg.ZoneID, &agg.Date, &agg.Count, &agg.Sum, &agg.Min, &agg.Max); err != nil {
			return nil, nil, err
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	names := make(map[string]string)
	nameRows, err := s.db.QueryContext(ctx, "SELECT zone_id, name FROM zone_names")
	if err != nil {
		return nil, nil, err
	}
	defer nameRows.Close()

	for nameRows.Next() {
		var zoneID, name string
		if err := nameRows.Scan(&zoneID, &name); err != nil {
			return nil, nil, err
		}
		names[zoneID] = name
	}
	return aggregates, names, nameRows.Err()
}

func (s *Store) DeleteBefore(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM daily_aggregates WHERE date < ?", date)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Verify interface compliance
var _ history.Backend = (*Store)(nil)
