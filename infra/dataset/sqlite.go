// Package dataset stores the price stack dataset in SQLite and imports it
// from CSV files.
package dataset

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/iesdispatch/core/market"
	"github.com/kilianp07/iesdispatch/core/model"
)

// SQLiteStore persists stack entries in a SQLite database. It implements
// market.Source.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS stack_entries (
        state TEXT NOT NULL,
        strategy TEXT NOT NULL,
        price_structure TEXT NOT NULL,
        year INTEGER NOT NULL,
        component TEXT NOT NULL,
        capacity REAL NOT NULL,
        marginal_cost REAL NOT NULL,
        PRIMARY KEY(state, strategy, price_structure, year, component)
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces entries in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, entries []market.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stack_entries
        (state, strategy, price_structure, year, component, capacity, marginal_cost)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(state, strategy, price_structure, year, component) DO UPDATE SET
            capacity = excluded.capacity,
            marginal_cost = excluded.marginal_cost`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range entries {
		l := e.Labels
		if _, err := stmt.ExecContext(ctx, l.State, l.Strategy, l.PriceStructure, l.Year, e.Component, e.Capacity, e.MarginalCost); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("entry %s: %w", e.Component, err)
		}
	}
	return tx.Commit()
}

// Entries returns every stored entry ordered by labels and component.
func (s *SQLiteStore) Entries(ctx context.Context) ([]market.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, strategy, price_structure, year, component, capacity, marginal_cost
        FROM stack_entries ORDER BY state, strategy, price_structure, year, component`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []market.Entry
	for rows.Next() {
		var e market.Entry
		var l model.CaseLabels
		if err := rows.Scan(&l.State, &l.Strategy, &l.PriceStructure, &l.Year, &e.Component, &e.Capacity, &e.MarginalCost); err != nil {
			return nil, err
		}
		e.Labels = l
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stack_entries`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
