// Package storage caches the data source metadata of the anonymized query
// service in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
)

// Open opens the SQLite database at path and creates the tables.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	// Pragmas for better performance
	for _, p := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := EnsureMetaTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure meta tables: %w", err)
	}
	return db, nil
}

func EnsureMetaTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS explorer_data_sources (
			name TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceDataSources swaps the cached data sources for sources in one
// transaction.
func ReplaceDataSources(ctx context.Context, db *sql.DB, sources []anonapi.DataSource, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM explorer_data_sources`); err != nil {
		return err
	}
	for _, ds := range sources {
		payload, err := json.Marshal(ds)
		if err != nil {
			return fmt.Errorf("encode data source %s: %w", ds.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO explorer_data_sources(name, payload, updated_at) VALUES(?, ?, ?)`,
			ds.Name, string(payload), now.Unix()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadDataSources returns the cached data sources by name and when they were
// cached. The time is zero when the cache is empty.
func LoadDataSources(ctx context.Context, db *sql.DB) ([]anonapi.DataSource, time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT payload, updated_at FROM explorer_data_sources ORDER BY name`)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var sources []anonapi.DataSource
	var oldest int64
	for rows.Next() {
		var payload string
		var updated int64
		if err := rows.Scan(&payload, &updated); err != nil {
			return nil, time.Time{}, err
		}
		var ds anonapi.DataSource
		if err := json.Unmarshal([]byte(payload), &ds); err != nil {
			return nil, time.Time{}, fmt.Errorf("decode cached data source: %w", err)
		}
		sources = append(sources, ds)
		if oldest == 0 || updated < oldest {
			oldest = updated
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(sources) == 0 {
		return nil, time.Time{}, nil
	}
	return sources, time.Unix(oldest, 0), nil
}
