package mvsqlite

import (
	"context"
	"database/sql"
	"fmt"
)

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		`CREATE TABLE IF NOT EXISTS migrations(
  id INTEGER PRIMARY KEY CHECK (id = 0),
  version INTEGER
);`,
	); err != nil {
		return fmt.Errorf("error getting initial migrations table: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO migrations(id, version) VALUES (0, 0)`,
	); err != nil {
		return fmt.Errorf("error setting initial migration version: %w", err)
	}

	var version int
	if err := tx.QueryRowContext(
		ctx, `SELECT version FROM migrations WHERE id=0;`,
	).Scan(&version); err != nil {
		return fmt.Errorf("failed to scan migration version: %w", err)
	}

	if err := migrateFrom(ctx, tx, version); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}

func migrateFrom(ctx context.Context, tx *sql.Tx, version int) error {
	switch version {
	case 0:
		// Single-row table: only the latest pool is worth keeping.
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE pool_snapshot(
  id INTEGER PRIMARY KEY CHECK (id = 0),
  data BLOB NOT NULL,
  saved_at INTEGER NOT NULL
);`); err != nil {
			return fmt.Errorf("initial migration: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx, `UPDATE migrations SET version = 1 WHERE id = 0`,
		); err != nil {
			return fmt.Errorf("failed to set migration version: %w", err)
		}
	case 1:
		// Up to date.
		return nil
	default:
		return fmt.Errorf("unknown migration version %d", version)
	}

	// https://sqlite.org/pragma.html#pragma_optimize
	// recommends running optimize after any schema change.
	if _, err := tx.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to run PRAGMA optimize after migration: %w", err)
	}

	return nil
}
