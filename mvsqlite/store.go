// Package mvsqlite is a SQLite-backed implementation of [mvstore.PoolStore].
//
// Building with cgo enabled uses github.com/mattn/go-sqlite3;
// building with the purego tag, or without cgo, uses modernc.org/sqlite.
package mvsqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kzmapvote/kzmapvote/mvstore"
)

// Store is a SQLite [mvstore.PoolStore].
type Store struct {
	// The string "purego" or "cgo" depending on build tags.
	BuildType string

	// SQLite allows one writer at a time,
	// so writes go through a pool limited to one connection
	// and reads use a separate pool.
	ro, rw *sql.DB
}

// NewOnDiskStore opens the database at dbPath, creating the file if needed.
func NewOnDiskStore(ctx context.Context, dbPath string) (*Store, error) {
	dbPath = filepath.Clean(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %q: %w", dbPath, err)
		}

		// The startup pragmas fail if the file does not exist.
		// O_EXCL so that we never truncate a database created concurrently.
		f, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create empty database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close new empty database file: %w", err)
		}
	}

	uri := "file:" + dbPath + "?mode=rw"

	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}
	// Writers block on the single connection
	// instead of failing with "database is locked".
	rw.SetMaxOpenConns(1)

	// Persistent, and only relevant to on-disk databases.
	if _, err := rw.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	return finishOpen(ctx, rw, strings.TrimSuffix(uri, "rw")+"ro")
}

var inMemNameCounter uint32

// NewInMemStore returns a Store backed by a private in-memory database.
func NewInMemStore(ctx context.Context) (*Store, error) {
	dbName := fmt.Sprintf("mvdb%d", atomic.AddUint32(&inMemNameCounter, 1))

	// The shared cache lets both pools see the same named in-memory database,
	// and _txlock=immediate takes the write lock at the start of each transaction.
	uri := "file:" + dbName + "?mode=memory&cache=shared&_txlock=immediate"

	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}
	rw.SetMaxOpenConns(1)

	roURI, ok := strings.CutSuffix(uri, "&_txlock=immediate")
	if !ok {
		panic(fmt.Errorf("BUG: failed to cut _txlock suffix from uri %q", uri))
	}
	return finishOpen(ctx, rw, roURI)
}

func finishOpen(ctx context.Context, rw *sql.DB, roURI string) (*Store, error) {
	if err := pragmas(ctx, rw); err != nil {
		_ = rw.Close()
		return nil, err
	}

	if err := migrate(ctx, rw); err != nil {
		_ = rw.Close()
		return nil, err
	}

	ro, err := sql.Open(sqliteDriverType, roURI)
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}
	if err := pragmas(ctx, ro); err != nil {
		return nil, errors.Join(err, ro.Close(), rw.Close())
	}

	return &Store{
		BuildType: sqliteBuildType,

		rw: rw,
		ro: ro,
	}, nil
}

func (s *Store) Close() error {
	errRO := s.ro.Close()
	if errRO != nil {
		errRO = fmt.Errorf("error closing read-only database: %w", errRO)
	}
	errRW := s.rw.Close()
	if errRW != nil {
		errRW = fmt.Errorf("error closing read-write database: %w", errRW)
	}

	return errors.Join(errRO, errRW)
}

func (s *Store) SavePoolSnapshot(ctx context.Context, data []byte) error {
	if data == nil {
		// The column is NOT NULL.
		data = []byte{}
	}

	_, err := s.rw.ExecContext(
		ctx,
		`INSERT INTO pool_snapshot(id, data, saved_at) VALUES (0, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save pool snapshot: %w", err)
	}
	return nil
}

func (s *Store) LoadPoolSnapshot(ctx context.Context, dst []byte) ([]byte, error) {
	var data []byte
	err := s.ro.QueryRowContext(
		ctx, `SELECT data FROM pool_snapshot WHERE id = 0`,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, mvstore.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load pool snapshot: %w", err)
	}

	return append(dst, data...), nil
}

func pragmas(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("failed to set foreign keys on: %w", err)
	}
	return nil
}
