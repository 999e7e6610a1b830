// Package mvstore declares the storage interfaces used by the map vote daemon.
//
// Vote state is never persisted; only the most recent successfully
// fetched map pool is kept, so that a restarted daemon can serve
// nominations and votes before its first fetch completes.
package mvstore

import (
	"context"
	"errors"
)

// PoolStore persists the latest encoded map pool snapshot.
// Encoding is handled by the caller (see package mvcodec).
type PoolStore interface {
	// SavePoolSnapshot replaces any previously saved snapshot.
	SavePoolSnapshot(ctx context.Context, data []byte) error

	// LoadPoolSnapshot appends the saved snapshot to dst and returns the result.
	// If no snapshot has been saved, it returns ErrSnapshotNotFound.
	LoadPoolSnapshot(ctx context.Context, dst []byte) ([]byte, error)
}

var ErrSnapshotNotFound = errors.New("pool snapshot not found")
