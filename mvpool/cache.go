// Package mvpool holds the cache of maps eligible for random vote slots.
//
// The cache is the only vote-related structure read from arbitrary goroutines.
// Each refresh builds a new immutable [Snapshot] and publishes it
// with a single atomic store, so readers never block and never observe
// a partially built pool.
package mvpool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kzmapvote/kzmapvote/mvcodec"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/kzmapvote/kzmapvote/mvstore"
)

// Fetcher retrieves the full map pool from its provider.
type Fetcher interface {
	FetchPool(ctx context.Context) ([]mvmap.Entry, error)
}

// Snapshot is one published version of the pool.
// Neither field is modified after the snapshot is published.
type Snapshot struct {
	Maps      []mvmap.Entry
	FetchedAt time.Time
}

// FetchError is returned from [*Cache.Refresh] when the fetcher fails.
type FetchError struct {
	Cause error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("failed to fetch map pool: %v", e.Cause)
}

func (e FetchError) Unwrap() error {
	return e.Cause
}

// Cache is the map pool cache.
// All methods are safe for concurrent use.
type Cache struct {
	log *slog.Logger

	f     Fetcher
	store mvstore.PoolStore

	empty *Snapshot
	cur   atomic.Pointer[Snapshot]

	now func() time.Time
}

// NewCache returns an empty cache that refreshes through f.
// If store is not nil, each successful refresh is saved to it.
func NewCache(log *slog.Logger, f Fetcher, store mvstore.PoolStore) *Cache {
	c := &Cache{
		log: log,

		f:     f,
		store: store,

		empty: new(Snapshot),

		now: time.Now,
	}
	c.cur.Store(c.empty)
	return c
}

// Refresh fetches the pool and publishes it.
// On failure the published pool is left unchanged
// and the returned error is a [FetchError].
//
// Concurrent calls are not serialized; the last one to finish wins.
func (c *Cache) Refresh(ctx context.Context) error {
	maps, err := c.f.FetchPool(ctx)
	if err != nil {
		return FetchError{Cause: err}
	}

	kept := make([]mvmap.Entry, 0, len(maps))
	for _, m := range maps {
		if m.Name == "" || m.WorkshopID <= 0 || m.Tier < 0 {
			continue
		}
		kept = append(kept, m)
	}

	snap := &Snapshot{Maps: kept, FetchedAt: c.now()}
	c.cur.Store(snap)

	c.log.Debug("Refreshed map pool", "n_maps", len(kept), "n_skipped", len(maps)-len(kept))

	if c.store != nil {
		if err := c.save(ctx, snap); err != nil {
			c.log.Warn("Failed to save map pool snapshot", "err", err)
		}
	}

	return nil
}

func (c *Cache) save(ctx context.Context, snap *Snapshot) error {
	b, err := mvcodec.AppendSnapshot(nil, snap.Maps, snap.FetchedAt)
	if err != nil {
		return err
	}
	return c.store.SavePoolSnapshot(ctx, b)
}

// Warm loads a snapshot previously saved to store,
// if the cache has not yet been populated by a refresh.
// A refresh that completes while Warm is running takes precedence.
//
// If store has no saved snapshot, Warm returns [mvstore.ErrSnapshotNotFound].
func (c *Cache) Warm(ctx context.Context, store mvstore.PoolStore) error {
	if c.cur.Load() != c.empty {
		return nil
	}

	b, err := store.LoadPoolSnapshot(ctx, nil)
	if err != nil {
		return err
	}

	maps, fetchedAt, err := mvcodec.DecodeSnapshot(b)
	if err != nil {
		return fmt.Errorf("failed to decode saved pool snapshot: %w", err)
	}

	if c.cur.CompareAndSwap(c.empty, &Snapshot{Maps: maps, FetchedAt: fetchedAt}) {
		c.log.Info(
			"Loaded saved map pool",
			"n_maps", len(maps), "fetched_at", fetchedAt,
		)
	}
	return nil
}

// Snapshot returns the current pool.
// The returned slice is shared and must not be modified.
func (c *Cache) Snapshot() []mvmap.Entry {
	return c.cur.Load().Maps
}

// FetchedAt returns the time of the fetch that produced the current pool,
// or the zero time if the cache has never been populated.
func (c *Cache) FetchedAt() time.Time {
	return c.cur.Load().FetchedAt
}

// Len returns the number of maps in the current pool.
func (c *Cache) Len() int {
	return len(c.cur.Load().Maps)
}

// FindByName returns up to maxMatches maps whose name contains substr,
// ignoring case, in pool order.
func (c *Cache) FindByName(substr string, maxMatches int) []mvmap.Entry {
	if maxMatches <= 0 {
		return nil
	}

	needle := strings.ToLower(substr)

	var out []mvmap.Entry
	for _, m := range c.cur.Load().Maps {
		if !strings.Contains(strings.ToLower(m.Name), needle) {
			continue
		}
		out = append(out, m)
		if len(out) == maxMatches {
			break
		}
	}
	return out
}
