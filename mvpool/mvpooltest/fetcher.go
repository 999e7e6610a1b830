// Package mvpooltest contains test helpers for code depending on package mvpool.
package mvpooltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kzmapvote/kzmapvote/mvmap"
)

// Fetcher is an in-memory [mvpool.Fetcher]
// whose result can be changed between calls.
type Fetcher struct {
	mu    sync.Mutex
	maps  []mvmap.Entry
	err   error
	calls int
}

// NewFetcher returns a Fetcher that initially returns maps.
func NewFetcher(maps []mvmap.Entry) *Fetcher {
	return &Fetcher{maps: maps}
}

func (f *Fetcher) FetchPool(ctx context.Context) ([]mvmap.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}

	// The cache may keep the slice, so hand out a copy.
	return append([]mvmap.Entry(nil), f.maps...), nil
}

// Set changes the result of subsequent fetches.
// When err is not nil, it is returned instead of maps.
func (f *Fetcher) Set(maps []mvmap.Entry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maps = maps
	f.err = err
}

// Calls reports how many times FetchPool has been called.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// Maps returns n distinct valid entries named kz_test_000, kz_test_001, and so on.
func Maps(n int) []mvmap.Entry {
	return NamedMaps("kz_test", n)
}

// NamedMaps is like [Maps] with a caller-chosen name prefix.
// Workshop IDs are derived from the index, so two calls with different
// prefixes produce entries with overlapping IDs but distinct names.
func NamedMaps(prefix string, n int) []mvmap.Entry {
	out := make([]mvmap.Entry, n)
	for i := range out {
		out[i] = mvmap.Entry{
			Name:       fmt.Sprintf("%s_%03d", prefix, i),
			WorkshopID: 3000000000 + int64(i),
			Tier:       1 + i%10,
		}
	}
	return out
}
