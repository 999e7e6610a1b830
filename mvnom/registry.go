// Package mvnom contains the nomination registry.
package mvnom

import (
	"errors"
	"fmt"

	"github.com/kzmapvote/kzmapvote/mvmap"
)

var (
	ErrDuplicate = errors.New("map already nominated")
	ErrFull      = errors.New("nomination limit reached")
)

// Registry is the ordered set of maps nominated for the next vote.
//
// Registry is not safe for concurrent use;
// the engine only touches it from its kernel goroutine.
type Registry struct {
	entries []mvmap.Entry
	max     int
}

// NewRegistry returns an empty registry accepting up to max entries.
func NewRegistry(max int) *Registry {
	if max < 0 {
		panic(fmt.Errorf("BUG: nomination max must not be negative (got %d)", max))
	}
	return &Registry{
		entries: make([]mvmap.Entry, 0, max),
		max:     max,
	}
}

// TryAdd appends e, unless an equal entry is already present
// ([ErrDuplicate]) or the registry is full ([ErrFull]).
func (r *Registry) TryAdd(e mvmap.Entry) error {
	if mvmap.Contains(r.entries, e) {
		return ErrDuplicate
	}
	if len(r.entries) >= r.max {
		return ErrFull
	}
	r.entries = append(r.entries, e)
	return nil
}

// Clear removes every nomination.
func (r *Registry) Clear() {
	clear(r.entries)
	r.entries = r.entries[:0]
}

// Snapshot returns a copy of the nominations in insertion order.
func (r *Registry) Snapshot() []mvmap.Entry {
	return append([]mvmap.Entry(nil), r.entries...)
}

func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) Max() int {
	return r.max
}

// Full reports whether another distinct nomination would be rejected.
func (r *Registry) Full() bool {
	return len(r.entries) >= r.max
}
