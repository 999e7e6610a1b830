// Package mvworkshop turns a player's nomination argument into a map entry.
//
// A ten-digit argument is treated as a Steam workshop ID
// and resolved through the workshop metadata service;
// anything else is searched by name in the map pool.
package mvworkshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kzmapvote/kzmapvote/mvmap"
)

var (
	// The workshop item does not exist or has no title.
	ErrNotFound = errors.New("workshop map not found")

	// The workshop item's title lacks the required prefix.
	ErrNotEligible = errors.New("workshop map not eligible")

	// No pool map matched the name query.
	ErrNoMatch = errors.New("no maps found")

	// More than one pool map matched the name query.
	ErrAmbiguous = errors.New("multiple maps found")
)

// ResolveError records the input that failed to resolve.
type ResolveError struct {
	Input string
	Err   error
}

func (e ResolveError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Input, e.Err)
}

func (e ResolveError) Unwrap() error {
	return e.Err
}

// TitleFetcher looks up the title of a workshop item.
// It returns ok=false when the item has no title.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, workshopID int64) (title string, ok bool, err error)
}

// Pool is the subset of [*mvpool.Cache] needed for name queries.
type Pool interface {
	Refresh(ctx context.Context) error
	FindByName(substr string, maxMatches int) []mvmap.Entry
}

// DefaultRequiredPrefix is the name prefix required of workshop nominations.
const DefaultRequiredPrefix = "kz_"

// Resolver resolves nomination input.
// Resolve is safe to call concurrently.
type Resolver struct {
	log *slog.Logger

	titles TitleFetcher
	pool   Pool

	requiredPrefix string
}

// NewResolver returns a Resolver.
// An empty requiredPrefix uses [DefaultRequiredPrefix].
func NewResolver(log *slog.Logger, titles TitleFetcher, pool Pool, requiredPrefix string) *Resolver {
	if requiredPrefix == "" {
		requiredPrefix = DefaultRequiredPrefix
	}
	return &Resolver{
		log: log,

		titles: titles,
		pool:   pool,

		requiredPrefix: requiredPrefix,
	}
}

// RequiredPrefix returns the prefix workshop titles must carry.
func (r *Resolver) RequiredPrefix() string {
	return r.requiredPrefix
}

// Resolve converts input to a map entry, performing network requests as needed.
// Resolution failures are returned as a [ResolveError]
// wrapping one of this package's sentinel errors.
// Context cancellation is returned unwrapped.
func (r *Resolver) Resolve(ctx context.Context, input string) (mvmap.Entry, error) {
	if mvmap.IsWorkshopID(input) {
		return r.resolveWorkshop(ctx, input)
	}
	return r.resolveName(ctx, input)
}

func (r *Resolver) resolveWorkshop(ctx context.Context, input string) (mvmap.Entry, error) {
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		// Ten digits always fit.
		panic(fmt.Errorf("BUG: failed to parse workshop ID %q: %w", input, err))
	}

	title, ok, err := r.titles.FetchTitle(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return mvmap.Entry{}, context.Cause(ctx)
		}

		// Lookup failures are reported to the player the same as a missing item.
		r.log.Warn("Failed to fetch workshop title", "workshop_id", id, "err", err)
		return mvmap.Entry{}, ResolveError{Input: input, Err: ErrNotFound}
	}
	if !ok || title == "" {
		return mvmap.Entry{}, ResolveError{Input: input, Err: ErrNotFound}
	}

	if !strings.HasPrefix(title, r.requiredPrefix) {
		return mvmap.Entry{}, ResolveError{Input: input, Err: ErrNotEligible}
	}

	return mvmap.Entry{Name: title, WorkshopID: id, Tier: -1}, nil
}

func (r *Resolver) resolveName(ctx context.Context, input string) (mvmap.Entry, error) {
	// Search the freshest pool available.
	if err := r.pool.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return mvmap.Entry{}, context.Cause(ctx)
		}
		r.log.Info("Pool refresh before name search failed; searching current pool", "err", err)
	}

	matches := r.pool.FindByName(input, 2)
	switch len(matches) {
	case 0:
		return mvmap.Entry{}, ResolveError{Input: input, Err: ErrNoMatch}
	case 1:
		return matches[0], nil
	default:
		return mvmap.Entry{}, ResolveError{Input: input, Err: ErrAmbiguous}
	}
}
