package mvenginetest

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvpool/mvpooltest"
	"github.com/kzmapvote/kzmapvote/mvwatchdog"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
	"github.com/stretchr/testify/require"
)

// Fixture wires an engine to in-memory dependencies.
// Fields may be modified before calling [*Fixture.NewEngine].
type Fixture struct {
	Log *slog.Logger

	Fetcher *mvpooltest.Fetcher
	Cache   *mvpool.Cache

	Titles   *Titles
	Resolver mvengine.NominationResolver

	Host *Host

	Countdown *ManualCountdown
	Delayer   *ManualDelayer

	Watchdog    *mvwatchdog.Watchdog
	WatchdogCtx context.Context

	Cfg mvengine.Config
}

// NewFixture returns a Fixture whose pool holds poolSize maps from [mvpooltest.Maps],
// already loaded into the cache.
func NewFixture(ctx context.Context, t *testing.T, poolSize int) *Fixture {
	t.Helper()

	log := gtest.NewLogger(t)

	wd, wCtx := mvwatchdog.NewNop(ctx, log.With("sys", "watchdog"))
	// Ensure the watchdog doesn't log after test completion.
	// There ought to be a defer cancel before the call to NewFixture anyway.
	t.Cleanup(wd.Wait)

	f := mvpooltest.NewFetcher(mvpooltest.Maps(poolSize))
	cache := mvpool.NewCache(log.With("sys", "pool"), f, nil)
	require.NoError(t, cache.Refresh(ctx))

	titles := NewTitles()
	resolver := mvworkshop.NewResolver(log.With("sys", "resolver"), titles, cache, "")

	host := NewHost()
	countdown := new(ManualCountdown)
	delayer := new(ManualDelayer)

	cfg := mvengine.DefaultConfig()
	cfg.Cache = cache
	cfg.Resolver = resolver
	cfg.Notifier = host
	cfg.MapChanger = host
	cfg.Display = host
	cfg.Countdown = countdown
	cfg.Delayer = delayer
	cfg.RefreshInterval = -1
	cfg.Rand = rand.New(rand.NewPCG(1, 2))
	cfg.Watchdog = wd

	return &Fixture{
		Log: log,

		Fetcher: f,
		Cache:   cache,

		Titles:   titles,
		Resolver: resolver,

		Host: host,

		Countdown: countdown,
		Delayer:   delayer,

		Watchdog:    wd,
		WatchdogCtx: wCtx,

		Cfg: cfg,
	}
}

// NewEngine starts an engine from f.Cfg, using f.Resolver.
// The engine is stopped and waited on when ctx is canceled.
func (f *Fixture) NewEngine(ctx context.Context, t *testing.T) *mvengine.Engine {
	t.Helper()

	cfg := f.Cfg
	cfg.Resolver = f.Resolver

	e, err := mvengine.New(ctx, f.Log.With("sys", "engine"), cfg)
	require.NoError(t, err)
	t.Cleanup(e.Wait)

	// The startup refresh re-fetches the pool in the background.
	// Wait for it so tests do not race with it.
	require.Eventually(t, func() bool {
		return f.Fetcher.Calls() >= 2
	}, time.Duration(gtest.ScaleMs(500)), time.Millisecond)

	return e
}
