package mvpool_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvcodec"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvpool/mvpooltest"
	"github.com/kzmapvote/kzmapvote/mvstore"
	"github.com/kzmapvote/kzmapvote/mvstore/mvmemstore"
	"github.com/stretchr/testify/require"
)

func TestCache_emptyBeforeRefresh(t *testing.T) {
	t.Parallel()

	c := mvpool.NewCache(gtest.NewLogger(t), mvpooltest.NewFetcher(nil), nil)

	require.Empty(t, c.Snapshot())
	require.Zero(t, c.Len())
	require.True(t, c.FetchedAt().IsZero())
	require.Empty(t, c.FindByName("kz", 2))
}

func TestCache_Refresh(t *testing.T) {
	t.Parallel()

	maps := mvpooltest.Maps(3)
	f := mvpooltest.NewFetcher(maps)
	c := mvpool.NewCache(gtest.NewLogger(t), f, nil)

	fetchedAt := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	c.SetNow(func() time.Time { return fetchedAt })

	require.NoError(t, c.Refresh(context.Background()))

	require.Equal(t, maps, c.Snapshot())
	require.Equal(t, 3, c.Len())
	require.Equal(t, fetchedAt, c.FetchedAt())
	require.Equal(t, 1, f.Calls())
}

func TestCache_Refresh_filtersIncompleteEntries(t *testing.T) {
	t.Parallel()

	good := mvmap.Entry{Name: "kz_good", WorkshopID: 123, Tier: 2}
	unknownTier := mvmap.Entry{Name: "kz_unknown_tier", WorkshopID: 124, Tier: 0}
	f := mvpooltest.NewFetcher([]mvmap.Entry{
		good,
		{Name: "", WorkshopID: 125, Tier: 1},
		{Name: "kz_no_workshop", WorkshopID: -1, Tier: 1},
		{Name: "kz_no_tier", WorkshopID: 126, Tier: -1},
		unknownTier,
	})
	c := mvpool.NewCache(gtest.NewLogger(t), f, nil)

	require.NoError(t, c.Refresh(context.Background()))

	// An unrecognized tier name still had a tier present, so it is kept.
	require.Equal(t, []mvmap.Entry{good, unknownTier}, c.Snapshot())
}

func TestCache_Refresh_failureKeepsPool(t *testing.T) {
	t.Parallel()

	maps := mvpooltest.Maps(4)
	f := mvpooltest.NewFetcher(maps)
	c := mvpool.NewCache(gtest.NewLogger(t), f, nil)

	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))
	before := c.FetchedAt()

	cause := errors.New("connection refused")
	f.Set(nil, cause)

	err := c.Refresh(ctx)
	require.ErrorIs(t, err, cause)

	var fe mvpool.FetchError
	require.ErrorAs(t, err, &fe)

	require.Equal(t, maps, c.Snapshot())
	require.Equal(t, before, c.FetchedAt())
}

func TestCache_FindByName(t *testing.T) {
	t.Parallel()

	f := mvpooltest.NewFetcher([]mvmap.Entry{
		{Name: "kz_grotto", WorkshopID: 1, Tier: 3},
		{Name: "kz_Grotto_v2", WorkshopID: 2, Tier: 4},
		{Name: "kz_checkmate", WorkshopID: 3, Tier: 2},
		{Name: "kz_grottoes", WorkshopID: 4, Tier: 5},
	})
	c := mvpool.NewCache(gtest.NewLogger(t), f, nil)
	require.NoError(t, c.Refresh(context.Background()))

	t.Run("case insensitive in pool order", func(t *testing.T) {
		got := c.FindByName("GROTTO", 10)
		require.Len(t, got, 3)
		require.Equal(t, "kz_grotto", got[0].Name)
		require.Equal(t, "kz_Grotto_v2", got[1].Name)
		require.Equal(t, "kz_grottoes", got[2].Name)
	})

	t.Run("capped", func(t *testing.T) {
		got := c.FindByName("grotto", 2)
		require.Len(t, got, 2)
		require.Equal(t, "kz_grotto", got[0].Name)
	})

	t.Run("single match", func(t *testing.T) {
		got := c.FindByName("check", 2)
		require.Equal(t, []mvmap.Entry{{Name: "kz_checkmate", WorkshopID: 3, Tier: 2}}, got)
	})

	t.Run("no match", func(t *testing.T) {
		require.Empty(t, c.FindByName("bhop", 2))
	})
}

func TestCache_concurrentRefreshAndRead(t *testing.T) {
	t.Parallel()

	poolA := mvpooltest.NamedMaps("kz_a", 50)
	poolB := mvpooltest.NamedMaps("kz_b", 70)

	f := mvpooltest.NewFetcher(poolA)
	c := mvpool.NewCache(gtest.NewLogger(t), f, nil)

	ctx := context.Background()
	require.NoError(t, c.Refresh(ctx))

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)

		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				f.Set(poolB, nil)
			} else {
				f.Set(poolA, nil)
			}
			if err := c.Refresh(ctx); err != nil {
				t.Errorf("unexpected refresh error: %v", err)
				return
			}
		}
	}()

	// Every observed snapshot must be exactly one of the two pools.
	reads := 0
	for {
		snap := c.Snapshot()
		switch len(snap) {
		case len(poolA):
			require.Equal(t, poolA, snap)
		case len(poolB):
			require.Equal(t, poolB, snap)
		default:
			t.Fatalf("observed snapshot of unexpected length %d", len(snap))
		}
		reads++

		select {
		case <-done:
			wg.Wait()
			require.NotZero(t, reads)
			return
		default:
		}
	}
}

func TestCache_savesToStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := mvmemstore.NewPoolStore()

	maps := mvpooltest.Maps(5)
	c := mvpool.NewCache(gtest.NewLogger(t), mvpooltest.NewFetcher(maps), store)
	fetchedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.SetNow(func() time.Time { return fetchedAt })

	require.NoError(t, c.Refresh(ctx))

	b, err := store.LoadPoolSnapshot(ctx, nil)
	require.NoError(t, err)

	gotMaps, gotAt, err := mvcodec.DecodeSnapshot(b)
	require.NoError(t, err)
	require.Equal(t, maps, gotMaps)
	require.True(t, fetchedAt.Equal(gotAt))
}

func TestCache_Warm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("nothing saved", func(t *testing.T) {
		t.Parallel()

		c := mvpool.NewCache(gtest.NewLogger(t), mvpooltest.NewFetcher(nil), nil)
		err := c.Warm(ctx, mvmemstore.NewPoolStore())
		require.ErrorIs(t, err, mvstore.ErrSnapshotNotFound)
		require.Zero(t, c.Len())
	})

	t.Run("loads saved snapshot into empty cache", func(t *testing.T) {
		t.Parallel()

		saved := mvpooltest.Maps(6)
		fetchedAt := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
		store := mvmemstore.NewPoolStore()
		b, err := mvcodec.AppendSnapshot(nil, saved, fetchedAt)
		require.NoError(t, err)
		require.NoError(t, store.SavePoolSnapshot(ctx, b))

		c := mvpool.NewCache(gtest.NewLogger(t), mvpooltest.NewFetcher(nil), nil)
		require.NoError(t, c.Warm(ctx, store))

		require.Equal(t, saved, c.Snapshot())
		require.True(t, fetchedAt.Equal(c.FetchedAt()))
	})

	t.Run("does not replace refreshed pool", func(t *testing.T) {
		t.Parallel()

		store := mvmemstore.NewPoolStore()
		b, err := mvcodec.AppendSnapshot(nil, mvpooltest.NamedMaps("kz_old", 2), time.Now())
		require.NoError(t, err)
		require.NoError(t, store.SavePoolSnapshot(ctx, b))

		fresh := mvpooltest.NamedMaps("kz_new", 3)
		c := mvpool.NewCache(gtest.NewLogger(t), mvpooltest.NewFetcher(fresh), nil)
		require.NoError(t, c.Refresh(ctx))

		require.NoError(t, c.Warm(ctx, store))
		require.Equal(t, fresh, c.Snapshot())
	})
}
