package mvstoretest

import (
	"context"
	"testing"

	"github.com/kzmapvote/kzmapvote/mvstore"
	"github.com/stretchr/testify/require"
)

// PoolStoreFactory returns a fresh, empty PoolStore.
// Implementations needing cleanup should register it with t.Cleanup.
type PoolStoreFactory func(t *testing.T) mvstore.PoolStore

func TestPoolStoreCompliance(t *testing.T, f PoolStoreFactory) {
	ctx := context.Background()

	t.Run("load before save", func(t *testing.T) {
		// Assuming all these subtests are safe to run in parallel.
		t.Parallel()

		s := f(t)

		_, err := s.LoadPoolSnapshot(ctx, nil)
		require.ErrorIs(t, err, mvstore.ErrSnapshotNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		t.Parallel()

		s := f(t)

		data := []byte("first snapshot")
		require.NoError(t, s.SavePoolSnapshot(ctx, data))

		got, err := s.LoadPoolSnapshot(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, data, got)

		t.Run("stored value is independent of caller slice", func(t *testing.T) {
			data[0] = 'F'

			got, err := s.LoadPoolSnapshot(ctx, nil)
			require.NoError(t, err)
			require.Equal(t, "first snapshot", string(got))
		})
	})

	t.Run("save overwrites", func(t *testing.T) {
		t.Parallel()

		s := f(t)

		require.NoError(t, s.SavePoolSnapshot(ctx, []byte("old")))
		require.NoError(t, s.SavePoolSnapshot(ctx, []byte("newer")))

		got, err := s.LoadPoolSnapshot(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, "newer", string(got))
	})

	t.Run("load appends to dst argument", func(t *testing.T) {
		t.Parallel()

		s := f(t)

		require.NoError(t, s.SavePoolSnapshot(ctx, []byte("hello")))

		dst := make([]byte, 6)
		for i := range dst {
			dst[i] = '!'
		}

		got, err := s.LoadPoolSnapshot(ctx, dst[:0])
		require.NoError(t, err)
		require.Equal(t, "hello", string(got))
		require.Equal(t, "hello!", string(dst))
	})
}
