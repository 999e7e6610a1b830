package mvengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvengine"
)

func TestStandardCountdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, stop := mvengine.StandardCountdown{}.Start(ctx, time.Millisecond)

	for i := 0; i < 3; i++ {
		_ = gtest.ReceiveSoon(t, ticks)
	}

	stop()
	// Stopping twice is allowed.
	stop()

	// Give the ticker goroutine time to observe the stop.
	gtest.Sleep(gtest.ScaleMs(20))
	gtest.NotSending(t, ticks)
}

func TestStandardCountdown_contextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	ticks, stop := mvengine.StandardCountdown{}.Start(ctx, time.Millisecond)
	defer stop()

	_ = gtest.ReceiveSoon(t, ticks)
	cancel()

	gtest.Sleep(gtest.ScaleMs(20))
	gtest.NotSending(t, ticks)
}

func TestStandardDelayer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("elapses", func(t *testing.T) {
		t.Parallel()

		elapsed, stop := mvengine.StandardDelayer{}.After(ctx, time.Millisecond)
		defer stop()

		_ = gtest.ReceiveSoon(t, elapsed)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()

		elapsed, stop := mvengine.StandardDelayer{}.After(ctx, 20*time.Millisecond)
		stop()
		stop()

		gtest.Sleep(gtest.ScaleMs(40))
		gtest.NotSending(t, elapsed)
	})
}
