package mvwatchdog_test

import (
	"context"
	"testing"
	"time"

	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvwatchdog"
	"github.com/stretchr/testify/require"
)

func TestWatchdog_Terminate(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.NoError(t, wCtx.Err())
	require.False(t, mvwatchdog.IsTermination(wCtx))

	w.Terminate("testing purposes")
	require.Error(t, wCtx.Err())
	require.True(t, mvwatchdog.IsTermination(wCtx))
	require.Equal(t, mvwatchdog.ForcedTerminationError{
		Reason: "testing purposes",
	}, context.Cause(wCtx))

	// The first cause sticks.
	w.Terminate("again")
	require.Equal(t, mvwatchdog.ForcedTerminationError{
		Reason: "testing purposes",
	}, context.Cause(wCtx))
}

func TestWatchdog_Terminate_afterParentCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()

	cancel()
	w.Terminate("late")

	require.Error(t, wCtx.Err())
	require.False(t, mvwatchdog.IsTermination(wCtx))
}

func TestWatchdog_monitor_unacceptedSignalTerminates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	_ = w.Monitor(mvwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		ResponseTimeout: 50 * time.Microsecond,
	})

	_ = gtest.ReceiveSoon(t, wCtx.Done())
	require.True(t, mvwatchdog.IsTermination(wCtx))

	var ftr mvwatchdog.FailureToRespondError
	require.ErrorAs(t, context.Cause(wCtx), &ftr)
	require.Equal(t, t.Name(), ftr.SubsystemName)
}

func TestWatchdog_monitor_unacknowledgedSignalTerminates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	sigCh := w.Monitor(mvwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		ResponseTimeout: time.Duration(gtest.ScaleMs(150)),
	})

	// Accept, but never close Alive.
	_ = gtest.ReceiveSoon(t, sigCh)

	gtest.Sleep(gtest.ScaleMs(160))

	require.Error(t, wCtx.Err())
	require.True(t, mvwatchdog.IsTermination(wCtx))
}

func TestWatchdog_monitor_acknowledgedSignalKeepsRunning(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	sigCh := w.Monitor(mvwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		ResponseTimeout: time.Duration(gtest.ScaleMs(150)),
	})

	for i := 0; i < 3; i++ {
		sig := gtest.ReceiveSoon(t, sigCh)
		close(sig.Alive)
	}

	require.NoError(t, wCtx.Err())
}

func TestWatchdog_Monitor_invalidConfigPanics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, _ := mvwatchdog.New(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	require.Panics(t, func() {
		_ = w.Monitor(mvwatchdog.MonitorConfig{Name: "x", Interval: time.Second})
	})
}

func TestWatchdog_Monitor_afterShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w, _ := mvwatchdog.New(ctx, gtest.NewLogger(t))

	cancel()
	w.Wait()

	require.Nil(t, w.Monitor(mvwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: time.Second, Jitter: time.Millisecond,

		ResponseTimeout: time.Second,
	}))
}

func TestNopWatchdog(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, wCtx := mvwatchdog.NewNop(ctx, gtest.NewLogger(t))
	defer w.Wait()
	defer cancel()

	// The config is still validated.
	sigCh := w.Monitor(mvwatchdog.MonitorConfig{
		Name:     t.Name(),
		Interval: 100 * time.Microsecond, Jitter: 10 * time.Microsecond,

		ResponseTimeout: time.Millisecond,
	})
	require.Nil(t, sigCh)

	require.NoError(t, wCtx.Err())
	w.Terminate("testing")
	require.True(t, mvwatchdog.IsTermination(wCtx))
}
