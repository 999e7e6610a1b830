// Package gtest holds helpers shared by tests across the module.
package gtest

import (
	"time"
)

// TestingFatalHelper is the subset of [testing.TB] used by the channel helpers.
type TestingFatalHelper interface {
	Helper()

	Fatalf(format string, args ...any)
}

// ReceiveSoon receives from ch, failing the test if nothing arrives
// within a short default timeout.
func ReceiveSoon[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()
	return ReceiveOrTimeout(tb, ch, ScaleMs(100))
}

// ReceiveOrTimeout receives from ch, failing the test if nothing arrives within timeout.
// Prefer [ReceiveSoon] unless the operation under test is known to be slow.
func ReceiveOrTimeout[T any](tb TestingFatalHelper, ch <-chan T, timeout ScaledDuration) T {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("refusing to block receiving from nil channel %T", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(timeout))
	defer timer.Stop()

	select {
	case <-timer.C:
		tb.Fatalf(
			"timed out receiving from channel %T; if this only flakes on one machine, raise KZMAPVOTE_TEST_TIME_FACTOR above %d",
			ch, TimeFactor,
		)
		// Fatalf would normally stop the goroutine,
		// but a fake TestingFatalHelper does not.
		panic("unreachable")
	case x := <-ch:
		return x
	}
}

// SendSoon sends x to ch, failing the test if the send blocks
// for longer than a short default timeout.
func SendSoon[T any](tb TestingFatalHelper, ch chan<- T, x T) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("refusing to block sending to nil channel %T", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(ScaleMs(100)))
	defer timer.Stop()

	select {
	case <-timer.C:
		tb.Fatalf("timed out sending to channel %T", ch)
		panic("unreachable")
	case ch <- x:
	}
}

// NotSending fails the test if a value is immediately available on ch.
func NotSending[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	select {
	case x := <-ch:
		tb.Fatalf("no value should have been sent on channel %T; got %v", ch, x)
	default:
	}
}

// IsSending returns a value that must be immediately available on ch.
func IsSending[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()

	select {
	case x := <-ch:
		return x
	default:
		tb.Fatalf("expected a value to be ready on channel %T", ch)
		panic("unreachable")
	}
}

// NotSendingSoon asserts that nothing arrives on ch for a short duration.
// It always blocks the test for that duration, so prefer [NotSending]
// when another synchronization point is available.
func NotSendingSoon[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	timer := time.NewTimer(time.Duration(ScaleMs(75)))
	defer timer.Stop()

	select {
	case <-timer.C:
	case x := <-ch:
		tb.Fatalf("received %v on channel %T, expected no values", x, ch)
		panic("unreachable")
	}
}
