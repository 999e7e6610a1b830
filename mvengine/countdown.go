package mvengine

import (
	"context"
	"sync"
	"time"
)

// Countdown produces the once-per-period ticks that drive a vote.
//
// Start returns a channel receiving one value per period
// and a stop function that must be called to release resources.
// Stop is safe to call multiple times and concurrently.
// Stopping does not close the channel,
// so a stopped countdown can never be mistaken for a tick.
type Countdown interface {
	Start(ctx context.Context, period time.Duration) (ticks <-chan struct{}, stop func())
}

// Delayer produces a one-shot timer for the map change grace period.
//
// After returns a channel that is closed once d has elapsed
// and a cancel function that must be called to release resources.
// Canceling does not close the returned channel.
type Delayer interface {
	After(ctx context.Context, d time.Duration) (elapsed <-chan struct{}, cancel func())
}

// StandardCountdown is a [Countdown] backed by a [time.Ticker].
type StandardCountdown struct{}

func (StandardCountdown) Start(ctx context.Context, period time.Duration) (<-chan struct{}, func()) {
	ticks := make(chan struct{})
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
			}

			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case ticks <- struct{}{}:
			}
		}
	}()

	var once sync.Once
	return ticks, func() {
		once.Do(func() { close(stopCh) })
	}
}

// StandardDelayer is a [Delayer] backed by a [time.Timer].
type StandardDelayer struct{}

func (StandardDelayer) After(ctx context.Context, d time.Duration) (<-chan struct{}, func()) {
	elapsed := make(chan struct{})
	cancelCh := make(chan struct{})

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
		case <-cancelCh:
		case <-timer.C:
			close(elapsed)
		}
	}()

	var once sync.Once
	return elapsed, func() {
		once.Do(func() { close(cancelCh) })
	}
}
