// Package mvenginetest contains test doubles for the dependencies of package mvengine,
// giving tests control over time and visibility into host interactions.
package mvenginetest

import (
	"context"
	"sync"
	"time"
)

// ManualCountdown is an [mvengine.Countdown] whose ticks are sent by the test.
type ManualCountdown struct {
	mu     sync.Mutex
	cur    *manualTicker
	starts int
	period time.Duration
}

type manualTicker struct {
	ch      chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (c *ManualCountdown) Start(ctx context.Context, period time.Duration) (<-chan struct{}, func()) {
	t := &manualTicker{
		// Unbuffered, so Tick returns only once the engine has received the tick.
		ch:      make(chan struct{}),
		stopped: make(chan struct{}),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil {
		c.cur.stop()
	}
	c.cur = t
	c.starts++
	c.period = period

	return t.ch, t.stop
}

// Tick delivers one tick to the running countdown.
// It reports false if no countdown is running,
// or if ctx is canceled before the tick is received.
func (c *ManualCountdown) Tick(ctx context.Context) bool {
	c.mu.Lock()
	t := c.cur
	c.mu.Unlock()

	if t == nil {
		return false
	}

	select {
	case <-t.stopped:
		return false
	case <-ctx.Done():
		return false
	case t.ch <- struct{}{}:
		return true
	}
}

// Running reports whether the most recently started countdown has not been stopped.
func (c *ManualCountdown) Running() bool {
	c.mu.Lock()
	t := c.cur
	c.mu.Unlock()

	if t == nil {
		return false
	}
	select {
	case <-t.stopped:
		return false
	default:
		return true
	}
}

// Starts reports how many countdowns have been started.
func (c *ManualCountdown) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

// Period is the period passed to the most recent Start call.
func (c *ManualCountdown) Period() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

// ManualDelayer is an [mvengine.Delayer] fired explicitly by the test.
type ManualDelayer struct {
	mu      sync.Mutex
	pending []*manualDelay
	last    time.Duration
}

type manualDelay struct {
	elapsed  chan struct{}
	canceled bool
	fired    bool
}

func (d *ManualDelayer) After(ctx context.Context, dur time.Duration) (<-chan struct{}, func()) {
	md := &manualDelay{elapsed: make(chan struct{})}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, md)
	d.last = dur

	return md.elapsed, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		md.canceled = true
	}
}

// Fire elapses every outstanding delay and returns how many there were.
func (d *ManualDelayer) Fire() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, md := range d.pending {
		if md.canceled || md.fired {
			continue
		}
		md.fired = true
		close(md.elapsed)
		n++
	}
	d.pending = nil
	return n
}

// Outstanding reports how many delays are neither fired nor canceled.
func (d *ManualDelayer) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, md := range d.pending {
		if !md.canceled && !md.fired {
			n++
		}
	}
	return n
}

// LastDuration is the duration passed to the most recent After call.
func (d *ManualDelayer) LastDuration() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
