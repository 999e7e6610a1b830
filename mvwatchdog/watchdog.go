package mvwatchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// MonitorConfig configures a single call to [*Watchdog.Monitor].
type MonitorConfig struct {
	// Name of the monitored subsystem, used in logs and errors.
	Name string

	// Signals are sent every Interval plus a uniform random offset in [-Jitter, +Jitter).
	Interval, Jitter time.Duration

	// Time allowed for the subsystem to both accept the signal
	// and close its Alive channel.
	ResponseTimeout time.Duration
}

func (c MonitorConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("Name must not be empty"))
	}
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("Interval must be positive"))
	}
	if c.Jitter <= 0 {
		err = errors.Join(err, errors.New("Jitter must be positive"))
	} else if c.Jitter > c.Interval {
		err = errors.Join(err, errors.New("Jitter must not exceed Interval"))
	}
	if c.ResponseTimeout <= 0 {
		err = errors.Join(err, errors.New("ResponseTimeout must be positive"))
	}
	return err
}

// Signal is delivered on the channel returned from [*Watchdog.Monitor].
type Signal struct {
	// The receiver closes Alive to acknowledge the signal.
	Alive chan<- struct{}
}

// Watchdog supervises monitored subsystems.
type Watchdog struct {
	log *slog.Logger

	wCtx   context.Context
	cancel context.CancelCauseFunc

	// Nop watchdogs accept Monitor calls but never send signals.
	nop bool

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New returns a Watchdog and a context derived from ctx
// that is canceled when a monitored subsystem fails to respond
// or when [*Watchdog.Terminate] is called.
func New(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	return newWatchdog(ctx, log, false)
}

// NewNop returns a Watchdog whose Monitor method returns nil channels.
// Terminate still cancels the returned context.
// NewNop is intended for tests.
func NewNop(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	return newWatchdog(ctx, log, true)
}

func newWatchdog(ctx context.Context, log *slog.Logger, nop bool) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	w := &Watchdog{
		log: log,

		wCtx:   wCtx,
		cancel: cancel,

		nop: nop,
	}

	// Hold the wait group open for the lifetime of the root context,
	// so that Wait does not return before shutdown begins.
	w.wg.Add(1)
	go w.awaitShutdown(ctx)

	return w, wCtx
}

func (w *Watchdog) awaitShutdown(rootCtx context.Context) {
	defer w.wg.Done()

	<-rootCtx.Done()

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
}

// Wait blocks until the root context passed to [New] is canceled
// and every monitor goroutine has returned.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// Terminate cancels the watchdog context with a [ForcedTerminationError].
// Only the first call, or cancellation of the parent context, sets the cause.
func (w *Watchdog) Terminate(reason string) {
	w.cancel(ForcedTerminationError{Reason: reason})
}

// Monitor starts monitoring a subsystem.
// The subsystem must receive from the returned channel in its main loop
// and close each [Signal.Alive] promptly.
//
// Monitor panics if cfg is invalid.
// It returns nil for a nop watchdog or after shutdown has begun;
// a nil channel is never ready in a select statement.
func (w *Watchdog) Monitor(cfg MonitorConfig) <-chan Signal {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("BUG: invalid MonitorConfig: %w", err))
	}

	if w.nop {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}

	// Unbuffered: a value sitting in a buffer would not prove liveness.
	sigCh := make(chan Signal)
	m := &monitor{
		log:    w.log.With("target", cfg.Name),
		cfg:    cfg,
		sigCh:  sigCh,
		cancel: w.cancel,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}

	w.wg.Add(1)
	go m.run(w.wCtx, &w.wg)

	return sigCh
}

type monitor struct {
	log *slog.Logger
	cfg MonitorConfig

	sigCh  chan<- Signal
	cancel context.CancelCauseFunc

	// Per-monitor source to avoid contention on the global one.
	rng *rand.Rand
}

func (m *monitor) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		jitter := time.Duration(m.rng.Int64N(int64(2*m.cfg.Jitter))) - m.cfg.Jitter
		wait := time.NewTimer(m.cfg.Interval + jitter)

		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}

		if !m.check(ctx) {
			return
		}
	}
}

// check sends one signal and waits for its acknowledgement.
// It returns false once the monitor should stop.
func (m *monitor) check(ctx context.Context) bool {
	alive := make(chan struct{})
	deadline := time.NewTimer(m.cfg.ResponseTimeout)
	defer deadline.Stop()

	select {
	case <-ctx.Done():
		return false
	case m.sigCh <- Signal{Alive: alive}:
	case <-deadline.C:
		m.fail("signal not accepted")
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-alive:
		return true
	case <-deadline.C:
		// Both cases may have been ready at once; prefer the acknowledgement.
		select {
		case <-alive:
			return true
		default:
		}
		m.fail("signal not acknowledged")
		return false
	}
}

func (m *monitor) fail(reason string) {
	m.log.Error(
		"Subsystem failed watchdog check; terminating",
		"reason", reason, "timeout", m.cfg.ResponseTimeout,
	)
	m.cancel(FailureToRespondError{SubsystemName: m.cfg.Name})
}
