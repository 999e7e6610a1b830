package mvengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/internal/gchan"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/kzmapvote/kzmapvote/mvnom"
	"github.com/kzmapvote/kzmapvote/mvrtv"
	"github.com/kzmapvote/kzmapvote/mvsession"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
)

var (
	// A command was rejected because a vote is running.
	ErrVoteInProgress = errors.New("vote already in progress")

	// A command was rejected because the winning map is about to load.
	ErrMapChanging = errors.New("map is changing")

	// The nominate command did not have exactly one non-empty argument.
	ErrUsage = errors.New("nominate requires exactly one non-empty argument")

	// The engine's context was canceled before the call completed.
	ErrStopped = errors.New("engine stopped")
)

// RTVResult is the result of a successful [*Engine.RTV] call.
type RTVResult struct {
	Count, Required int

	// Whether this request started the vote.
	Started bool
}

// Status is a point-in-time copy of the engine state.
type Status struct {
	SessionID uuid.UUID
	State     mvsession.State

	Slate     []mvmap.Entry
	Tally     []int
	Remaining int

	Nominations []mvmap.Entry
	RTVCount    int

	MapChanging bool
	PendingMap  mvmap.Entry

	PoolSize      int
	PoolFetchedAt time.Time
}

// Engine is the map vote engine.
// Its exported methods are safe for concurrent use.
type Engine struct {
	log *slog.Logger

	// Root context, so that callers do not block on a stopped kernel.
	ctx context.Context

	commandRequests chan commandRequest
	eventRequests   chan eventRequest
	statusRequests  chan chan Status

	nominationResults chan nominationResult
	refreshFailures   chan error
	mapChangeResults  chan mapChangeResult

	bgWG       sync.WaitGroup
	kernelDone chan struct{}
}

// New validates cfg and starts the engine.
// The engine runs until ctx is canceled; use [*Engine.Wait] to block until it stops.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Engine, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		log: log,

		ctx: ctx,

		// Unbuffered since callers block for the response anyway.
		commandRequests: make(chan commandRequest),
		eventRequests:   make(chan eventRequest),
		statusRequests:  make(chan chan Status),

		nominationResults: make(chan nominationResult, 4),
		refreshFailures:   make(chan error, 1),
		mapChangeResults:  make(chan mapChangeResult, 1),

		kernelDone: make(chan struct{}),
	}

	prefix := mvworkshop.DefaultRequiredPrefix
	if p, ok := cfg.Resolver.(interface{ RequiredPrefix() string }); ok {
		prefix = p.RequiredPrefix()
	}

	k := &kernel{
		e:   e,
		log: log.With("sys", "kernel"),
		cfg: cfg,

		requiredPrefix: prefix,

		session: mvsession.New(cfg.Rand),
		noms:    mvnom.NewRegistry(cfg.SlotCount - 1),
		rtv:     mvrtv.NewAggregator(),
	}

	wSig := cfg.Watchdog.Monitor(watchdogConfig)

	go k.run(ctx, wSig)

	e.bgWG.Add(1)
	go e.refreshPool(ctx, cfg)

	return e, nil
}

// Wait blocks until the kernel and all background goroutines have stopped.
func (e *Engine) Wait() {
	// The kernel adds to bgWG, so it must finish before waiting on the group.
	<-e.kernelDone
	e.bgWG.Wait()
}

type commandKind uint8

const (
	commandRTV commandKind = iota
	commandNominate
	commandBallot
)

type commandRequest struct {
	Kind   commandKind
	Player Player

	ConnectedPlayers int
	Args             []string
	Option           int

	Resp chan commandResponse
}

type commandResponse struct {
	RTV RTVResult
	Err error
}

type eventKind uint8

const (
	eventDisconnect eventKind = iota
	eventMapLoaded
	eventForcedMapChange
)

type eventRequest struct {
	Kind     eventKind
	PlayerID int

	Handled chan struct{}
}

type nominationResult struct {
	Player Player
	Input  string
	Entry  mvmap.Entry
	Err    error
}

type mapChangeResult struct {
	Entry mvmap.Entry
	Err   error
}

// RTV records the player's request for a map vote.
// connectedPlayers is the host's current player count,
// from which the required number of requests is derived.
//
// A vote starts when this request brings the count exactly to the requirement.
// If the vote fails to start, the returned error satisfies
// errors.Is(err, [mvsession.ErrPoolTooSmall]).
// RTV is rejected with [ErrVoteInProgress] or [ErrMapChanging].
func (e *Engine) RTV(ctx context.Context, p Player, connectedPlayers int) (RTVResult, error) {
	resp, err := e.command(ctx, commandRequest{
		Kind:             commandRTV,
		Player:           p,
		ConnectedPlayers: connectedPlayers,
	}, "requesting RTV")
	if err != nil {
		return RTVResult{}, err
	}
	return resp.RTV, resp.Err
}

// Nominate starts resolving a nomination from the command arguments.
// A nil error means resolution started in the background;
// the outcome is reported to players through the [Notifier].
//
// Nominate is rejected with [ErrVoteInProgress], [ErrMapChanging],
// [ErrUsage], or [mvnom.ErrFull].
func (e *Engine) Nominate(ctx context.Context, p Player, args []string) error {
	resp, err := e.command(ctx, commandRequest{
		Kind:   commandNominate,
		Player: p,
		Args:   args,
	}, "requesting nomination")
	if err != nil {
		return err
	}
	return resp.Err
}

// Ballot casts or moves the player's vote.
// Errors from [*mvsession.Session.CastBallot] are returned unchanged.
func (e *Engine) Ballot(ctx context.Context, p Player, option int) error {
	resp, err := e.command(ctx, commandRequest{
		Kind:   commandBallot,
		Player: p,
		Option: option,
	}, "casting ballot")
	if err != nil {
		return err
	}
	return resp.Err
}

// callCtx returns a context derived from ctx
// that is also canceled, with cause [ErrStopped], when the engine stops.
func (e *Engine) callCtx(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(e.ctx, func() { cancel(ErrStopped) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

func (e *Engine) command(ctx context.Context, req commandRequest, what string) (commandResponse, error) {
	ctx, done := e.callCtx(ctx)
	defer done()

	req.Resp = make(chan commandResponse, 1)
	resp, ok := gchan.ReqResp(ctx, e.log, e.commandRequests, req, req.Resp, what)
	if !ok {
		return commandResponse{}, context.Cause(ctx)
	}
	return resp, nil
}

// PlayerDisconnected removes the player's ballot and RTV request.
func (e *Engine) PlayerDisconnected(ctx context.Context, playerID int) error {
	return e.event(ctx, eventRequest{Kind: eventDisconnect, PlayerID: playerID}, "reporting disconnect")
}

// MapLoaded reports that the host finished loading a map.
// It ends any pending map change and clears RTV requests.
func (e *Engine) MapLoaded(ctx context.Context) error {
	return e.event(ctx, eventRequest{Kind: eventMapLoaded}, "reporting map loaded")
}

// ForcedMapChange reports a map change not caused by the vote,
// such as an admin command. It cancels any active vote.
func (e *Engine) ForcedMapChange(ctx context.Context) error {
	return e.event(ctx, eventRequest{Kind: eventForcedMapChange}, "reporting forced map change")
}

func (e *Engine) event(ctx context.Context, req eventRequest, what string) error {
	ctx, done := e.callCtx(ctx)
	defer done()

	req.Handled = make(chan struct{})
	if !gchan.SendC(ctx, e.log, e.eventRequests, req, what) {
		return context.Cause(ctx)
	}
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-req.Handled:
		return nil
	}
}

// Status returns a copy of the current engine state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	ctx, done := e.callCtx(ctx)
	defer done()

	resp := make(chan Status, 1)
	s, ok := gchan.ReqResp(ctx, e.log, e.statusRequests, resp, resp, "requesting status")
	if !ok {
		return Status{}, context.Cause(ctx)
	}
	return s, nil
}

// refreshPool refreshes the map pool at startup and then periodically.
// Failures are forwarded to the kernel to be announced.
func (e *Engine) refreshPool(ctx context.Context, cfg Config) {
	defer e.bgWG.Done()

	refresh := func() {
		err := cfg.Cache.Refresh(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		e.log.Warn("Map pool refresh failed", "err", err)
		select {
		case e.refreshFailures <- err:
		default:
			// A failure is already waiting to be announced.
		}
	}

	refresh()

	if cfg.RefreshInterval < 0 {
		return
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
