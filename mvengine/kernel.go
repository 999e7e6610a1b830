package mvengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/trace"
	"time"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/internal/glog"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/kzmapvote/kzmapvote/mvnom"
	"github.com/kzmapvote/kzmapvote/mvrtv"
	"github.com/kzmapvote/kzmapvote/mvsession"
	"github.com/kzmapvote/kzmapvote/mvwatchdog"
)

var watchdogConfig = mvwatchdog.MonitorConfig{
	Name: "mvengine",

	Interval: 10 * time.Second, Jitter: time.Second,

	ResponseTimeout: 5 * time.Second,
}

// kernel holds all state owned by the kernel goroutine.
type kernel struct {
	e   *Engine
	log *slog.Logger
	cfg Config

	requiredPrefix string

	session *mvsession.Session
	noms    *mvnom.Registry
	rtv     *mvrtv.Aggregator

	mapChanging bool
	pendingMap  mvmap.Entry

	// Nil channels while no countdown or grace timer is running.
	ticks        <-chan struct{}
	stopTicks    func()
	graceElapsed <-chan struct{}
	cancelGrace  func()
}

func (k *kernel) run(ctx context.Context, wSig <-chan mvwatchdog.Signal) {
	defer close(k.e.kernelDone)

	ctx, task := trace.NewTask(ctx, "mvengine.kernel")
	defer task.End()

	defer k.stopCountdown()
	defer k.stopGrace()

	for {
		select {
		case <-ctx.Done():
			k.log.Info("Stopping", "cause", context.Cause(ctx))
			return

		case sig := <-wSig:
			close(sig.Alive)

		case req := <-k.e.commandRequests:
			req.Resp <- k.handleCommand(ctx, req)

		case req := <-k.e.eventRequests:
			k.handleEvent(ctx, req)
			close(req.Handled)

		case resp := <-k.e.statusRequests:
			resp <- k.status()

		case res := <-k.e.nominationResults:
			k.applyNomination(ctx, res)

		case <-k.e.refreshFailures:
			k.cfg.Notifier.Broadcast(ctx, noticePoolFetchError)

		case res := <-k.e.mapChangeResults:
			k.handleMapChangeResult(res)

		case <-k.ticks:
			k.handleTick(ctx)

		case <-k.graceElapsed:
			k.handleGraceElapsed(ctx)
		}
	}
}

func (k *kernel) handleCommand(ctx context.Context, req commandRequest) commandResponse {
	switch req.Kind {
	case commandRTV:
		res, err := k.handleRTV(ctx, req.Player, req.ConnectedPlayers)
		return commandResponse{RTV: res, Err: err}
	case commandNominate:
		return commandResponse{Err: k.handleNominate(ctx, req.Player, req.Args)}
	case commandBallot:
		return commandResponse{Err: k.handleBallot(ctx, req.Player, req.Option)}
	default:
		panic(fmt.Errorf("BUG: unknown command kind %d", req.Kind))
	}
}

// gate rejects commands that are only valid between votes.
func (k *kernel) gate(ctx context.Context, p Player) error {
	if k.session.Active() {
		k.cfg.Notifier.Tell(ctx, p.ID, noticeVoteInProgress)
		return ErrVoteInProgress
	}
	if k.mapChanging {
		k.cfg.Notifier.Tell(ctx, p.ID, noticeMapChanging)
		return ErrMapChanging
	}
	return nil
}

func (k *kernel) handleRTV(ctx context.Context, p Player, connected int) (RTVResult, error) {
	if err := k.gate(ctx, p); err != nil {
		return RTVResult{}, err
	}

	count, required := k.rtv.Request(p.ID, connected)
	k.cfg.Notifier.Broadcast(ctx, noticeRTVProgress(count, required))

	res := RTVResult{Count: count, Required: required}
	if !k.rtv.ShouldTrigger() {
		return res, nil
	}

	k.cfg.Notifier.Broadcast(ctx, noticeVoteStarting(k.cfg.VoteDuration))
	err := k.startVote(ctx)

	// Requests are consumed whether or not the vote could start.
	k.rtv.Reset()

	if err != nil {
		k.log.Warn("Failed to start vote", "err", err)
		k.cfg.Notifier.Broadcast(ctx, noticePoolTooSmall)
		return res, err
	}

	res.Started = true
	return res, nil
}

func (k *kernel) startVote(ctx context.Context) error {
	if err := k.session.Start(
		k.noms.Snapshot(), k.cfg.Cache.Snapshot(),
		k.cfg.SlotCount, k.cfg.VoteDuration,
	); err != nil {
		return err
	}

	// The slate holds the nominations now.
	k.noms.Clear()

	k.ticks, k.stopTicks = k.cfg.Countdown.Start(ctx, time.Second)

	glog.Session(k.log, k.session.ID()).Info(
		"Vote started",
		"options", k.session.Slate(), "duration", k.cfg.VoteDuration,
	)
	k.showVote(ctx)
	return nil
}

func (k *kernel) handleNominate(ctx context.Context, p Player, args []string) error {
	if err := k.gate(ctx, p); err != nil {
		return err
	}
	if len(args) != 1 || args[0] == "" {
		k.cfg.Notifier.Tell(ctx, p.ID, noticeUsage)
		return ErrUsage
	}
	if k.noms.Full() {
		k.cfg.Notifier.Tell(ctx, p.ID, noticeNomLimit)
		return mvnom.ErrFull
	}

	k.e.bgWG.Add(1)
	go k.e.resolveNomination(ctx, k.cfg.Resolver, p, args[0])
	return nil
}

// resolveNomination runs on its own goroutine
// and delivers the result to the kernel.
func (e *Engine) resolveNomination(ctx context.Context, r NominationResolver, p Player, input string) {
	defer e.bgWG.Done()

	entry, err := r.Resolve(ctx, input)
	if ctx.Err() != nil {
		return
	}

	select {
	case <-ctx.Done():
	case e.nominationResults <- nominationResult{Player: p, Input: input, Entry: entry, Err: err}:
	}
}

func (k *kernel) applyNomination(ctx context.Context, res nominationResult) {
	log := glog.Player(k.log, res.Player.ID).With("input", res.Input)

	if res.Err != nil {
		log.Debug("Nomination did not resolve", "err", res.Err)
		k.cfg.Notifier.Tell(ctx, res.Player.ID, resolveNotice(res.Err, k.requiredPrefix))
		return
	}

	// The state may have changed while resolving.
	if err := k.gate(ctx, res.Player); err != nil {
		log.Info("Dropping resolved nomination", "map", res.Entry, "reason", err)
		return
	}

	if err := k.noms.TryAdd(res.Entry); err != nil {
		k.cfg.Notifier.Tell(ctx, res.Player.ID, addNotice(err))
		return
	}

	log.Info("Map nominated", "map", res.Entry)
	k.cfg.Notifier.Broadcast(ctx, noticeNominated(res.Player.Name, res.Entry.Name))
}

func (k *kernel) handleBallot(ctx context.Context, p Player, option int) error {
	if err := k.session.CastBallot(p.ID, option); err != nil {
		return err
	}
	k.showVote(ctx)
	return nil
}

func (k *kernel) handleEvent(ctx context.Context, req eventRequest) {
	switch req.Kind {
	case eventDisconnect:
		_, hadBallot := k.session.Ballot(req.PlayerID)
		k.session.RemoveBallot(req.PlayerID)
		k.rtv.Remove(req.PlayerID)
		if hadBallot {
			k.showVote(ctx)
		}

	case eventMapLoaded:
		k.mapChanging = false
		k.pendingMap = mvmap.Entry{}
		k.rtv.Reset()
		k.stopGrace()

	case eventForcedMapChange:
		// A pending vote map change must not override the new map.
		k.stopGrace()

		if !k.session.Active() {
			return
		}
		id := k.session.ID()
		k.stopCountdown()
		k.session.Cancel()
		k.noms.Clear()
		k.closeVote(ctx, id)

		glog.Session(k.log, id).Info("Vote cancelled by forced map change")
		k.cfg.Notifier.Broadcast(ctx, noticeVoteCancelled)

	default:
		panic(fmt.Errorf("BUG: unknown event kind %d", req.Kind))
	}
}

func (k *kernel) handleTick(ctx context.Context) {
	if !k.session.Active() {
		// A tick racing with a stop.
		return
	}

	if k.session.Tick() == mvsession.TickExpired {
		k.resolveVote(ctx)
		return
	}
	k.showVote(ctx)
}

func (k *kernel) resolveVote(ctx context.Context) {
	id := k.session.ID()
	k.stopCountdown()

	o := k.session.Resolve()
	k.noms.Clear()
	k.closeVote(ctx, id)

	glog.Session(k.log, id).Info(
		"Vote resolved",
		"outcome", o.Kind, "map", o.Entry, "votes", o.Votes,
	)

	switch o.Kind {
	case mvsession.OutcomeNoVotes:
		k.cfg.Notifier.Broadcast(ctx, noticeNoVotes)

	case mvsession.OutcomeNoChange:
		k.cfg.Notifier.Broadcast(ctx, noticeNoChange(o.Votes))

	case mvsession.OutcomeMapSelected:
		k.cfg.Notifier.Broadcast(ctx, noticeMapSelected(o.Entry.Name, o.Votes))

		k.mapChanging = true
		k.pendingMap = o.Entry
		k.rtv.Reset()
		k.stopGrace()
		k.graceElapsed, k.cancelGrace = k.cfg.Delayer.After(ctx, k.cfg.MapChangeDelay)

	default:
		panic(fmt.Errorf("BUG: unknown outcome kind %s", o.Kind))
	}
}

func (k *kernel) handleGraceElapsed(ctx context.Context) {
	k.stopGrace()

	entry := k.pendingMap
	k.log.Info("Changing map", "map", entry)

	k.e.bgWG.Add(1)
	go k.e.changeMap(ctx, k.cfg.MapChanger, entry)
}

// changeMap runs on its own goroutine so a slow host does not stall the kernel.
func (e *Engine) changeMap(ctx context.Context, mc MapChanger, entry mvmap.Entry) {
	defer e.bgWG.Done()

	err := mc.ChangeMap(ctx, entry.WorkshopID)
	if ctx.Err() != nil {
		return
	}

	select {
	case <-ctx.Done():
	case e.mapChangeResults <- mapChangeResult{Entry: entry, Err: err}:
	}
}

func (k *kernel) handleMapChangeResult(res mapChangeResult) {
	if res.Err == nil {
		k.log.Debug("Host accepted map change", "map", res.Entry)
		return
	}

	k.log.Error("Map change failed", "map", res.Entry, "err", res.Err)
	if k.mapChanging && k.pendingMap.Equal(res.Entry) {
		k.mapChanging = false
		k.pendingMap = mvmap.Entry{}
	}
}

func (k *kernel) stopCountdown() {
	if k.stopTicks != nil {
		k.stopTicks()
	}
	k.ticks, k.stopTicks = nil, nil
}

func (k *kernel) stopGrace() {
	if k.cancelGrace != nil {
		k.cancelGrace()
	}
	k.graceElapsed, k.cancelGrace = nil, nil
}

func (k *kernel) showVote(ctx context.Context) {
	if k.cfg.Display == nil || !k.session.Active() {
		return
	}
	k.cfg.Display.ShowVote(ctx, VoteView{
		ID:        k.session.ID(),
		Options:   k.session.Slate(),
		Tally:     k.session.Tally(),
		Remaining: k.session.Remaining(),
	})
}

func (k *kernel) closeVote(ctx context.Context, id uuid.UUID) {
	if k.cfg.Display == nil {
		return
	}
	k.cfg.Display.CloseVote(ctx, id)
}

func (k *kernel) status() Status {
	return Status{
		SessionID: k.session.ID(),
		State:     k.session.State(),

		Slate:     k.session.Slate(),
		Tally:     k.session.Tally(),
		Remaining: k.session.Remaining(),

		Nominations: k.noms.Snapshot(),
		RTVCount:    k.rtv.Len(),

		MapChanging: k.mapChanging,
		PendingMap:  k.pendingMap,

		PoolSize:      k.cfg.Cache.Len(),
		PoolFetchedAt: k.cfg.Cache.FetchedAt(),
	}
}

// IsRejection reports whether err is one of the gate rejections
// returned by [*Engine.RTV] and [*Engine.Nominate].
func IsRejection(err error) bool {
	return errors.Is(err, ErrVoteInProgress) || errors.Is(err, ErrMapChanging)
}
