package mvenginetest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvmap"
)

// Notice is a message recorded by [*Host].
type Notice struct {
	// -1 for broadcasts.
	PlayerID int

	Msg string
}

// BroadcastID is the PlayerID of a broadcast [Notice].
const BroadcastID = -1

// Host records every interaction the engine has with its host.
// It implements [mvengine.Notifier], [mvengine.MapChanger], and [mvengine.VoteDisplay].
type Host struct {
	// Notices in emission order.
	Notices chan Notice

	// Workshop IDs passed to ChangeMap.
	MapChanges chan int64

	// Views passed to ShowVote.
	Views chan mvengine.VoteView

	// IDs passed to CloseVote.
	Closed chan uuid.UUID

	mu           sync.Mutex
	changeMapErr error
}

func NewHost() *Host {
	return &Host{
		Notices:    make(chan Notice, 256),
		MapChanges: make(chan int64, 8),
		Views:      make(chan mvengine.VoteView, 256),
		Closed:     make(chan uuid.UUID, 8),
	}
}

func (h *Host) Broadcast(_ context.Context, msg string) {
	h.Notices <- Notice{PlayerID: BroadcastID, Msg: msg}
}

func (h *Host) Tell(_ context.Context, playerID int, msg string) {
	h.Notices <- Notice{PlayerID: playerID, Msg: msg}
}

// SetChangeMapError sets the error returned by subsequent ChangeMap calls.
func (h *Host) SetChangeMapError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changeMapErr = err
}

func (h *Host) ChangeMap(_ context.Context, workshopID int64) error {
	h.MapChanges <- workshopID

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.changeMapErr
}

func (h *Host) ShowVote(_ context.Context, v mvengine.VoteView) {
	select {
	case h.Views <- v:
	default:
		// Tests that care about views drain them.
	}
}

func (h *Host) CloseVote(_ context.Context, id uuid.UUID) {
	h.Closed <- id
}

// DrainNotices returns every notice recorded so far, without blocking.
func (h *Host) DrainNotices() []Notice {
	var out []Notice
	for {
		select {
		case n := <-h.Notices:
			out = append(out, n)
		default:
			return out
		}
	}
}

// DrainViews discards every recorded view and returns the most recent one.
func (h *Host) DrainViews() (last mvengine.VoteView, ok bool) {
	for {
		select {
		case v := <-h.Views:
			last, ok = v, true
		default:
			return last, ok
		}
	}
}

// Titles is an in-memory [mvworkshop.TitleFetcher].
type Titles struct {
	mu     sync.Mutex
	titles map[int64]string
}

func NewTitles() *Titles {
	return &Titles{titles: make(map[int64]string)}
}

func (t *Titles) Set(workshopID int64, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.titles[workshopID] = title
}

func (t *Titles) FetchTitle(_ context.Context, workshopID int64) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	title, ok := t.titles[workshopID]
	return title, ok, nil
}

// GatedResolver wraps a resolver so that each Resolve call
// blocks until the test releases it.
type GatedResolver struct {
	Inner mvengine.NominationResolver

	// Receives the input of each Resolve call once it begins.
	Started chan string

	// Each value sent releases one blocked Resolve call.
	Release chan struct{}
}

func NewGatedResolver(inner mvengine.NominationResolver) *GatedResolver {
	return &GatedResolver{
		Inner:   inner,
		Started: make(chan string, 8),
		Release: make(chan struct{}),
	}
}

func (r *GatedResolver) Resolve(ctx context.Context, input string) (mvmap.Entry, error) {
	r.Started <- input

	select {
	case <-ctx.Done():
		return mvmap.Entry{}, context.Cause(ctx)
	case <-r.Release:
	}

	return r.Inner.Resolve(ctx, input)
}

// RequiredPrefix forwards to the inner resolver when it reports one.
func (r *GatedResolver) RequiredPrefix() string {
	if p, ok := r.Inner.(interface{ RequiredPrefix() string }); ok {
		return p.RequiredPrefix()
	}
	return ""
}
