package mvhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/tv42/httpunix"
)

const (
	DefaultCallbackQueueSize = 64
	DefaultCallbackTimeout   = 5 * time.Second
)

// Host name used in callback URLs when delivering over a unix socket.
const unixCallbackHost = "kzhost"

// CallbackConfig is the configuration for [NewCallbackHost].
type CallbackConfig struct {
	// Where messages are POSTed.
	// When SocketPath is set, URL is only the request path, such as "/callback".
	URL string

	// Optional unix socket path of the host.
	SocketPath string

	// Ignored when SocketPath is set.
	// Defaults to a client with no timeout of its own;
	// each request is bounded by Timeout.
	Client *http.Client

	// Number of notices and vote updates that may wait for delivery.
	// Messages beyond this are dropped.
	QueueSize int

	// Per request timeout.
	Timeout time.Duration
}

// CallbackHost delivers engine output to the game server host.
//
// Notices and vote updates are queued and POSTed in order by a single goroutine,
// so the kernel never waits on the network.
// Map changes are POSTed synchronously, as [mvengine.MapChanger] allows.
type CallbackHost struct {
	log *slog.Logger

	client  *http.Client
	url     string
	timeout time.Duration

	queue chan any
	done  chan struct{}
}

type noticeMessage struct {
	Type string `json:"type"`

	// Nil for broadcasts.
	PlayerID *int `json:"player_id,omitempty"`

	Message string `json:"message"`
}

type changeMapMessage struct {
	Type       string `json:"type"`
	WorkshopID int64  `json:"workshop_id"`
}

type voteUpdateMessage struct {
	Type      string    `json:"type"`
	VoteID    string    `json:"vote_id"`
	Options   []mapJSON `json:"options"`
	Tally     []int     `json:"tally"`
	Remaining int       `json:"remaining"`
}

type voteClosedMessage struct {
	Type   string `json:"type"`
	VoteID string `json:"vote_id"`
}

// NewCallbackHost returns a CallbackHost delivering messages until ctx is canceled.
func NewCallbackHost(ctx context.Context, log *slog.Logger, cfg CallbackConfig) (*CallbackHost, error) {
	if cfg.URL == "" {
		return nil, errors.New("callback URL must not be empty")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultCallbackQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallbackTimeout
	}

	client := cfg.Client
	u := cfg.URL
	if cfg.SocketPath != "" {
		if !strings.HasPrefix(u, "/") {
			return nil, fmt.Errorf("callback URL %q must be a path when a socket path is set", u)
		}

		tr := &httpunix.Transport{
			DialTimeout:           100 * time.Millisecond,
			RequestTimeout:        cfg.Timeout,
			ResponseHeaderTimeout: cfg.Timeout,
		}
		tr.RegisterLocation(unixCallbackHost, cfg.SocketPath)

		client = &http.Client{Transport: tr}
		u = httpunix.Scheme + "://" + unixCallbackHost + u
	} else if client == nil {
		client = new(http.Client)
	}

	h := &CallbackHost{
		log: log,

		client:  client,
		url:     u,
		timeout: cfg.Timeout,

		queue: make(chan any, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go h.run(ctx)

	return h, nil
}

// Wait blocks until the delivery goroutine has stopped.
// Messages still queued at that point are discarded.
func (h *CallbackHost) Wait() {
	<-h.done
}

func (h *CallbackHost) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			if err := h.post(ctx, msg); err != nil && ctx.Err() == nil {
				h.log.Warn("Failed to deliver callback message", "err", err)
			}
		}
	}
}

func (h *CallbackHost) enqueue(msg any) {
	select {
	case h.queue <- msg:
	default:
		h.log.Warn("Callback queue full; dropping message", "msg", msg)
	}
}

func (h *CallbackHost) post(ctx context.Context, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal callback message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

func (h *CallbackHost) Broadcast(_ context.Context, msg string) {
	h.enqueue(noticeMessage{Type: "notice", Message: msg})
}

func (h *CallbackHost) Tell(_ context.Context, playerID int, msg string) {
	h.enqueue(noticeMessage{Type: "notice", PlayerID: &playerID, Message: msg})
}

func (h *CallbackHost) ShowVote(_ context.Context, v mvengine.VoteView) {
	h.enqueue(voteUpdateMessage{
		Type:      "vote_update",
		VoteID:    v.ID.String(),
		Options:   toMapsJSON(v.Options),
		Tally:     v.Tally,
		Remaining: v.Remaining,
	})
}

func (h *CallbackHost) CloseVote(_ context.Context, id uuid.UUID) {
	h.enqueue(voteClosedMessage{Type: "vote_closed", VoteID: id.String()})
}

// ChangeMap asks the host to load the workshop map.
// It does not wait for queued notices to be delivered first.
func (h *CallbackHost) ChangeMap(ctx context.Context, workshopID int64) error {
	if err := h.post(ctx, changeMapMessage{Type: "change_map", WorkshopID: workshopID}); err != nil {
		return fmt.Errorf("failed to change map to %d: %w", workshopID, err)
	}
	return nil
}
