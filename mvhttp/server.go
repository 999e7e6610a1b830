package mvhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/kzmapvote/kzmapvote/mvnom"
	"github.com/kzmapvote/kzmapvote/mvsession"
)

// Engine is the subset of [*mvengine.Engine] served over HTTP.
type Engine interface {
	RTV(ctx context.Context, p mvengine.Player, connectedPlayers int) (mvengine.RTVResult, error)
	Nominate(ctx context.Context, p mvengine.Player, args []string) error
	Ballot(ctx context.Context, p mvengine.Player, option int) error

	PlayerDisconnected(ctx context.Context, playerID int) error
	MapLoaded(ctx context.Context) error
	ForcedMapChange(ctx context.Context) error

	Status(ctx context.Context) (mvengine.Status, error)
}

// Pool is the subset of [*mvpool.Cache] served over HTTP.
type Pool interface {
	Snapshot() []mvmap.Entry
	FetchedAt() time.Time
	FindByName(substr string, maxMatches int) []mvmap.Entry
}

// DefaultSearchLimit is the number of matches returned by GET /pool?q=
// when no limit is given.
const DefaultSearchLimit = 10

// Request bodies larger than this are rejected.
const maxBodyBytes = 64 << 10

type Server struct {
	done chan struct{}
}

type ServerConfig struct {
	Listener net.Listener

	Engine Engine
	Pool   Pool
}

// NewServer serves the host bridge on cfg.Listener until ctx is canceled.
func NewServer(ctx context.Context, log *slog.Logger, cfg ServerConfig) *Server {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},

		ReadHeaderTimeout: 5 * time.Second,
	}

	s := &Server{
		done: make(chan struct{}),
	}
	go s.serve(log, cfg.Listener, srv)
	go s.waitForShutdown(ctx, srv)

	return s
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *Server) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg ServerConfig) http.Handler {
	r := mux.NewRouter()

	h := handler{log: log, e: cfg.Engine, pool: cfg.Pool}

	cmds := r.PathPrefix("/commands").Subrouter()
	cmds.HandleFunc("/rtv", h.HandleRTV).Methods("POST")
	cmds.HandleFunc("/nominate", h.HandleNominate).Methods("POST")
	cmds.HandleFunc("/ballot", h.HandleBallot).Methods("POST")

	events := r.PathPrefix("/events").Subrouter()
	events.HandleFunc("/disconnect", h.HandleDisconnect).Methods("POST")
	events.HandleFunc("/map-loaded", h.HandleMapLoaded).Methods("POST")
	events.HandleFunc("/forced-map-change", h.HandleForcedMapChange).Methods("POST")

	r.HandleFunc("/vote", h.HandleVote).Methods("GET")
	r.HandleFunc("/pool", h.HandlePool).Methods("GET")

	return r
}

type handler struct {
	log  *slog.Logger
	e    Engine
	pool Pool
}

// decode reads a JSON request body into v.
// On failure it writes a 400 response and returns false.
func (h handler) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(h.log, w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
		})
		return false
	}
	return true
}

// writeError maps engine errors to status codes.
func (h handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case mvengine.IsRejection(err),
		errors.Is(err, mvnom.ErrFull),
		errors.Is(err, mvsession.ErrNotActive):
		status = http.StatusConflict

	case errors.Is(err, mvengine.ErrUsage),
		errors.Is(err, mvsession.ErrInvalidOption):
		status = http.StatusBadRequest

	case errors.Is(err, mvsession.ErrPoolTooSmall),
		errors.Is(err, mvengine.ErrStopped):
		status = http.StatusServiceUnavailable

	default:
		h.log.Warn("Unexpected engine error", "err", err)
	}

	writeJSON(h.log, w, status, errorResponse{Error: err.Error()})
}

func (h handler) HandleRTV(w http.ResponseWriter, req *http.Request) {
	var r rtvRequest
	if !h.decode(w, req, &r) {
		return
	}
	if r.ConnectedPlayers < 1 {
		writeJSON(h.log, w, http.StatusBadRequest, errorResponse{
			Error: "connected_players must be positive",
		})
		return
	}

	res, err := h.e.RTV(req.Context(), r.player(), r.ConnectedPlayers)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, rtvResponse{
		Count:    res.Count,
		Required: res.Required,
		Started:  res.Started,
	})
}

func (h handler) HandleNominate(w http.ResponseWriter, req *http.Request) {
	var r nominateRequest
	if !h.decode(w, req, &r) {
		return
	}

	if err := h.e.Nominate(req.Context(), r.player(), r.Args); err != nil {
		h.writeError(w, err)
		return
	}

	// The outcome is announced through the callback host.
	w.WriteHeader(http.StatusAccepted)
}

func (h handler) HandleBallot(w http.ResponseWriter, req *http.Request) {
	var r ballotRequest
	if !h.decode(w, req, &r) {
		return
	}

	if err := h.e.Ballot(req.Context(), r.player(), r.Option); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h handler) HandleDisconnect(w http.ResponseWriter, req *http.Request) {
	var r disconnectRequest
	if !h.decode(w, req, &r) {
		return
	}

	h.finishEvent(w, h.e.PlayerDisconnected(req.Context(), r.PlayerID))
}

func (h handler) HandleMapLoaded(w http.ResponseWriter, req *http.Request) {
	h.finishEvent(w, h.e.MapLoaded(req.Context()))
}

func (h handler) HandleForcedMapChange(w http.ResponseWriter, req *http.Request) {
	h.finishEvent(w, h.e.ForcedMapChange(req.Context()))
}

func (h handler) finishEvent(w http.ResponseWriter, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) HandleVote(w http.ResponseWriter, req *http.Request) {
	s, err := h.e.Status(req.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(h.log, w, http.StatusOK, toStatusResponse(s))
}

// HandlePool lists the map pool.
// With a q parameter, only maps whose name contains q are listed,
// up to the limit parameter.
func (h handler) HandlePool(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	var maps []mvmap.Entry
	if q := query.Get("q"); q != "" {
		limit := DefaultSearchLimit
		if l := query.Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 1 {
				writeJSON(h.log, w, http.StatusBadRequest, errorResponse{
					Error: fmt.Sprintf("invalid limit %q", l),
				})
				return
			}
			limit = n
		}
		maps = h.pool.FindByName(q, limit)
	} else {
		maps = h.pool.Snapshot()
	}

	writeJSON(h.log, w, http.StatusOK, poolResponse{
		FetchedAt: h.pool.FetchedAt(),
		Count:     len(maps),
		Maps:      toMapsJSON(maps),
	})
}
