package mvhttp_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvhttp"
	"github.com/kzmapvote/kzmapvote/mvmap"
	"github.com/stretchr/testify/require"
)

// recordingHandler sends every decoded request body to Bodies.
type recordingHandler struct {
	Bodies chan map[string]any
	Status int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		Bodies: make(chan map[string]any, 16),
		Status: http.StatusNoContent,
	}
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var m map[string]any
	if err := json.NewDecoder(req.Body).Decode(&m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Bodies <- m
	w.WriteHeader(h.Status)
}

func TestCallbackHost(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newRecordingHandler()
	srv := httptest.NewServer(rec)
	defer srv.Close()

	h, err := mvhttp.NewCallbackHost(ctx, gtest.NewLogger(t), mvhttp.CallbackConfig{
		URL:    srv.URL + "/callback",
		Client: srv.Client(),
	})
	require.NoError(t, err)
	defer h.Wait()
	defer cancel()

	t.Run("notices are delivered in order", func(t *testing.T) {
		h.Broadcast(ctx, "first")
		h.Tell(ctx, 7, "second")

		require.Equal(t, map[string]any{
			"type": "notice", "message": "first",
		}, gtest.ReceiveSoon(t, rec.Bodies))
		require.Equal(t, map[string]any{
			"type": "notice", "player_id": 7.0, "message": "second",
		}, gtest.ReceiveSoon(t, rec.Bodies))
	})

	t.Run("vote updates", func(t *testing.T) {
		id := uuid.New()
		h.ShowVote(ctx, mvengine.VoteView{
			ID: id,
			Options: []mvmap.Entry{
				{Name: "kz_a", WorkshopID: 3000000001, Tier: 2},
				mvmap.NoChange,
			},
			Tally:     []int{1, 0},
			Remaining: 12,
		})
		h.CloseVote(ctx, id)

		update := gtest.ReceiveSoon(t, rec.Bodies)
		require.Equal(t, "vote_update", update["type"])
		require.Equal(t, id.String(), update["vote_id"])
		require.Equal(t, []any{1.0, 0.0}, update["tally"])
		require.Equal(t, 12.0, update["remaining"])

		opts := update["options"].([]any)
		require.Len(t, opts, 2)
		require.Equal(t, "kz_a (T2)", opts[0].(map[string]any)["display"])

		require.Equal(t, map[string]any{
			"type": "vote_closed", "vote_id": id.String(),
		}, gtest.ReceiveSoon(t, rec.Bodies))
	})

	t.Run("map change", func(t *testing.T) {
		require.NoError(t, h.ChangeMap(ctx, 3000000001))
		require.Equal(t, map[string]any{
			"type": "change_map", "workshop_id": 3000000001.0,
		}, gtest.ReceiveSoon(t, rec.Bodies))
	})
}

func TestCallbackHost_ChangeMap_errorStatus(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newRecordingHandler()
	rec.Status = http.StatusInternalServerError
	srv := httptest.NewServer(rec)
	defer srv.Close()

	h, err := mvhttp.NewCallbackHost(ctx, gtest.NewLogger(t), mvhttp.CallbackConfig{
		URL:    srv.URL,
		Client: srv.Client(),
	})
	require.NoError(t, err)
	defer h.Wait()
	defer cancel()

	err = h.ChangeMap(ctx, 3000000001)
	require.ErrorContains(t, err, "status 500")
}

func TestCallbackHost_unixSocket(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sockPath := filepath.Join(t.TempDir(), "host.sock")
	ln, err := (new(net.ListenConfig)).Listen(ctx, "unix", sockPath)
	require.NoError(t, err)

	rec := newRecordingHandler()
	srv := &http.Server{Handler: rec}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	h, err := mvhttp.NewCallbackHost(ctx, gtest.NewLogger(t), mvhttp.CallbackConfig{
		URL:        "/callback",
		SocketPath: sockPath,
	})
	require.NoError(t, err)
	defer h.Wait()
	defer cancel()

	h.Broadcast(ctx, "over the socket")
	require.Equal(t, "over the socket", gtest.ReceiveSoon(t, rec.Bodies)["message"])
}

func TestNewCallbackHost_invalidConfig(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := gtest.NewLogger(t)

	_, err := mvhttp.NewCallbackHost(ctx, log, mvhttp.CallbackConfig{})
	require.Error(t, err)

	_, err = mvhttp.NewCallbackHost(ctx, log, mvhttp.CallbackConfig{
		URL:        "http://localhost/callback",
		SocketPath: "/tmp/host.sock",
	})
	require.Error(t, err)
}
