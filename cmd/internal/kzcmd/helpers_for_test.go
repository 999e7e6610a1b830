package kzcmd_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kzmapvote/kzmapvote/cmd/internal/kzcmd"
	"github.com/stretchr/testify/require"
)

func NewCmdEnv(t *testing.T, log *slog.Logger) CmdEnv {
	t.Helper()

	return CmdEnv{
		log:     log,
		homeDir: t.TempDir(),
	}
}

// CmdEnv runs kzmapvote commands in-process.
type CmdEnv struct {
	log     *slog.Logger
	homeDir string
}

func (e CmdEnv) Run(args ...string) RunResult {
	return e.RunC(context.Background(), args...)
}

func (e CmdEnv) RunC(ctx context.Context, args ...string) RunResult {
	return e.RunWithInputC(ctx, nil, args...)
}

func (e CmdEnv) RunWithInputC(ctx context.Context, in io.Reader, args ...string) RunResult {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := kzcmd.NewRootCmd(e.log, new(slog.LevelVar))
	cmd.SetArgs(args)

	var res RunResult
	cmd.SetOut(&res.Stdout)
	cmd.SetErr(&res.Stderr)
	cmd.SetIn(in)

	res.Err = cmd.ExecuteContext(ctx)

	return res
}

type RunResult struct {
	Stdout, Stderr bytes.Buffer
	Err            error
}

func (r RunResult) NoError(t *testing.T) {
	t.Helper()

	require.NoErrorf(t, r.Err, "stdout:\n%s\n\nstderr:\n%s", r.Stdout.String(), r.Stderr.String())
}

const poolBody = `{"values": [
  {"workshop_id": 3121168339, "name": "kz_grotto",
   "courses": [{"filters": {"classic": {"nub_tier": "medium"}}}]},
  {"workshop_id": 3070243281, "name": "kz_checkmate",
   "courses": [{"filters": {"classic": {"nub_tier": "very-hard"}}}]}
]}`

// newPoolServer serves poolBody at /maps.
func newPoolServer(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/maps" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, poolBody)
	}))
	t.Cleanup(srv.Close)

	return srv.URL + "/maps"
}

// newSteamServer answers GetDetails requests for the single workshop ID it knows.
func newSteamServer(t *testing.T, workshopID, title string) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if req.URL.Query().Get("publishedfileids[0]") != workshopID {
			_, _ = io.WriteString(w, `{"response": {"publishedfiledetails": [{"result": 9}]}}`)
			return
		}
		_, _ = io.WriteString(w, `{"response": {"publishedfiledetails": [{"title": "`+title+`"}]}}`)
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}
