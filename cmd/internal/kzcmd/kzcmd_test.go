package kzcmd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/kzmapvote/kzmapvote/mvcodec"
	"github.com/kzmapvote/kzmapvote/mvsqlite"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
	"github.com/stretchr/testify/require"
)

// outputFields splits each output line on whitespace.
func outputFields(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestFetchPool(t *testing.T) {
	t.Parallel()

	e := NewCmdEnv(t, gtest.NewLogger(t))
	poolURL := newPoolServer(t)

	res := e.Run("fetch-pool", "--pool-url", poolURL)
	res.NoError(t)

	require.Equal(t, [][]string{
		{"WORKSHOP", "ID", "NAME", "TIER"},
		{"3121168339", "kz_grotto", "3"},
		{"3070243281", "kz_checkmate", "6"},
	}, outputFields(res.Stdout.String()))
}

func TestFetchPool_savesSnapshot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewCmdEnv(t, gtest.NewLogger(t))
	poolURL := newPoolServer(t)
	dbPath := filepath.Join(t.TempDir(), "pool.sqlite")

	e.Run("fetch-pool", "--pool-url", poolURL, "--db-path", dbPath).NoError(t)

	s, err := mvsqlite.NewOnDiskStore(ctx, dbPath)
	require.NoError(t, err)
	defer s.Close()

	b, err := s.LoadPoolSnapshot(ctx, nil)
	require.NoError(t, err)

	maps, _, err := mvcodec.DecodeSnapshot(b)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	require.Equal(t, "kz_grotto", maps[0].Name)
}

func TestFetchPool_configFile(t *testing.T) {
	t.Parallel()

	e := NewCmdEnv(t, gtest.NewLogger(t))
	poolURL := newPoolServer(t)

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`pool-url = "`+poolURL+`"`+"\n"), 0o600))

	res := e.Run("fetch-pool", "--config", cfgPath)
	res.NoError(t)
	require.Contains(t, res.Stdout.String(), "kz_checkmate")
}

func TestRootCmd_invalidFlags(t *testing.T) {
	t.Parallel()

	e := NewCmdEnv(t, gtest.NewLogger(t))

	res := e.Run("fetch-pool", "--log-level", "loud")
	require.ErrorContains(t, res.Err, "log-level")

	res = e.Run("fetch-pool", "--slot-count", "1", "--vote-duration", "0")
	require.ErrorContains(t, res.Err, "--slot-count must be at least 2")
	require.ErrorContains(t, res.Err, "--vote-duration must be positive")

	res = e.Run("fetch-pool", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorContains(t, res.Err, "failed to read config file")

	res = e.Run("run")
	require.ErrorContains(t, res.Err, "--callback-url is required")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	e := NewCmdEnv(t, gtest.NewLogger(t))
	poolURL := newPoolServer(t)
	steamURL := newSteamServer(t, "3300000001", "kz_new_map")

	t.Run("by name", func(t *testing.T) {
		res := e.Run("resolve", "GROTTO", "--pool-url", poolURL, "--workshop-url", steamURL)
		res.NoError(t)
		require.Equal(t, "kz_grotto\t3121168339\tkz_grotto (T3)\n", res.Stdout.String())
	})

	t.Run("by workshop ID", func(t *testing.T) {
		res := e.Run("resolve", "3300000001", "--pool-url", poolURL, "--workshop-url", steamURL)
		res.NoError(t)
		require.Equal(t, "kz_new_map\t3300000001\tkz_new_map\n", res.Stdout.String())
	})

	t.Run("custom prefix", func(t *testing.T) {
		res := e.Run(
			"resolve", "3300000001",
			"--pool-url", poolURL, "--workshop-url", steamURL,
			"--required-prefix", "bhop_",
		)
		require.ErrorIs(t, res.Err, mvworkshop.ErrNotEligible)
	})

	t.Run("unknown workshop ID", func(t *testing.T) {
		res := e.Run("resolve", "3300000002", "--pool-url", poolURL, "--workshop-url", steamURL)
		require.ErrorIs(t, res.Err, mvworkshop.ErrNotFound)
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewCmdEnv(t, gtest.NewLogger(t))
	poolURL := newPoolServer(t)

	notices := make(chan string, 64)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var m map[string]any
		if err := json.NewDecoder(req.Body).Decode(&m); err == nil && m["type"] == "notice" {
			notices <- m["message"].(string)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer callback.Close()

	addrFile := filepath.Join(t.TempDir(), "http-addr")

	runErr := make(chan error, 1)
	go func() {
		res := e.RunC(
			ctx, "run",
			"--pool-url", poolURL,
			"--callback-url", callback.URL,
			"--http-addr", "127.0.0.1:0",
			"--http-addr-file", addrFile,
			// A vote needs at least as many pool maps as slots,
			// and the test pool has two maps.
			"--slot-count", "2",
		)
		runErr <- res.Err
	}()

	var base string
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(addrFile)
		if err != nil || len(b) == 0 {
			return false
		}
		base = "http://" + strings.TrimSpace(string(b))
		return true
	}, 5*time.Second, 10*time.Millisecond)

	// Wait for the startup pool fetch.
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/pool")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var p struct {
			Count int `json:"count"`
		}
		return json.NewDecoder(resp.Body).Decode(&p) == nil && p.Count == 2
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Post(
		base+"/commands/rtv", "application/json",
		bytes.NewBufferString(`{"player_id":1,"player_name":"a","connected_players":1}`),
	)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "RTV requested: (1/1 votes)", gtest.ReceiveOrTimeout(t, notices, gtest.ScaleMs(2000)))
	require.Equal(t, "Starting map vote for 30 seconds...", gtest.ReceiveOrTimeout(t, notices, gtest.ScaleMs(2000)))

	cancel()
	require.NoError(t, gtest.ReceiveOrTimeout(t, runErr, gtest.ScaleMs(5000)))
}
