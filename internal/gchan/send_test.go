package gchan_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/kzmapvote/kzmapvote/internal/gchan"
	"github.com/kzmapvote/kzmapvote/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestSendC(t *testing.T) {
	t.Parallel()

	t.Run("sent", func(t *testing.T) {
		t.Parallel()

		out := make(chan int, 1)
		require.True(t, gchan.SendC(context.Background(), gtest.NewLogger(t), out, 3, "testing"))
		require.Equal(t, 3, gtest.IsSending(t, out))
	})

	t.Run("context canceled", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, nil))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Send to a nil channel blocks forever.
		var blocked chan int
		require.False(t, gchan.SendC(ctx, log, blocked, 1, "sending to nowhere"))
		require.Contains(t, buf.String(), "Context canceled while sending to nowhere")
	})
}

func TestRecvC(t *testing.T) {
	t.Parallel()

	t.Run("received", func(t *testing.T) {
		t.Parallel()

		in := make(chan string, 1)
		in <- "hi"
		v, ok := gchan.RecvC(context.Background(), gtest.NewLogger(t), in, "testing")
		require.True(t, ok)
		require.Equal(t, "hi", v)
	})

	t.Run("context canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var blocked chan string
		v, ok := gchan.RecvC(ctx, gtest.NewLogger(t), blocked, "testing")
		require.False(t, ok)
		require.Empty(t, v)
	})
}

func TestReqResp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type req struct {
		N    int
		Resp chan int
	}
	reqs := make(chan req)

	go func() {
		r := <-reqs
		r.Resp <- r.N * 2
	}()

	r := req{N: 21, Resp: make(chan int, 1)}
	got, ok := gchan.ReqResp(ctx, gtest.NewLogger(t), reqs, r, r.Resp, "doubling")
	require.True(t, ok)
	require.Equal(t, 42, got)
}
