// Command kzmapvote runs the KZ map vote daemon
// and offers subcommands to inspect the map pool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/kzmapvote/kzmapvote/cmd/internal/kzcmd"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	root := kzcmd.NewRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}
