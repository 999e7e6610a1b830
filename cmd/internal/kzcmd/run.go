package kzcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvhttp"
	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvstore"
	"github.com/kzmapvote/kzmapvote/mvwatchdog"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use: "run",

		Short: "Run the map vote engine and its HTTP host bridge",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			if cfg.CallbackURL == "" {
				return fmt.Errorf("--%s is required", callbackURLFlag)
			}

			return runDaemon(cmd.Context(), log, cfg)
		},
	}
}

func runDaemon(ctx context.Context, log *slog.Logger, cfg appConfig) error {
	ctx, cancel := context.WithCancel(ctx)

	wd, wCtx := mvwatchdog.New(ctx, log.With("sys", "watchdog"))
	defer wd.Wait()
	defer cancel()

	store, err := openStore(wCtx, log, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore(log, store)

	client := newHTTPClient()

	cache := mvpool.NewCache(log.With("sys", "pool"), newPoolClient(log, cfg, client), store)
	if err := cache.Warm(wCtx, store); err != nil {
		if !errors.Is(err, mvstore.ErrSnapshotNotFound) {
			log.Warn("Failed to load saved map pool; waiting for first fetch", "err", err)
		}
	}

	resolver := mvworkshop.NewResolver(
		log.With("sys", "resolver"),
		newSteamClient(log, cfg, client),
		cache,
		cfg.RequiredPrefix,
	)

	host, err := mvhttp.NewCallbackHost(wCtx, log.With("sys", "callback"), mvhttp.CallbackConfig{
		URL:        cfg.CallbackURL,
		SocketPath: cfg.CallbackSocket,
		Client:     client,
	})
	if err != nil {
		return err
	}
	defer host.Wait()

	ecfg := mvengine.DefaultConfig()
	ecfg.Cache = cache
	ecfg.Resolver = resolver
	ecfg.Notifier = host
	ecfg.MapChanger = host
	ecfg.Display = host
	ecfg.SlotCount = cfg.SlotCount
	ecfg.VoteDuration = cfg.VoteDuration
	ecfg.MapChangeDelay = cfg.MapChangeDelay
	ecfg.RefreshInterval = cfg.RefreshInterval
	ecfg.Watchdog = wd

	e, err := mvengine.New(wCtx, log.With("sys", "engine"), ecfg)
	if err != nil {
		// Release the callback host before waiting on it.
		cancel()
		return err
	}
	defer e.Wait()

	ln, err := new(net.ListenConfig).Listen(wCtx, "tcp", cfg.HTTPAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to listen on %q: %w", cfg.HTTPAddr, err)
	}

	srv := mvhttp.NewServer(wCtx, log.With("sys", "http"), mvhttp.ServerConfig{
		Listener: ln,
		Engine:   e,
		Pool:     cache,
	})
	defer srv.Wait()

	addr := ln.Addr().String()
	log.Info("Host bridge listening", "addr", addr)

	if cfg.HTTPAddrFile != "" {
		if err := os.WriteFile(cfg.HTTPAddrFile, []byte(addr+"\n"), 0o600); err != nil {
			cancel()
			return fmt.Errorf("failed to write HTTP address file: %w", err)
		}
	}

	<-wCtx.Done()

	if mvwatchdog.IsTermination(wCtx) {
		return context.Cause(wCtx)
	}
	return nil
}
