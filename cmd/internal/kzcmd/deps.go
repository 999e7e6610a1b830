package kzcmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kzmapvote/kzmapvote/mvprovider"
	"github.com/kzmapvote/kzmapvote/mvsqlite"
)

const httpClientTimeout = 15 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// openStore opens the pool snapshot database at path,
// or an in-memory database if path is empty.
func openStore(ctx context.Context, log *slog.Logger, path string) (*mvsqlite.Store, error) {
	if path == "" {
		s, err := mvsqlite.NewInMemStore(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory database: %w", err)
		}
		log.Debug("Opened in-memory database", "build", s.BuildType)
		return s, nil
	}

	s, err := mvsqlite.NewOnDiskStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	log.Debug("Opened database", "path", path, "build", s.BuildType)
	return s, nil
}

func closeStore(log *slog.Logger, s *mvsqlite.Store) {
	if err := s.Close(); err != nil {
		log.Warn("Error closing database", "err", err)
	}
}

func newPoolClient(log *slog.Logger, cfg appConfig, client *http.Client) *mvprovider.PoolClient {
	return mvprovider.NewPoolClient(log.With("sys", "poolclient"), client, cfg.PoolURL)
}

func newSteamClient(log *slog.Logger, cfg appConfig, client *http.Client) *mvprovider.SteamClient {
	return mvprovider.NewSteamClient(log.With("sys", "steamclient"), mvprovider.SteamClientConfig{
		Client: client,
		URL:    cfg.WorkshopURL,
		APIKey: cfg.SteamAPIKey,

		RequestsPerSecond: cfg.SteamRate,
	})
}
