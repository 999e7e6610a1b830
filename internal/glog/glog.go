// Package glog holds small helpers for consistent structured log fields.
package glog

import (
	"log/slog"

	"github.com/google/uuid"
)

// Player returns a copy of log with the player ID attached.
func Player(log *slog.Logger, playerID int) *slog.Logger {
	return log.With("player_id", playerID)
}

// Session returns a copy of log with the vote session ID attached.
func Session(log *slog.Logger, id uuid.UUID) *slog.Logger {
	return log.With("session_id", id.String())
}

// PlayerErr is shorthand for [Player] with an error attached.
func PlayerErr(log *slog.Logger, playerID int, e error) *slog.Logger {
	return log.With("player_id", playerID, "err", e)
}
