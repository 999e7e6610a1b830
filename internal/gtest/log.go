package gtest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a *slog.Logger whose output goes through t.Log,
// so log lines are attributed to the test that produced them.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t, slogt.Text())
}
