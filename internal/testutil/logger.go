package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger suppresses logs in tests.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
