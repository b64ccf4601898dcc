package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, slog.LevelInfo, FormatText)

	log.Warn("read failed", "error", errors.New("timeout"))

	assert.Contains(t, buf.String(), "err=timeout")
	assert.NotContains(t, buf.String(), "error=")
}

func TestNewWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, slog.LevelDebug, FormatJSON)

	log.Debug("pulse", "width", 17, "error", "none")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "pulse", rec["msg"])
	assert.EqualValues(t, 17, rec["width"])
	assert.Equal(t, "none", rec["err"])
}

func TestNewWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, slog.LevelWarn, FormatText)

	log.Info("quiet")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestNewNop(t *testing.T) {
	assert.NotPanics(t, func() { NewNop().Error("dropped") })
}
