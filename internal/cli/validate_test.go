package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeValidate(t *testing.T, format, body string) (*bytes.Buffer, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	return out, cmd.Execute()
}

func TestValidate_Valid(t *testing.T) {
	out, err := executeValidate(t, "text", "port: /dev/ttyAMA0\nmin_width: 12\nmax_width: 18\n")
	require.NoError(t, err)
	assert.Equal(t, "✓ Config valid (widths 12..18)\n", out.String())
}

func TestValidate_ValidDryRunJSON(t *testing.T) {
	out, err := executeValidate(t, "json", "dry_run: true\n")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.True(t, resp.Data.DryRun)
	assert.Equal(t, uint32(10), resp.Data.MinWidth)
}

func TestValidate_SchemaErrorsListed(t *testing.T) {
	out, err := executeValidate(t, "json", "dry_run: true\nmin_width: 30\nmax_width: 20\n")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "max_width", resp.Data.Errors[0].Field)
}

func TestValidate_MissingPortText(t *testing.T) {
	out, err := executeValidate(t, "text", "min_width: 12\n")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.String(), "✗ Validation failed")
	assert.Contains(t, out.String(), "port: a serial port is required")
}

func TestValidate_UnknownKey(t *testing.T) {
	out, err := executeValidate(t, "text", "dry_run: true\nmin_widht: 3\n")
	require.Error(t, err)
	assert.Contains(t, out.String(), "min_widht")
}

func TestValidate_MissingFile(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "nope.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
