package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]int{"attempts": 42})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeHardware, "gpio pin not found", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeHardware, resp.Error.Code)
	assert.Equal(t, "gpio pin not found", resp.Error.Message)
}

func TestOutputFormatter_JSONReportCarriesDataAndError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	report := RunReport{RunID: "run-1", Outcome: OutcomeLimit, Attempts: 5}
	require.NoError(t, formatter.Report("run-1", report, &CLIError{Code: "ATTEMPT_LIMIT", Message: "stopped"}))

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunReport `json:"data"`
		Error  *CLIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, 5, resp.Data.Attempts)
	assert.Equal(t, "ATTEMPT_LIMIT", resp.Error.Code)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Success("Config valid"))
	assert.Equal(t, "Config valid\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	require.NoError(t, formatter.Error(ErrCodeInvalidConfig, "min_width: must be at least 1", map[string]string{"field": "min_width"}))
	assert.Contains(t, buf.String(), "Error [INVALID_CONFIG]")
	assert.Contains(t, buf.String(), "min_width: must be at least 1")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	require.NoError(t, formatter.Error(ErrCodeInvalidConfig, "bad", map[string]string{"field": "min_width"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Validating %s", "bench.yaml")

			assert.Empty(t, out.String(), "diagnostics never land on stdout")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Validating bench.yaml")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad flags"), ExitCommandError},
		{"wrapped", fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad", errors.New("inner"))), ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("device busy")
	err := WrapExitError(ExitFailure, "failed to open hardware", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "failed to open hardware: device busy", err.Error())
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}
