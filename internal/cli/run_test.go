package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glitchctl/internal/config"
	"github.com/roach88/glitchctl/internal/logging"
	"github.com/roach88/glitchctl/internal/pulse"
	"github.com/roach88/glitchctl/internal/runid"
	"github.com/roach88/glitchctl/internal/testutil"
)

type runResponse struct {
	Status string    `json:"status"`
	RunID  string    `json:"run_id"`
	Data   RunReport `json:"data"`
	Error  *CLIError `json:"error"`
}

func decodeRun(t *testing.T, out *bytes.Buffer) runResponse {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	return resp
}

// silentRig pulses a simulated line against a target that never answers.
func silentRig(target *testutil.ScriptedTarget) func(config.Config, *slog.Logger) (*Rig, error) {
	return func(cfg config.Config, logger *slog.Logger) (*Rig, error) {
		sim := pulse.NewSim()
		seq := pulse.NewSequencer(sim, sim)
		return &Rig{Pulser: seq, Target: target, closers: []func() error{seq.Close}}, nil
	}
}

func runWith(t *testing.T, opts *RunOptions, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return out, cmd.ExecuteContext(context.Background())
}

func newRunOpts(ids ...string) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: "json", Logger: testutil.DiscardLogger()},
		IDs:         runid.NewFixedGenerator(ids...),
	}
}

func TestRun_DryRunFindsVulnerableWidth(t *testing.T) {
	opts := newRunOpts("run-dry")
	out, err := runWith(t, opts,
		"--dry-run", "--settle", "0s", "--seed", "1", "--threshold", "2", "--max-attempts", "5000")
	require.NoError(t, err)

	resp := decodeRun(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-dry", resp.RunID)
	assert.Equal(t, OutcomeSucceeded, resp.Data.Outcome)
	assert.Equal(t, uint32(17), resp.Data.Width, "default simulation is vulnerable at 17 ticks only")
	assert.Contains(t, resp.Data.Observation, "SUCCESSFUL GLITCH")
	require.NotNil(t, resp.Data.Summary)
	assert.Equal(t, resp.Data.Attempts, resp.Data.Summary.Attempts)
}

func TestRun_LogLinesCarryOneRunID(t *testing.T) {
	logs := &bytes.Buffer{}
	opts := newRunOpts("run-logs")
	opts.Logger = logging.NewWriter(logs, slog.LevelDebug, logging.FormatJSON)

	_, err := runWith(t, opts,
		"--dry-run", "--settle", "0s", "--seed", "1", "--threshold", "2", "--max-attempts", "5000")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.NotEmpty(t, lines)
	var sawController bool
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"run_id":`), line)
		assert.Contains(t, line, `"run_id":"run-logs"`)
		if strings.Contains(line, "glitch succeeded") {
			sawController = true
		}
	}
	assert.True(t, sawController, "controller logs go through the same handler")
}

func TestRun_AttemptLimitExitsOne(t *testing.T) {
	opts := newRunOpts("run-limit")
	opts.OpenRig = silentRig(testutil.NewScriptedTarget())

	out, err := runWith(t, opts,
		"--port", "/dev/null", "--settle", "0s", "--seed", "7", "--max-attempts", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeRun(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, OutcomeLimit, resp.Data.Outcome)
	assert.Equal(t, 3, resp.Data.Attempts)
	assert.Equal(t, 0, resp.Data.Resets)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "ATTEMPT_LIMIT", resp.Error.Code)
}

func TestRun_ResetLimitOnDeadTarget(t *testing.T) {
	target := testutil.NewScriptedTarget()
	opts := newRunOpts("run-dead")
	opts.OpenRig = silentRig(target)

	out, err := runWith(t, opts,
		"--port", "/dev/null", "--settle", "0s", "--threshold", "1", "--max-resets", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeRun(t, out)
	assert.Equal(t, "RESET_LIMIT", resp.Error.Code)
	assert.Equal(t, 2, target.Resets())
}

func TestRun_InvalidConfigExitsTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"inverted range", []string{"--dry-run", "--min-width", "30", "--max-width", "20"}},
		{"zero width", []string{"--dry-run", "--min-width", "0"}},
		{"missing port", []string{"--reset-pin", "GPIO8"}},
		{"empty marker", []string{"--dry-run", "--marker", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := newRunOpts()
			opts.OpenRig = func(config.Config, *slog.Logger) (*Rig, error) {
				t.Fatal("hardware must not be opened for an invalid config")
				return nil, nil
			}

			out, err := runWith(t, opts, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeRun(t, out)
			assert.Equal(t, ErrCodeInvalidConfig, resp.Error.Code)
		})
	}
}

func TestRun_HardwareFailureExitsOne(t *testing.T) {
	opts := newRunOpts("run-hw")
	opts.OpenRig = func(config.Config, *slog.Logger) (*Rig, error) {
		return nil, errors.New(`gpio pin "GPIO14" not found`)
	}

	out, err := runWith(t, opts, "--port", "/dev/ttyAMA0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeHardware, decodeRun(t, out).Error.Code)
}

func TestRun_InterruptedExitsZero(t *testing.T) {
	opts := newRunOpts("run-int")
	opts.OpenRig = silentRig(testutil.NewScriptedTarget())

	out := &bytes.Buffer{}
	cmd := newRunCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--port", "/dev/null", "--settle", "0s"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))

	resp := decodeRun(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, OutcomeInterrupted, resp.Data.Outcome)
	assert.Equal(t, 0, resp.Data.Attempts)
}

func TestRun_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dry_run: true\nmin_width: 40\nmax_width: 50\n"), 0644))

	var seen config.Config
	opts := newRunOpts("run-file")
	opts.OpenRig = func(cfg config.Config, logger *slog.Logger) (*Rig, error) {
		seen = cfg
		return silentRig(testutil.NewScriptedTarget())(cfg, logger)
	}

	_, err := runWith(t, opts, "--config", path, "--max-width", "60", "--settle", "0s", "--max-attempts", "1")
	require.Error(t, err)

	assert.True(t, seen.DryRun)
	assert.Equal(t, uint32(40), seen.MinWidth, "file value kept")
	assert.Equal(t, uint32(60), seen.MaxWidth, "flag value wins")
	assert.Equal(t, config.Default().SilenceThreshold, seen.SilenceThreshold, "unset flags keep defaults")
}

func TestRun_MissingConfigFile(t *testing.T) {
	opts := newRunOpts()
	_, err := runWith(t, opts, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunReport_Text(t *testing.T) {
	r := RunReport{
		RunID:       "run-1",
		Outcome:     OutcomeSucceeded,
		Width:       17,
		Observation: "SUCCESS",
		Attempts:    42,
		Resets:      1,
		Elapsed:     "4.2s",
	}
	text := r.String()
	assert.Contains(t, text, "Run run-1: succeeded")
	assert.Contains(t, text, "width:       17 ticks")
	assert.Contains(t, text, "attempts:    42")

	r.Outcome = OutcomeLimit
	assert.NotContains(t, r.String(), "width:")
}
