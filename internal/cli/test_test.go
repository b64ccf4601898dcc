package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glitchctl/internal/harness"
)

const repoScenarios = "../../testdata/scenarios"

const wrongScenario = `name: wrong
description: "Expects resets that a single step never produces"
params: { min_width: 10, max_width: 20 }
steps: 1
assertions:
  - type: reset_count
    count: 5
`

const silentScenario = `name: quiet
description: "Three silent polls then one reset"
params: { min_width: 10, max_width: 20 }
silence_threshold: 3
seed: 1
steps: 4
assertions:
  - type: reset_count
    count: 1
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func executeTest(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return out, cmd.Execute()
}

func TestTestCommand_RepositoryScenariosPass(t *testing.T) {
	out, err := executeTest(t, "json", repoScenarios)
	require.NoError(t, err, out.String())

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Positive(t, resp.Data.Total)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := executeTest(t, "json", repoScenarios, "--filter", "reset_*")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "reset_limit_unresponsive", resp.Data.Scenarios[0].Name)
}

func TestTestCommand_FailingAssertionExitsOne(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong", wrongScenario)

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "✗ wrong")
	assert.NotContains(t, out.String(), "failed to load scenario")
	assert.Contains(t, out.String(), "0 passed, 1 failed, 1 total")
}

func TestTestCommand_InlineScenariosLoad(t *testing.T) {
	for name, body := range map[string]string{"quiet": silentScenario, "wrong": wrongScenario} {
		t.Run(name, func(t *testing.T) {
			_, err := harness.ParseScenario([]byte(body))
			require.NoError(t, err)
		})
	}
}

func TestTestCommand_UpdateThenCompareGolden(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "quiet", silentScenario)

	out, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "✓ quiet (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "quiet.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), "scenario: quiet\n")
	assert.Contains(t, string(golden), "outcome: searching")

	_, err = executeTest(t, "text", dir)
	require.NoError(t, err, "fresh golden must match")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "quiet.golden"), []byte("stale\n"), 0644))
	out, err = executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out.String(), "trace does not match golden file")
}

func TestTestCommand_LoadErrorIsAFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken", "name: broken\nnot_a_field: 1\n")

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out.String(), "failed to load scenario")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No scenarios found.")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := executeTest(t, "text", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a", silentScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "b.yaml"), []byte("x"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
