package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertions failed:\n%v", result.Errors)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{
		"reset_limit_unresponsive",
		"data_resets_silence",
		"busy_rejection_absorbed",
		"invalid_width_range",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "assertions failed:\n%v", result.Errors)
		})
	}
}

func TestRun_SilentTargetResetsOnce(t *testing.T) {
	result, err := Run(loadScenario(t, "silent_target_single_reset"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resets)
	assert.Equal(t, 0, result.Silence)
	assert.Equal(t, 101, result.Attempts)
	assert.Empty(t, result.ErrorCode)
}

func TestRun_SuccessStopsPulsing(t *testing.T) {
	result, err := Run(loadScenario(t, "success_at_iteration_42"))
	require.NoError(t, err)

	assert.Equal(t, "succeeded", result.FinalState)
	assert.Equal(t, uint32(17), result.ResultWidth)
	require.Len(t, result.Widths, 42)
	assert.Equal(t, uint32(17), result.Widths[41])

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "transition:searching->succeeded", last.Name())
}

func TestRun_InvalidRangeNeverPulses(t *testing.T) {
	result, err := Run(loadScenario(t, "invalid_width_range"))
	require.NoError(t, err)

	assert.Equal(t, "INVALID_WIDTH_RANGE", result.ErrorCode)
	assert.Empty(t, result.Trace)
	assert.Zero(t, result.Pulses)
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Assertions that cannot hold",
		Params:      ParamsSpec{MinWidth: 10, MaxWidth: 20},
		Widths:      []uint32{12},
		Steps:       3,
		Assertions: []Assertion{
			{Type: AssertResetCount, Count: 5},
			{Type: AssertResultWidth, Width: 12},
			{Type: AssertTraceOrder, Events: []string{"reset"}},
			{Type: AssertTraceCount, Event: "pulse", Count: 3},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "reset_count")
	assert.Contains(t, result.Errors[1], "no success")
	assert.Contains(t, result.Errors[2], "missing reset")
}

func TestRun_CustomMarkers(t *testing.T) {
	scenario := &Scenario{
		Name:        "custom_marker",
		Description: "Case-insensitive custom marker",
		Params:      ParamsSpec{MinWidth: 5, MaxWidth: 5},
		Markers:     []string{"pwned"},
		IgnoreCase:  true,
		Target:      TargetSpec{Outputs: map[int]string{2: "SUCCESS", 4: "PWNED"}},
		Limits:      LimitsSpec{MaxAttempts: 10},
		Assertions: []Assertion{
			{Type: AssertResultWidth, Width: 5},
			{Type: AssertAttempts, Count: 4},
			{Type: AssertTraceCount, Event: "observation:data", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertions failed:\n%v", result.Errors)
}

func TestRun_EmptyMarkerRejected(t *testing.T) {
	scenario := &Scenario{
		Name:        "empty_marker",
		Description: "An empty marker is a configuration error",
		Params:      ParamsSpec{MinWidth: 5, MaxWidth: 6},
		Markers:     []string{"ok", ""},
		Limits:      LimitsSpec{MaxAttempts: 1},
		Assertions:  []Assertion{{Type: AssertErrorCode, Code: "INVALID_MARKERS"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "assertions failed:\n%v", result.Errors)
}
