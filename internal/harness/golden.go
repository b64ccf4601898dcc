package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures what a golden file compares for one scenario.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Trace        []TraceEvent
	Outcome      string
}

// NewTraceSnapshot builds a snapshot from a finished run.
func NewTraceSnapshot(s *Scenario, r *Result) TraceSnapshot {
	runID := s.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	return TraceSnapshot{
		ScenarioName: s.Name,
		RunID:        runID,
		Trace:        r.Trace,
		Outcome:      outcome(r),
	}
}

func outcome(r *Result) string {
	var b strings.Builder
	b.WriteString(r.FinalState)
	if r.ResultWidth != 0 {
		fmt.Fprintf(&b, " width=%d", r.ResultWidth)
	}
	fmt.Fprintf(&b, " attempts=%d resets=%d silence=%d pulses=%d", r.Attempts, r.Resets, r.Silence, r.Pulses)
	if r.ErrorCode != "" {
		fmt.Fprintf(&b, " code=%s", r.ErrorCode)
	}
	return b.String()
}

// Bytes renders the snapshot as line-oriented text, one event per line.
func (s TraceSnapshot) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", s.ScenarioName)
	fmt.Fprintf(&b, "run_id: %s\n", s.RunID)
	for _, e := range s.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "outcome: %s\n", s.Outcome)
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares an already finished run against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, NewTraceSnapshot(scenario, result).Bytes())
}
