package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/glitchctl/internal/clock"
	"github.com/roach88/glitchctl/internal/glitch"
	"github.com/roach88/glitchctl/internal/logging"
	"github.com/roach88/glitchctl/internal/pulse"
	"github.com/roach88/glitchctl/internal/testutil"
)

// DefaultRunID names scenario runs that do not set run_id.
const DefaultRunID = "scenario-run"

// errScripted is returned by scripted read and reset failures.
var errScripted = errors.New("scripted failure")

// scenarioStart anchors the virtual clock so durations in traces are stable.
var scenarioStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and evaluates its assertions.
//
// A controller that rejects its configuration is not a harness error: the
// rejection is recorded in Result.ErrorCode for error_code assertions.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	result := NewResult()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	params := glitch.Params{
		MinWidth: pulse.Width(scenario.Params.MinWidth),
		MaxWidth: pulse.Width(scenario.Params.MaxWidth),
	}

	p := newPulser(scenario)
	defer p.close()

	vc := clock.NewVirtual(scenarioStart)
	opts := []glitch.Option{
		glitch.WithSource(widthSource(scenario, params)),
		glitch.WithSleeper(vc.Sleep),
		glitch.WithClock(vc.Now),
		glitch.WithLogger(logging.NewNop()),
		glitch.WithRunID(runID),
		glitch.WithLimits(glitch.Limits{
			MaxAttempts:          scenario.Limits.MaxAttempts,
			MaxConsecutiveResets: scenario.Limits.MaxConsecutiveResets,
		}),
		glitch.WithObserver(glitch.ObserverFunc(func(e glitch.Event) {
			result.Trace = append(result.Trace, newTraceEvent(e))
		})),
	}
	if scenario.SilenceThreshold != nil {
		opts = append(opts, glitch.WithSilenceThreshold(*scenario.SilenceThreshold))
	}

	c, err := newController(scenario, params, p.pulser, scriptTarget(scenario.Target), opts)
	if err != nil {
		if !glitch.IsConfigError(err) {
			return nil, fmt.Errorf("failed to create controller: %w", err)
		}
		result.FinalState = "rejected"
		result.ErrorCode = string(glitch.Code(err))
		result.RunError = err.Error()
	} else {
		runErr := execute(ctx, c, scenario.Steps)
		if runErr != nil {
			result.ErrorCode = string(glitch.Code(runErr))
			result.RunError = runErr.Error()
		}
		result.FinalState = c.State().String()
		result.Attempts = c.Attempts()
		result.Resets = c.Resets()
		result.Silence = c.Silence()
		if res, ok := c.Result(); ok {
			result.ResultWidth = uint32(res.Width)
		}
	}

	if err := p.close(); err != nil {
		return nil, fmt.Errorf("failed to stop pulse engine: %w", err)
	}
	p.collect(result)

	for _, msg := range EvaluateAssertions(result, scenario, params) {
		result.AddError(msg)
	}
	return result, nil
}

func newController(s *Scenario, params glitch.Params, p glitch.Pulser, t glitch.Target, opts []glitch.Option) (*glitch.Controller, error) {
	if len(s.Markers) > 0 || s.IgnoreCase {
		markers := s.Markers
		if len(markers) == 0 {
			markers = glitch.DefaultMarkers
		}
		m, err := glitch.NewMatcher(markers, s.IgnoreCase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, glitch.WithMatcher(m))
	}
	return glitch.New(params, p, t, opts...)
}

// execute steps the controller a fixed number of times, or runs it to
// completion when steps is zero.
func execute(ctx context.Context, c *glitch.Controller, steps int) error {
	if steps == 0 {
		_, err := c.Run(ctx)
		return err
	}
	for i := 0; i < steps; i++ {
		if err := c.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func widthSource(s *Scenario, params glitch.Params) glitch.Source {
	if len(s.Widths) == 0 {
		return glitch.NewSource(s.Seed)
	}
	widths := make([]pulse.Width, len(s.Widths))
	for i, w := range s.Widths {
		widths[i] = pulse.Width(w)
	}
	return testutil.NewWidthSource(params.MinWidth, widths...)
}

func scriptTarget(spec TargetSpec) *testutil.ScriptedTarget {
	t := testutil.NewScriptedTarget()
	for n, out := range spec.Outputs {
		t.Output(n, out)
	}
	for _, n := range spec.ReadErrors {
		t.FailRead(n, errScripted)
	}
	for _, n := range spec.ResetErrors {
		t.FailReset(n, errScripted)
	}
	return t
}

// scenarioPulser is the pulse side of a scenario: a recorder, or a real
// sequencer over a simulated line.
type scenarioPulser struct {
	pulser glitch.Pulser
	rec    *testutil.RecordingPulser
	sim    *pulse.Sim
	seq    *pulse.Sequencer
	closed bool
}

func newPulser(s *Scenario) *scenarioPulser {
	if s.Engine == EngineSim {
		sim := pulse.NewSim()
		seq := pulse.NewSequencer(sim, sim, pulse.WithLogger(logging.NewNop()))
		return &scenarioPulser{pulser: seq, sim: sim, seq: seq}
	}

	rec := testutil.NewRecordingPulser()
	for _, n := range s.Reject {
		rec.Reject(n)
	}
	return &scenarioPulser{pulser: rec, rec: rec}
}

func (p *scenarioPulser) close() error {
	if p.seq == nil || p.closed {
		return nil
	}
	p.closed = true
	return p.seq.Close()
}

func (p *scenarioPulser) collect(r *Result) {
	if p.sim != nil {
		for _, pl := range p.sim.Pulses() {
			r.Widths = append(r.Widths, uint32(pl.Width))
		}
		r.Overlapped = p.sim.Overlapped()
	} else {
		for _, w := range p.rec.Widths() {
			r.Widths = append(r.Widths, uint32(w))
		}
	}
	r.Pulses = len(r.Widths)
}
