package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one replayed campaign.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	Params ParamsSpec `yaml:"params"`

	// SilenceThreshold defaults to the controller default when nil.
	SilenceThreshold *int `yaml:"silence_threshold,omitempty"`

	Markers    []string `yaml:"markers,omitempty"`
	IgnoreCase bool     `yaml:"ignore_case,omitempty"`

	// Widths scripts the widths chosen, in order, wrapping at the end.
	Widths []uint32 `yaml:"widths,omitempty"`

	// Seed seeds the width source when Widths is empty.
	Seed uint64 `yaml:"seed,omitempty"`

	// Engine selects the pulser: "recording" (default) or "sim".
	Engine string `yaml:"engine,omitempty"`

	// Reject lists trigger calls (numbered from 1) refused as busy.
	Reject []int `yaml:"reject,omitempty"`

	Target TargetSpec `yaml:"target"`
	Limits LimitsSpec `yaml:"limits"`

	// Steps runs exactly this many iterations. Zero runs to completion.
	Steps int `yaml:"steps,omitempty"`

	// RunID defaults to "scenario-run".
	RunID string `yaml:"run_id,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// ParamsSpec is the scenario's width range. It may be invalid on purpose.
type ParamsSpec struct {
	MinWidth uint32 `yaml:"min_width"`
	MaxWidth uint32 `yaml:"max_width"`
}

// TargetSpec scripts the target link.
type TargetSpec struct {
	Outputs     map[int]string `yaml:"outputs,omitempty"`
	ReadErrors  []int          `yaml:"read_errors,omitempty"`
	ResetErrors []int          `yaml:"reset_errors,omitempty"`
}

// LimitsSpec bounds a scenario run.
type LimitsSpec struct {
	MaxAttempts          int `yaml:"max_attempts,omitempty"`
	MaxConsecutiveResets int `yaml:"max_consecutive_resets,omitempty"`
}

// Assertion checks one property of the finished run.
type Assertion struct {
	Type   string   `yaml:"type"`
	State  string   `yaml:"state,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Width  uint32   `yaml:"width,omitempty"`
	Code   string   `yaml:"code,omitempty"`
	Event  string   `yaml:"event,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertResetCount    = "reset_count"
	AssertPulseCount    = "pulse_count"
	AssertAttempts      = "attempts"
	AssertSilence       = "silence"
	AssertResultWidth   = "result_width"
	AssertErrorCode     = "error_code"
	AssertWidthsInRange = "widths_in_range"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
	AssertNoOverlap     = "no_overlap"
)

// Engine names.
const (
	EngineRecording = "recording"
	EngineSim       = "sim"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks the fields the runner depends on. Width ranges
// are deliberately not checked here; rejecting them is the controller's job.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Steps < 0 {
		return fmt.Errorf("steps must be non-negative")
	}
	if s.Steps == 0 && s.Limits == (LimitsSpec{}) && len(s.Target.Outputs) == 0 {
		return fmt.Errorf("a scenario that runs to completion needs limits or a target output")
	}

	switch s.Engine {
	case "", EngineRecording, EngineSim:
	default:
		return fmt.Errorf("unknown engine %q", s.Engine)
	}
	if s.Engine == EngineSim && len(s.Reject) > 0 {
		return fmt.Errorf("reject is only supported by the recording engine")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertResetCount, AssertPulseCount, AssertAttempts, AssertSilence:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertResultWidth:
		if a.Width == 0 {
			return fmt.Errorf("assertions[%d]: width is required for result_width", index)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertWidthsInRange, AssertNoOverlap:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
