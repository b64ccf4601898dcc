package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/glitchctl/internal/glitch"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent // included for trace assertions only
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(r *Result, s *Scenario, params glitch.Params) []string {
	var errs []string
	for _, a := range s.Assertions {
		if err := evaluate(r, a, params); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion, params glitch.Params) error {
	switch a.Type {
	case AssertFinalState:
		return expectString(a.Type, a.State, r.FinalState)
	case AssertResetCount:
		return expectInt(a.Type, a.Count, r.Resets)
	case AssertPulseCount:
		return expectInt(a.Type, a.Count, r.Pulses)
	case AssertAttempts:
		return expectInt(a.Type, a.Count, r.Attempts)
	case AssertSilence:
		return expectInt(a.Type, a.Count, r.Silence)
	case AssertResultWidth:
		if r.ResultWidth == 0 {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("success at width %d", a.Width), Actual: "no success"}
		}
		return expectInt(a.Type, int(a.Width), int(r.ResultWidth))
	case AssertErrorCode:
		return expectString(a.Type, a.Code, r.ErrorCode)
	case AssertWidthsInRange:
		return assertWidthsInRange(r, params)
	case AssertTraceCount:
		return assertTraceCount(r.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(r.Trace, a)
	case AssertNoOverlap:
		if r.Overlapped {
			return &AssertionError{Type: a.Type, Expected: "pulses never overlap", Actual: "overlapping pulses on the line"}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func expectInt(typ string, want, got int) error {
	if want == got {
		return nil
	}
	return &AssertionError{Type: typ, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
}

func expectString(typ, want, got string) error {
	if want == got {
		return nil
	}
	if got == "" {
		got = "(none)"
	}
	return &AssertionError{Type: typ, Expected: want, Actual: got}
}

func assertWidthsInRange(r *Result, params glitch.Params) error {
	for i, w := range r.Widths {
		if w < uint32(params.MinWidth) || w > uint32(params.MaxWidth) {
			return &AssertionError{
				Type:     AssertWidthsInRange,
				Expected: fmt.Sprintf("every width in [%d, %d]", params.MinWidth, params.MaxWidth),
				Actual:   fmt.Sprintf("pulse %d had width %d", i+1, w),
			}
		}
	}
	return nil
}

// assertTraceCount checks the event occurs exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.matches(a.Event) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks the events occur in order. Intervening events
// are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Events) && event.matches(a.Events[next]) {
			next++
		}
	}
	if next < len(a.Events) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Events),
			Actual:   fmt.Sprintf("missing %s after %v", a.Events[next], a.Events[:next]),
			Trace:    trace,
		}
	}
	return nil
}
