package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/glitchctl/internal/glitch"
)

// TraceEvent is a controller event reduced to what a golden trace compares.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Attempt int    `json:"attempt"`
	Type    string `json:"type"`
	Width   uint32 `json:"width,omitempty"`
	Class   string `json:"class,omitempty"`
	Silence int    `json:"silence"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Error   string `json:"error,omitempty"`
}

// newTraceEvent converts a controller event.
func newTraceEvent(e glitch.Event) TraceEvent {
	te := TraceEvent{
		Seq:     e.Seq,
		Attempt: e.Attempt,
		Type:    string(e.Type),
	}
	switch e.Type {
	case glitch.EventPulse:
		te.Width = uint32(e.Width)
	case glitch.EventObservation:
		te.Width = uint32(e.Width)
		te.Class = e.Class.String()
		te.Silence = e.Silence
	case glitch.EventTransition:
		te.From = e.From.String()
		te.To = e.To.String()
	case glitch.EventReset:
		te.Silence = e.Silence
	}
	if e.Err != nil {
		te.Error = e.Err.Error()
	}
	return te
}

// Name is the event's name as used by trace assertions.
func (e TraceEvent) Name() string {
	switch e.Type {
	case string(glitch.EventObservation):
		return e.Type + ":" + e.Class
	case string(glitch.EventTransition):
		return e.Type + ":" + e.From + "->" + e.To
	default:
		return e.Type
	}
}

// matches reports whether the event answers to name. A bare type matches
// every event of that type.
func (e TraceEvent) matches(name string) bool {
	return name == e.Type || name == e.Name()
}

// String renders one golden trace line.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d a=%d %s", e.Seq, e.Attempt, e.Type)
	switch e.Type {
	case string(glitch.EventPulse):
		fmt.Fprintf(&b, " width=%d", e.Width)
	case string(glitch.EventObservation):
		fmt.Fprintf(&b, " width=%d class=%s silence=%d", e.Width, e.Class, e.Silence)
	case string(glitch.EventTransition):
		fmt.Fprintf(&b, " %s->%s", e.From, e.To)
	case string(glitch.EventReset):
		fmt.Fprintf(&b, " silence=%d", e.Silence)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " err=%q", e.Error)
	}
	return b.String()
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	FinalState  string   `json:"final_state"`
	Attempts    int      `json:"attempts"`
	Resets      int      `json:"resets"`
	Silence     int      `json:"silence"`
	Pulses      int      `json:"pulses"`
	Widths      []uint32 `json:"widths"`
	ResultWidth uint32   `json:"result_width,omitempty"`

	// ErrorCode is set when the controller was rejected or stopped with a
	// coded error.
	ErrorCode string `json:"error_code,omitempty"`
	RunError  string `json:"run_error,omitempty"`

	// Overlapped is set for sim runs whose pulses overlapped.
	Overlapped bool `json:"overlapped,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Widths: []uint32{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
