package testutil

import (
	"sync"

	"github.com/roach88/glitchctl/internal/pulse"
)

// RecordingPulser records every width it is asked to emit.
//
// Trigger numbers start at 1. Triggers listed with Reject return
// pulse.ErrBusy and are not recorded as widths.
//
// Thread-safety: RecordingPulser is safe for concurrent use via internal mutex.
type RecordingPulser struct {
	mu       sync.Mutex
	widths   []pulse.Width
	calls    int
	rejected map[int]bool
}

// NewRecordingPulser creates an empty recorder.
func NewRecordingPulser() *RecordingPulser {
	return &RecordingPulser{rejected: make(map[int]bool)}
}

// Reject makes trigger number n fail with pulse.ErrBusy.
func (p *RecordingPulser) Reject(n int) *RecordingPulser {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected[n] = true
	return p
}

// Trigger implements glitch.Pulser.
func (p *RecordingPulser) Trigger(w pulse.Width) error {
	if err := w.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.rejected[p.calls] {
		return pulse.ErrBusy
	}
	p.widths = append(p.widths, w)
	return nil
}

// Widths returns every accepted width in order.
func (p *RecordingPulser) Widths() []pulse.Width {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pulse.Width(nil), p.widths...)
}

// Calls returns the number of Trigger calls, accepted or not.
func (p *RecordingPulser) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
