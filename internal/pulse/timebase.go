package pulse

import "time"

// Timebase holds the calling goroutine for an exact number of ticks.
//
// Hold must busy-wait: no sleeping, no channel operations, no allocation.
// Anything that can yield to the Go scheduler adds jitter to the pulse.
type Timebase interface {
	Hold(w Width)
}

// LoopTimebase counts a register down to zero, one iteration per tick.
// The tick length is whatever one iteration costs on the host CPU, so widths
// must be calibrated on the bench, exactly like a PIO "jmp x--" loop.
type LoopTimebase struct{}

// Hold implements Timebase.
//
//go:noinline
func (LoopTimebase) Hold(w Width) {
	for x := uint32(w); x != 0; x-- {
	}
}

// ClockTimebase spins on the monotonic clock until w*Tick has elapsed.
type ClockTimebase struct {
	Tick time.Duration
}

// Hold implements Timebase.
func (c ClockTimebase) Hold(w Width) {
	d := time.Duration(w) * c.Tick
	start := time.Now()
	for time.Since(start) < d {
	}
}
