// Package pulse emits single digital pulses of an exact, caller-specified
// width on a dedicated output line.
//
// A Sequencer owns the line and runs its own goroutine, locked to an OS
// thread, that waits for a width, drives the line high, holds it for the
// requested number of ticks with a Timebase, and drives it low again.
// Callers hand a width to Trigger and return immediately; the pulse is
// executed without further involvement from the caller.
//
// Timing is entirely owned by the Timebase. LoopTimebase counts down a
// register the same way a PIO "jmp x--" loop does, ClockTimebase spins on the
// monotonic clock, and Sim advances a virtual tick counter so pulse fidelity
// can be checked exactly in tests and dry runs.
//
// # Busy Policy
//
// At most one request may wait behind the executing pulse. A third request
// submitted while one pulse executes and one is pending is rejected with
// ErrBusy. Two pulses are never active on the line at the same time.
package pulse
