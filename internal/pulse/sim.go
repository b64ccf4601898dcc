package pulse

import "sync"

// Edge is a level change on a simulated line.
type Edge struct {
	Tick  uint64
	Level bool
}

// Pulse is one completed high period on a simulated line.
type Pulse struct {
	Start uint64 // tick of the rising edge
	Width Width  // ticks spent high
}

// Sim is a clocked simulation of a pulse output. It implements both Line and
// Timebase over one virtual tick counter: Hold advances the counter, High and
// Low stamp edges with it. Pulse widths recorded by a Sim are exact.
//
// Sim is safe for concurrent use; the sequencer goroutine drives it while
// tests read it.
type Sim struct {
	mu      sync.Mutex
	tick    uint64
	level   bool
	rise    uint64
	overlap bool
	edges   []Edge
	pulses  []Pulse

	// OnPulse, if set, is called after every falling edge with the measured
	// width. It runs on the sequencer goroutine, outside the timed section.
	OnPulse func(Width)
}

// NewSim returns a simulated line, low, at tick 0.
func NewSim() *Sim {
	return &Sim{}
}

// High implements Line.
func (s *Sim) High() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.level {
		s.overlap = true
		return nil
	}
	s.level = true
	s.rise = s.tick
	s.edges = append(s.edges, Edge{Tick: s.tick, Level: true})
	return nil
}

// Low implements Line.
func (s *Sim) Low() error {
	s.mu.Lock()
	if !s.level {
		s.mu.Unlock()
		return nil
	}
	s.level = false
	s.edges = append(s.edges, Edge{Tick: s.tick, Level: false})
	p := Pulse{Start: s.rise, Width: Width(s.tick - s.rise)}
	s.pulses = append(s.pulses, p)
	hook := s.OnPulse
	s.mu.Unlock()

	if hook != nil {
		hook(p.Width)
	}
	return nil
}

// Hold implements Timebase by advancing the virtual clock.
func (s *Sim) Hold(w Width) {
	s.mu.Lock()
	s.tick += uint64(w)
	s.mu.Unlock()
}

// Idle advances the virtual clock without touching the line, modelling time
// between pulses.
func (s *Sim) Idle(ticks uint64) {
	s.mu.Lock()
	s.tick += ticks
	s.mu.Unlock()
}

// Level returns the current line level.
func (s *Sim) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Edges returns a copy of every recorded edge.
func (s *Sim) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edge(nil), s.edges...)
}

// Pulses returns a copy of every completed pulse.
func (s *Sim) Pulses() []Pulse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pulse(nil), s.pulses...)
}

// Overlapped reports whether High was ever called while the line was
// already high.
func (s *Sim) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}
