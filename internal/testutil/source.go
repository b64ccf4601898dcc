// Package testutil provides deterministic collaborators for controller tests
// and the scenario harness.
package testutil

import (
	"sync"

	"github.com/roach88/glitchctl/internal/pulse"
)

// SeqSource replays a fixed sequence of offsets as a random source.
//
// Offsets are returned modulo n so any script stays inside the range the
// controller asks for. When the script is exhausted it starts over.
//
// Thread-safety: SeqSource is safe for concurrent use via internal mutex.
type SeqSource struct {
	mu      sync.Mutex
	offsets []int
	idx     int
	spans   []uint64
}

// NewSeqSource creates a source returning offsets in order.
func NewSeqSource(offsets ...int) *SeqSource {
	if len(offsets) == 0 {
		offsets = []int{0}
	}
	return &SeqSource{offsets: offsets}
}

// NewWidthSource creates a source that makes a controller with the given
// minimum width pick exactly widths, in order.
//
// Example:
//
//	src := NewWidthSource(10, 17, 12)
//	// with MinWidth=10 the controller triggers 17, then 12, then 17, ...
func NewWidthSource(min pulse.Width, widths ...pulse.Width) *SeqSource {
	offsets := make([]int, len(widths))
	for i, w := range widths {
		offsets[i] = int(w - min)
	}
	return NewSeqSource(offsets...)
}

// Uint64N implements glitch.Source.
func (s *SeqSource) Uint64N(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, n)
	v := s.offsets[s.idx%len(s.offsets)]
	s.idx++
	if v < 0 {
		v = -v
	}
	return uint64(v) % n
}

// Spans returns every n passed to Uint64N.
func (s *SeqSource) Spans() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.spans...)
}
