// Package runid names glitch campaigns. Every run gets an ID that appears in
// its log lines, ledger rows, limit errors, and result.
package runid

import (
	"sync"

	"github.com/google/uuid"
)

// Generator produces run IDs.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs, so ledgers and
// logs from successive campaigns sort by start time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. It panics if the system random
// source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined IDs, for deterministic traces.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator returns a generator that yields ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next ID. It panics once all IDs are used, which
// means a test started more runs than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("runid: FixedGenerator exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
