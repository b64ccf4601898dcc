package testutil

import (
	"context"
	"sync"
)

// ScriptedTarget is a target link whose reads are scripted by read number.
//
// Read numbers start at 1. Reads with no script return an empty slice.
//
// Thread-safety: ScriptedTarget is safe for concurrent use via internal mutex.
type ScriptedTarget struct {
	mu        sync.Mutex
	outputs   map[int][]byte
	errs      map[int]error
	resetErrs map[int]error
	reads     int
	resets    int
	resetAt   []int // read count at which each reset happened
}

// NewScriptedTarget creates a silent target.
func NewScriptedTarget() *ScriptedTarget {
	return &ScriptedTarget{
		outputs:   make(map[int][]byte),
		errs:      make(map[int]error),
		resetErrs: make(map[int]error),
	}
}

// Output makes read number n return data.
func (t *ScriptedTarget) Output(n int, data string) *ScriptedTarget {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs[n] = []byte(data)
	return t
}

// FailRead makes read number n return err.
func (t *ScriptedTarget) FailRead(n int, err error) *ScriptedTarget {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs[n] = err
	return t
}

// FailReset makes reset number n return err.
func (t *ScriptedTarget) FailReset(n int, err error) *ScriptedTarget {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetErrs[n] = err
	return t
}

// Read implements glitch.Target.
func (t *ScriptedTarget) Read(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reads++
	if err, ok := t.errs[t.reads]; ok {
		return nil, err
	}
	return t.outputs[t.reads], nil
}

// Reset implements glitch.Target.
func (t *ScriptedTarget) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resets++
	t.resetAt = append(t.resetAt, t.reads)
	return t.resetErrs[t.resets]
}

// Reads returns the number of reads performed.
func (t *ScriptedTarget) Reads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads
}

// Resets returns the number of resets performed.
func (t *ScriptedTarget) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// ResetAt returns the read count at which each reset happened.
func (t *ScriptedTarget) ResetAt() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.resetAt...)
}
