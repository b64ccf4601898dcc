// Package clock provides the wall-clock seams used by the controller and the
// target link: context-aware dwell sleeps and a replaceable time source.
package clock

import (
	"context"
	"sync"
	"time"
)

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper. It returns ctx.Err() if the context ends
// before d elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now is a replaceable time source.
type Now func() time.Time

// Virtual is a manually advanced clock for tests. Its Sleep never blocks; it
// advances the virtual time by d and records the request.
//
// Thread-safety: all methods are safe for concurrent use.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Sleep implements Sleeper without blocking.
func (v *Virtual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
	v.sleeps = append(v.sleeps, d)
	return nil
}

// Sleeps returns every duration passed to Sleep, in order.
func (v *Virtual) Sleeps() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]time.Duration(nil), v.sleeps...)
}
