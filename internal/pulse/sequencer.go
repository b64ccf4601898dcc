package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/roach88/glitchctl/internal/logging"
)

// maxInflight is one executing pulse plus one pending request.
const maxInflight = 2

var (
	// ErrBusy is returned when a pulse is executing and another is already
	// pending behind it.
	ErrBusy = errors.New("pulse sequencer busy: one pulse executing and one pending")

	// ErrClosed is returned by Trigger after Close.
	ErrClosed = errors.New("pulse sequencer closed")
)

// Sequencer is the independent execution context that owns a Line.
//
// Thread-safety model:
//   - Trigger, Wait, Busy, Emitted: safe from any goroutine
//   - the Line and Timebase are only ever touched by the sequencer goroutine
//
// INVARIANTS:
//   - at most one pulse executes at a time; the line is low between pulses
//   - every accepted request produces exactly one rising and one falling edge
//   - a started pulse always runs to its full width, even during Close
type Sequencer struct {
	line   Line
	tb     Timebase
	logger *slog.Logger

	requests chan Width

	mu       sync.Mutex
	inflight int           // executing + pending
	idle     chan struct{} // closed while inflight == 0
	closed   bool
	lastErr  error

	emitted atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger used for line failures and debug output.
// Logging only happens after the falling edge. A nil logger discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l == nil {
			l = logging.NewNop()
		}
		s.logger = l
	}
}

// NewSequencer starts a sequencer goroutine that owns line and times pulses
// with tb. Callers must Close it to release the goroutine.
func NewSequencer(line Line, tb Timebase, opts ...Option) *Sequencer {
	idle := make(chan struct{})
	close(idle)

	s := &Sequencer{
		line:     line,
		tb:       tb,
		logger:   logging.NewNop(),
		requests: make(chan Width, maxInflight),
		idle:     idle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.run()
	return s
}

// Trigger hands w to the sequencer and returns without waiting for the pulse.
//
// If a pulse is executing, w is queued behind it. If a request is already
// queued, w is rejected with ErrBusy.
func (s *Sequencer) Trigger(w Width) error {
	if err := w.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.inflight >= maxInflight {
		return ErrBusy
	}
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++

	// Buffered to maxInflight, so this send never blocks.
	s.requests <- w
	return nil
}

// Wait blocks until no pulse is executing or pending.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether a pulse is executing or pending.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Emitted returns the number of completed pulses.
func (s *Sequencer) Emitted() uint64 {
	return s.emitted.Load()
}

// Err returns the most recent line failure, if any.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops accepting requests, lets the executing and pending pulses
// finish, and leaves the line low.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		close(s.stop)
	}
	<-s.done

	if err := s.line.Low(); err != nil {
		return fmt.Errorf("park line low: %w", err)
	}
	return nil
}

func (s *Sequencer) run() {
	// Keep the timing loop on one thread so the Go scheduler never migrates
	// it mid-pulse.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)

	for {
		select {
		case w := <-s.requests:
			s.emit(w)
		case <-s.stop:
			for {
				select {
				case w := <-s.requests:
					s.emit(w)
				default:
					return
				}
			}
		}
	}
}

// emit runs one pulse. Nothing between High and Low may block or log.
func (s *Sequencer) emit(w Width) {
	var lineErr error
	if err := s.line.High(); err != nil {
		lineErr = fmt.Errorf("drive line high: %w", err)
	} else {
		s.tb.Hold(w)
		if err := s.line.Low(); err != nil {
			lineErr = fmt.Errorf("drive line low: %w", err)
		}
	}

	if lineErr == nil {
		s.emitted.Add(1)
		s.logger.Debug("pulse emitted", "width", uint32(w))
	} else {
		s.logger.Error("pulse failed", "width", uint32(w), "error", lineErr)
	}

	s.mu.Lock()
	if lineErr != nil {
		s.lastErr = lineErr
	}
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
}
