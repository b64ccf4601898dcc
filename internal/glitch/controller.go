package glitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roach88/glitchctl/internal/clock"
	"github.com/roach88/glitchctl/internal/pulse"
)

const (
	// DefaultSettle is the dwell between a trigger and the following read.
	DefaultSettle = 100 * time.Millisecond

	// DefaultSilenceThreshold is the number of consecutive empty polls the
	// target may produce before it is considered stalled.
	DefaultSilenceThreshold = 100
)

// Pulser accepts one pulse width and emits it autonomously.
type Pulser interface {
	Trigger(w pulse.Width) error
}

// Completer is optionally implemented by a Pulser that can acknowledge pulse
// completion. The controller waits on it after the dwell, before reading.
type Completer interface {
	Wait(ctx context.Context) error
}

// Target is the controller's view of the device under test.
//
// Read returns whatever the target emitted since the previous call, or an
// empty slice; it must not block indefinitely. Reset runs the full reset
// sequence and returns once both settle phases are complete.
type Target interface {
	Read(ctx context.Context) ([]byte, error)
	Reset(ctx context.Context) error
}

// Source is the random source used for width selection. *rand.Rand from
// math/rand/v2 satisfies it. Uint64N keeps the full 32-bit width range
// addressable where int is 32 bits.
type Source interface {
	Uint64N(n uint64) uint64
}

// NewSource returns a PCG source seeded with seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Result is the outcome of a successful run.
type Result struct {
	RunID       string      `json:"run_id"`
	Width       pulse.Width `json:"width"`
	Observation []byte      `json:"observation"`
	Attempts    int         `json:"attempts"`
	Resets      int         `json:"resets"`
}

// Snapshot is a point-in-time view of a run, safe to read from any goroutine.
type Snapshot struct {
	RunID     string      `json:"run_id"`
	State     State       `json:"state"`
	Attempts  int         `json:"attempts"`
	Resets    int         `json:"resets"`
	Silence   int         `json:"silence"`
	LastWidth pulse.Width `json:"last_width"`
}

// Controller runs the glitch search state machine.
//
// Thread-safety model:
//   - Step and Run: must be called from exactly one goroutine
//   - Snapshot: safe from any goroutine
//
// INVARIANTS:
//   - every width passed to Trigger lies in [MinWidth, MaxWidth]
//   - silence grows by one per empty observation and is zero after any
//     non-empty observation or completed recovery
//   - recovery happens if and only if silence exceeds the threshold
//   - once Succeeded, Trigger is never called again
type Controller struct {
	params    Params
	pulser    Pulser
	target    Target
	rng       Source
	sleep     clock.Sleeper
	now       clock.Now
	matcher   *Matcher
	settle    time.Duration
	threshold int
	budget    budget
	metrics   *Metrics
	logger    *slog.Logger
	observer  Observer
	runID     string

	state             State
	silence           int
	attempts          int
	resets            int
	consecutiveResets int
	lastWidth         pulse.Width
	lastAccepted      pulse.Width
	accepted          bool
	seq               int
	started           time.Time
	result            *Result

	mu   sync.Mutex
	snap Snapshot
}

// Option configures a Controller.
type Option func(*Controller)

// WithSource sets the random source for width selection.
func WithSource(src Source) Option {
	return func(c *Controller) { c.rng = src }
}

// WithSettle sets the dwell interval after each trigger.
func WithSettle(d time.Duration) Option {
	return func(c *Controller) { c.settle = d }
}

// WithSilenceThreshold sets how many consecutive empty polls are tolerated
// before recovery.
func WithSilenceThreshold(n int) Option {
	return func(c *Controller) { c.threshold = n }
}

// WithMatcher replaces the default success marker matcher.
func WithMatcher(m *Matcher) Option {
	return func(c *Controller) { c.matcher = m }
}

// WithLimits bounds the run.
func WithLimits(l Limits) Option {
	return func(c *Controller) { c.budget = budget{limits: l} }
}

// WithMetrics records controller activity in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithObserver receives every controller event.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithRunID tags logs, events and results with id.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = id }
}

// WithSleeper replaces the dwell implementation.
func WithSleeper(s clock.Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithClock replaces the time source used for the duration limit.
func WithClock(now clock.Now) Option {
	return func(c *Controller) { c.now = now }
}

// New validates params and options and returns a controller in
// StateSearching. Configuration problems are reported as *ConfigError before
// any pulse is issued.
func New(params Params, pulser Pulser, target Target, opts ...Option) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if pulser == nil {
		return nil, fmt.Errorf("pulser is required")
	}
	if target == nil {
		return nil, fmt.Errorf("target is required")
	}

	matcher, err := NewMatcher(DefaultMarkers, false)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		params:    params,
		pulser:    pulser,
		target:    target,
		rng:       NewSource(uint64(time.Now().UnixNano())),
		sleep:     clock.Sleep,
		now:       time.Now,
		matcher:   matcher,
		settle:    DefaultSettle,
		threshold: DefaultSilenceThreshold,
		logger:    slog.Default(),
		observer:  Observers(),
		state:     StateSearching,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.settle < 0 {
		return nil, &ConfigError{Code: ErrCodeInvalidSettle, Field: "settle", Message: "settle interval must not be negative"}
	}
	if c.threshold < 0 {
		return nil, &ConfigError{Code: ErrCodeInvalidThreshold, Field: "silence_threshold", Message: "silence threshold must not be negative"}
	}
	if c.observer == nil {
		c.observer = Observers()
	}
	c.logger = c.logger.With("run_id", c.runID)
	c.started = c.now()
	c.publish()

	return c, nil
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Silence returns the consecutive empty poll count.
func (c *Controller) Silence() int { return c.silence }

// Attempts returns the number of iterations run so far.
func (c *Controller) Attempts() int { return c.attempts }

// Resets returns the number of completed recoveries.
func (c *Controller) Resets() int { return c.resets }

// Result returns the winning attempt once the controller has succeeded.
func (c *Controller) Result() (*Result, bool) {
	return c.result, c.result != nil
}

// Snapshot returns a copy of the run's progress counters.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Run steps the state machine until it succeeds, ctx is done, or a limit is
// reached. Per-iteration failures are absorbed; the only non-nil results are
// success, a context error, a *LimitError, or a fatal Pulser error.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	c.started = c.now()
	c.logger.Info("glitch search starting",
		"min_width", uint32(c.params.MinWidth),
		"max_width", uint32(c.params.MaxWidth),
		"settle", c.settle,
		"silence_threshold", c.threshold,
	)

	for !c.state.Terminal() {
		if err := ctx.Err(); err != nil {
			c.logger.Info("glitch search stopped", "attempts", c.attempts, "resets", c.resets, "reason", err)
			return nil, err
		}
		if code, limit := c.budget.beforeAttempt(c.attempts, c.now().Sub(c.started)); code != "" {
			return nil, c.limitError(code, limit)
		}
		if err := c.Step(ctx); err != nil {
			if IsLimitError(err) || ctx.Err() == nil {
				c.logger.Error("glitch search aborted", "attempts", c.attempts, "error", err)
			}
			return nil, err
		}
	}

	c.logger.Info("glitch succeeded",
		"width", uint32(c.result.Width),
		"attempts", c.attempts,
		"resets", c.resets,
		"observation", string(c.result.Observation),
	)
	return c.result, nil
}

// Step runs exactly one iteration: pick a width, trigger, dwell, read,
// classify and transition. It is a no-op once the controller has succeeded.
func (c *Controller) Step(ctx context.Context) error {
	if c.state.Terminal() {
		return nil
	}

	w := c.pickWidth()
	c.attempts++
	c.lastWidth = w
	c.metrics.observeWidth(w)

	if err := c.pulser.Trigger(w); err != nil {
		if !errors.Is(err, pulse.ErrBusy) {
			return fmt.Errorf("trigger width %d: %w", w, err)
		}
		c.metrics.observeRejected()
		c.logger.Warn("pulse rejected by busy engine", "attempt", c.attempts, "width", uint32(w))
	} else {
		c.lastAccepted = w
		c.accepted = true
		c.emit(Event{Type: EventPulse, Width: w})
	}

	if err := c.sleep(ctx, c.settle); err != nil {
		return err
	}
	if comp, ok := c.pulser.(Completer); ok {
		if err := comp.Wait(ctx); err != nil {
			return fmt.Errorf("wait for pulse completion: %w", err)
		}
	}

	data, readErr := c.target.Read(ctx)
	if readErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.metrics.observeReadError()
		c.logger.Warn("target read failed, counting as silence", "attempt", c.attempts, "error", readErr)
		data = nil
	}

	obs := c.matcher.Classify(data)
	if obs.Class == ClassSuccess && !c.accepted {
		// Nothing has reached the line yet, so the marker cannot be a glitch.
		obs.Class = ClassData
	}
	switch obs.Class {
	case ClassEmpty:
		c.silence++
	case ClassData:
		c.silence = 0
		c.consecutiveResets = 0
		c.logger.Info("target output", "attempt", c.attempts, "width", uint32(w), "data", string(obs.Data))
	case ClassSuccess:
		c.silence = 0
		c.consecutiveResets = 0
	}
	c.metrics.observeClass(obs.Class, c.silence)
	c.emit(Event{Type: EventObservation, Width: w, Class: obs.Class, Data: obs.Data, Silence: c.silence, Err: readErr})

	switch {
	case obs.Class == ClassSuccess:
		// A rejected trigger never fired; the width on the line was the
		// last accepted one.
		c.result = &Result{
			RunID:       c.runID,
			Width:       c.lastAccepted,
			Observation: obs.Data,
			Attempts:    c.attempts,
			Resets:      c.resets,
		}
		c.transition(StateSucceeded)
	case c.silence > c.threshold:
		if err := c.recover(ctx); err != nil {
			c.publish()
			return err
		}
	}

	c.publish()
	return nil
}

// recover moves through Stalled and Recovering, resets the target, and
// returns to Searching with the silence counter cleared.
func (c *Controller) recover(ctx context.Context) error {
	if code, limit := c.budget.beforeReset(c.consecutiveResets); code != "" {
		return c.limitError(code, limit)
	}

	c.logger.Warn("target stalled", "attempt", c.attempts, "silence", c.silence)
	c.transition(StateStalled)
	c.transition(StateRecovering)

	resetErr := c.target.Reset(ctx)
	if resetErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("target reset failed", "attempt", c.attempts, "error", resetErr)
	}

	c.resets++
	c.consecutiveResets++
	c.silence = 0
	c.metrics.observeReset()
	c.emit(Event{Type: EventReset, Silence: c.silence, Err: resetErr})
	c.logger.Info("target reset", "resets", c.resets, "consecutive", c.consecutiveResets)

	c.transition(StateSearching)
	return nil
}

func (c *Controller) pickWidth() pulse.Width {
	return c.params.MinWidth + pulse.Width(c.rng.Uint64N(c.params.span()))
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
	c.emit(Event{Type: EventTransition, From: from, To: to})
}

func (c *Controller) emit(e Event) {
	c.seq++
	e.Seq = c.seq
	e.Attempt = c.attempts
	c.observer.Observe(e)
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Snapshot{
		RunID:     c.runID,
		State:     c.state,
		Attempts:  c.attempts,
		Resets:    c.resets,
		Silence:   c.silence,
		LastWidth: c.lastWidth,
	}
}

func (c *Controller) limitError(code ErrorCode, limit string) *LimitError {
	return &LimitError{
		Code:     code,
		RunID:    c.runID,
		Attempts: c.attempts,
		Resets:   c.resets,
		Elapsed:  c.now().Sub(c.started),
		Limit:    limit,
	}
}
