package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/glitchctl/internal/pulse"
)

// PulseOptions holds flags for the pulse command.
type PulseOptions struct {
	*RootOptions
	Width     uint32
	Count     int
	Interval  time.Duration
	GlitchPin string
	Tick      time.Duration
	DryRun    bool

	// OpenLine allows overriding the output line (for testing).
	OpenLine func(name string) (pulse.Line, error)
}

// PulseReport summarizes a calibration burst.
type PulseReport struct {
	Width    uint32   `json:"width"`
	Count    int      `json:"count"`
	Emitted  uint64   `json:"emitted"`
	Measured []uint32 `json:"measured,omitempty"`
}

// String renders the report for text output.
func (r PulseReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Emitted %d of %d pulses of %s", r.Emitted, r.Count, pulse.Width(r.Width))
	if len(r.Measured) > 0 {
		fmt.Fprintf(&b, "\n  measured: %v", r.Measured)
	}
	return b.String()
}

// NewPulseCommand creates the pulse command.
func NewPulseCommand(rootOpts *RootOptions) *cobra.Command {
	return newPulseCommand(&PulseOptions{RootOptions: rootOpts})
}

func newPulseCommand(opts *PulseOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulse",
		Short: "Fire fixed-width pulses for scope calibration",
		Long: `Fire a burst of pulses of one width on the glitch line.

Use this to calibrate the tick length on an oscilloscope before a run.
With --dry-run the pulses go to a simulated line and the measured widths
are reported.

Examples:
  glitchctl pulse --width 15 --count 100 --interval 10ms
  glitchctl pulse --width 15 --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPulse(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.Uint32Var(&opts.Width, "width", 0, "pulse width in ticks (required)")
	f.IntVar(&opts.Count, "count", 1, "number of pulses")
	f.DurationVar(&opts.Interval, "interval", 10*time.Millisecond, "gap between pulses")
	f.StringVar(&opts.GlitchPin, "glitch-pin", "GPIO14", "GPIO driving the glitch circuit")
	f.DurationVar(&opts.Tick, "tick", 0, "duration of one width tick (0 uses the decrement loop)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "pulse a simulated line")
	_ = cmd.MarkFlagRequired("width")

	return cmd
}

func runPulse(opts *PulseOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	w := pulse.Width(opts.Width)
	if err := w.Validate(); err != nil {
		formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid width", err)
	}
	if opts.Count < 1 {
		formatter.Error(ErrCodeInvalidConfig, "count must be at least 1", nil)
		return NewExitError(ExitCommandError, "invalid count")
	}

	var (
		line pulse.Line
		tb   pulse.Timebase
		sim  *pulse.Sim
	)
	switch {
	case opts.DryRun:
		sim = pulse.NewSim()
		line, tb = sim, sim
	default:
		open := opts.OpenLine
		if open == nil {
			open = func(name string) (pulse.Line, error) { return pulse.OpenGPIOLine(name) }
		}
		var err error
		if line, err = open(opts.GlitchPin); err != nil {
			formatter.Error(ErrCodeHardware, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to open glitch line", err)
		}
		tb = pulse.LoopTimebase{}
		if opts.Tick > 0 {
			tb = pulse.ClockTimebase{Tick: opts.Tick}
		}
	}

	seq := pulse.NewSequencer(line, tb, pulse.WithLogger(logger))
	defer seq.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for i := 0; i < opts.Count; i++ {
		if err := seq.Trigger(w); err != nil {
			return WrapExitError(ExitFailure, "trigger failed", err)
		}
		if err := seq.Wait(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return WrapExitError(ExitFailure, "pulse failed", err)
		}
		if i < opts.Count-1 && opts.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Interval):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	report := PulseReport{Width: opts.Width, Count: opts.Count, Emitted: seq.Emitted()}
	if sim != nil {
		for _, p := range sim.Pulses() {
			report.Measured = append(report.Measured, uint32(p.Width))
		}
	}
	logger.Debug("pulse burst complete", "width", opts.Width, "emitted", report.Emitted)
	return formatter.Success(report)
}
