package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/glitchctl/internal/config"
	"github.com/roach88/glitchctl/internal/glitch"
	"github.com/roach88/glitchctl/internal/ledger"
	"github.com/roach88/glitchctl/internal/pulse"
	"github.com/roach88/glitchctl/internal/runid"
	"github.com/roach88/glitchctl/internal/target"
	"github.com/roach88/glitchctl/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string

	// flags holds raw flag values; only flags the operator set are applied
	// over the file configuration.
	flags config.Config

	// IDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs runid.Generator

	// OpenRig allows overriding hardware construction (for testing).
	// If nil, dry runs use the simulated target and real runs open the
	// configured GPIO and serial port.
	OpenRig func(cfg config.Config, logger *slog.Logger) (*Rig, error)
}

// Rig is the pulse engine and target link a run drives.
type Rig struct {
	Pulser *pulse.Sequencer
	Target glitch.Target

	closers []func() error
}

// Close stops the pulse engine and releases the target link.
func (r *Rig) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunReport is the outcome of a campaign.
type RunReport struct {
	RunID       string          `json:"run_id"`
	Outcome     string          `json:"outcome"` // succeeded | limit | interrupted | failed
	Width       uint32          `json:"width,omitempty"`
	Observation string          `json:"observation,omitempty"`
	Attempts    int             `json:"attempts"`
	Resets      int             `json:"resets"`
	Elapsed     string          `json:"elapsed"`
	Summary     *ledger.Summary `json:"summary,omitempty"`
}

// Run outcomes.
const (
	OutcomeSucceeded   = "succeeded"
	OutcomeLimit       = "limit"
	OutcomeInterrupted = "interrupted"
	OutcomeFailed      = "failed"
)

// String renders the report for text output.
func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", r.RunID, r.Outcome)
	if r.Outcome == OutcomeSucceeded {
		fmt.Fprintf(&b, "  width:       %s\n", pulse.Width(r.Width))
		fmt.Fprintf(&b, "  observation: %q\n", r.Observation)
	}
	fmt.Fprintf(&b, "  attempts:    %d\n", r.Attempts)
	fmt.Fprintf(&b, "  resets:      %d\n", r.Resets)
	fmt.Fprintf(&b, "  elapsed:     %s\n", r.Elapsed)

	if r.Summary != nil && len(r.Summary.Widths) > 0 {
		b.WriteString("\n")
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WIDTH\tATTEMPTS\tEMPTY\tDATA\tSUCCESS")
		for _, w := range r.Summary.Widths {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", w.Width, w.Attempts, w.Empty, w.Data, w.Success)
		}
		tw.Flush()
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a glitch campaign",
		Long: `Run a glitch campaign until the target prints a success marker.

Each iteration fires one pulse of random width in [min-width, max-width],
waits for the settle interval, and reads the target console. When the
target stays silent for more than --threshold consecutive polls it is
reset. Flags override values from --config.

Exit codes:
  0 - Success marker observed, or interrupted by the operator
  1 - A run limit was reached, or the hardware failed
  2 - Invalid configuration

Examples:
  glitchctl run --port /dev/ttyAMA0 --min-width 10 --max-width 20
  glitchctl run --config bench.yaml --max-duration 2h --metrics-addr :9464
  glitchctl run --dry-run --settle 0s --seed 1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaign(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "YAML run configuration")
	f.StringVar(&opts.flags.Port, "port", "", "target serial port")
	f.IntVar(&opts.flags.Baud, "baud", target.DefaultBaud, "target serial baud rate")
	f.StringVar(&opts.flags.GlitchPin, "glitch-pin", "GPIO14", "GPIO driving the glitch circuit")
	f.StringVar(&opts.flags.ResetPin, "reset-pin", "GPIO8", "GPIO driving the target reset line")
	f.Uint32Var(&opts.flags.MinWidth, "min-width", 10, "minimum pulse width in ticks")
	f.Uint32Var(&opts.flags.MaxWidth, "max-width", 20, "maximum pulse width in ticks")
	f.DurationVar(&opts.flags.Settle, "settle", glitch.DefaultSettle, "wait between pulse and read")
	f.IntVar(&opts.flags.SilenceThreshold, "threshold", glitch.DefaultSilenceThreshold, "empty polls tolerated before a reset")
	f.DurationVar(&opts.flags.Tick, "tick", 0, "duration of one width tick (0 uses the decrement loop)")
	f.Uint64Var(&opts.flags.Seed, "seed", 0, "width source seed (0 seeds from the clock)")
	f.StringSliceVar(&opts.flags.Markers, "marker", glitch.DefaultMarkers, "success marker (repeatable)")
	f.BoolVar(&opts.flags.IgnoreCase, "ignore-case", false, "match markers case-insensitively")
	f.IntVar(&opts.flags.Limits.MaxAttempts, "max-attempts", 0, "stop after this many attempts (0 is unbounded)")
	f.DurationVar(&opts.flags.Limits.MaxDuration, "max-duration", 0, "stop after this long (0 is unbounded)")
	f.IntVar(&opts.flags.Limits.MaxConsecutiveResets, "max-resets", 0, "stop after this many resets without output (0 is unbounded)")
	f.StringVar(&opts.flags.MetricsAddr, "metrics-addr", "", "serve /metrics and /status on this address")
	f.BoolVar(&opts.flags.DryRun, "dry-run", false, "run against the simulated target")

	return cmd
}

func runCampaign(opts *RunOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	base := opts.logger()

	cfg, err := opts.resolveConfig(cmd)
	if err != nil {
		formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	matcher, err := cfg.Matcher()
	if err != nil {
		formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ids := opts.IDs
	if ids == nil {
		ids = runid.UUIDv7Generator{}
	}
	runID := ids.Generate()
	// The controller scopes its own logger with the run ID.
	logger := base.With("run_id", runID)

	openRig := opts.OpenRig
	if openRig == nil {
		openRig = openDefaultRig
	}
	rig, err := openRig(cfg, logger)
	if err != nil {
		formatter.Error(ErrCodeHardware, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to open hardware", err)
	}
	defer func() {
		if closeErr := rig.Close(); closeErr != nil {
			logger.Error("error releasing hardware", "error", closeErr)
		}
	}()

	led, err := ledger.Open(runID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open attempt ledger", err)
	}
	defer led.Close()

	reg := prometheus.NewRegistry()
	ctrl, err := glitch.New(cfg.Params(), rig.Pulser, rig.Target,
		glitch.WithRunID(runID),
		glitch.WithSource(cfg.Source()),
		glitch.WithSettle(cfg.Settle),
		glitch.WithSilenceThreshold(cfg.SilenceThreshold),
		glitch.WithMatcher(matcher),
		glitch.WithLimits(cfg.RunLimits()),
		glitch.WithMetrics(glitch.NewMetrics(reg)),
		glitch.WithLogger(base),
		glitch.WithObserver(led),
	)
	if err != nil {
		formatter.Error(ErrCodeInvalidConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopTelemetry := startTelemetry(ctx, cfg.MetricsAddr, reg, ctrl, logger)

	started := time.Now()
	res, runErr := ctrl.Run(ctx)
	elapsed := time.Since(started)
	stopTelemetry()

	report := RunReport{
		RunID:    runID,
		Attempts: ctrl.Attempts(),
		Resets:   ctrl.Resets(),
		Elapsed:  elapsed.Round(time.Millisecond).String(),
	}
	if summary, err := led.Summary(context.Background()); err != nil {
		logger.Warn("ledger summary unavailable", "error", err)
	} else {
		report.Summary = summary
	}
	if err := led.Err(); err != nil {
		logger.Warn("ledger dropped events", "error", err)
	}

	switch {
	case runErr == nil:
		report.Outcome = OutcomeSucceeded
		report.Width = uint32(res.Width)
		report.Observation = string(res.Observation)
		return formatter.Report(runID, report, nil)

	case glitch.IsLimitError(runErr):
		report.Outcome = OutcomeLimit
		formatter.Report(runID, report, &CLIError{Code: string(glitch.Code(runErr)), Message: runErr.Error()})
		return WrapExitError(ExitFailure, "run limit reached", runErr)

	case errors.Is(runErr, context.Canceled):
		report.Outcome = OutcomeInterrupted
		logger.Info("run interrupted", "attempts", report.Attempts)
		return formatter.Report(runID, report, nil)

	default:
		report.Outcome = OutcomeFailed
		formatter.Report(runID, report, &CLIError{Code: ErrCodeRunFailed, Message: runErr.Error()})
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
}

// resolveConfig layers defaults, the config file, and set flags, then
// validates the result.
func (o *RunOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.ReadFile(o.ConfigPath); err != nil {
			return config.Config{}, err
		}
	}

	applyFlags(cmd, &cfg, &o.flags)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, f *config.Config) {
	set := cmd.Flags().Changed
	if set("port") {
		cfg.Port = f.Port
	}
	if set("baud") {
		cfg.Baud = f.Baud
	}
	if set("glitch-pin") {
		cfg.GlitchPin = f.GlitchPin
	}
	if set("reset-pin") {
		cfg.ResetPin = f.ResetPin
	}
	if set("min-width") {
		cfg.MinWidth = f.MinWidth
	}
	if set("max-width") {
		cfg.MaxWidth = f.MaxWidth
	}
	if set("settle") {
		cfg.Settle = f.Settle
	}
	if set("threshold") {
		cfg.SilenceThreshold = f.SilenceThreshold
	}
	if set("tick") {
		cfg.Tick = f.Tick
	}
	if set("seed") {
		cfg.Seed = f.Seed
	}
	if set("marker") {
		cfg.Markers = f.Markers
	}
	if set("ignore-case") {
		cfg.IgnoreCase = f.IgnoreCase
	}
	if set("max-attempts") {
		cfg.Limits.MaxAttempts = f.Limits.MaxAttempts
	}
	if set("max-duration") {
		cfg.Limits.MaxDuration = f.Limits.MaxDuration
	}
	if set("max-resets") {
		cfg.Limits.MaxConsecutiveResets = f.Limits.MaxConsecutiveResets
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if set("dry-run") {
		cfg.DryRun = f.DryRun
	}
}

// openDefaultRig wires the simulated target for dry runs and the GPIO line
// and serial console otherwise.
func openDefaultRig(cfg config.Config, logger *slog.Logger) (*Rig, error) {
	if cfg.DryRun {
		return openSimRig(cfg, logger), nil
	}

	line, err := pulse.OpenGPIOLine(cfg.GlitchPin)
	if err != nil {
		return nil, err
	}
	seq := pulse.NewSequencer(line, cfg.Timebase(), pulse.WithLogger(logger))

	link, err := target.OpenSerial(
		target.SerialConfig{Port: cfg.Port, Baud: cfg.Baud, ResetPin: cfg.ResetPin},
		target.WithResetTiming(cfg.ResetTiming()),
		target.WithReadTimeout(cfg.ReadTimeout),
		target.WithLogger(logger),
	)
	if err != nil {
		seq.Close()
		return nil, err
	}

	logger.Info("hardware ready", "glitch_pin", cfg.GlitchPin, "port", cfg.Port, "baud", cfg.Baud)
	return &Rig{Pulser: seq, Target: link, closers: []func() error{seq.Close, link.Close}}, nil
}

// openSimRig drives a simulated line whose pulses feed the simulated
// firmware.
func openSimRig(cfg config.Config, logger *slog.Logger) *Rig {
	fw := target.NewFirmware(cfg.FirmwareConfig())
	sim := pulse.NewSim()
	sim.OnPulse = fw.Glitch
	seq := pulse.NewSequencer(sim, sim, pulse.WithLogger(logger))

	logger.Info("dry run against simulated target",
		"vuln_min", cfg.Simulation.VulnMin,
		"vuln_max", cfg.Simulation.VulnMax,
		"brownout", cfg.Simulation.Brownout,
	)
	return &Rig{Pulser: seq, Target: fw, closers: []func() error{seq.Close}}
}

// startTelemetry serves metrics and status while the run is active. The
// returned function stops the server and waits for it.
func startTelemetry(ctx context.Context, addr string, reg *prometheus.Registry, ctrl *glitch.Controller, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := telemetry.Serve(srvCtx, addr, telemetry.NewHandler(reg, ctrl), func(a net.Addr) {
			logger.Info("telemetry listening", "addr", a.String())
		})
		if err != nil {
			logger.Error("telemetry server failed", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
