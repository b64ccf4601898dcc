// Package config loads and validates glitch run configuration.
//
// A run is configured from defaults, then an optional YAML file, then
// command-line flags. The merged result is checked against an embedded CUE
// schema and against the controller's own parameter validation before any
// hardware is touched.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/glitchctl/internal/glitch"
	"github.com/roach88/glitchctl/internal/pulse"
	"github.com/roach88/glitchctl/internal/target"
)

// Reset describes the target reset pulse.
type Reset struct {
	Assert     time.Duration `yaml:"assert"`
	Release    time.Duration `yaml:"release"`
	ActiveHigh bool          `yaml:"active_high"`
}

// Limits bounds a run. Zero values are unbounded.
type Limits struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	MaxDuration          time.Duration `yaml:"max_duration"`
	MaxConsecutiveResets int           `yaml:"max_consecutive_resets"`
}

// Simulation shapes the simulated target used by dry runs.
type Simulation struct {
	VulnMin  uint32 `yaml:"vuln_min"`
	VulnMax  uint32 `yaml:"vuln_max"`
	Brownout uint32 `yaml:"brownout"`
	Period   int    `yaml:"period"`
}

// Config is a complete glitch run configuration.
type Config struct {
	Port      string `yaml:"port"`
	Baud      int    `yaml:"baud"`
	GlitchPin string `yaml:"glitch_pin"`
	ResetPin  string `yaml:"reset_pin"`

	MinWidth uint32        `yaml:"min_width"`
	MaxWidth uint32        `yaml:"max_width"`
	Tick     time.Duration `yaml:"tick"`

	Settle           time.Duration `yaml:"settle"`
	SilenceThreshold int           `yaml:"silence_threshold"`
	Markers          []string      `yaml:"markers"`
	IgnoreCase       bool          `yaml:"ignore_case"`
	Seed             uint64        `yaml:"seed"`

	ReadTimeout time.Duration `yaml:"read_timeout"`
	Reset       Reset         `yaml:"reset"`
	Limits      Limits        `yaml:"limits"`

	MetricsAddr string     `yaml:"metrics_addr"`
	DryRun      bool       `yaml:"dry_run"`
	Simulation  Simulation `yaml:"simulation"`
}

// Default returns the reference configuration: widths 10..20 ticks, 100ms
// settle, a 100-poll silence threshold, the SUCCESS and ### markers, and an
// active-low 200ms/100ms reset on a 9600 baud console.
func Default() Config {
	return Config{
		Baud:             target.DefaultBaud,
		GlitchPin:        "GPIO14",
		ResetPin:         "GPIO8",
		MinWidth:         10,
		MaxWidth:         20,
		Settle:           glitch.DefaultSettle,
		SilenceThreshold: glitch.DefaultSilenceThreshold,
		Markers:          append([]string(nil), glitch.DefaultMarkers...),
		ReadTimeout:      target.DefaultReadTimeout,
		Reset: Reset{
			Assert:  target.DefaultResetTiming.Assert,
			Release: target.DefaultResetTiming.Release,
		},
		Simulation: Simulation{
			VulnMin:  17,
			VulnMax:  17,
			Brownout: 20,
			Period:   1,
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadFile reads a YAML file over Default without validating it, so callers
// can layer flags on top first.
func ReadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg, err := Parse(r)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads YAML from r over Default. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &Error{Field: "yaml", Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema, then against the rules
// the schema cannot express.
func (c Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if !c.DryRun {
		if c.Port == "" {
			return &Error{Field: "port", Message: "a serial port is required unless dry_run is set"}
		}
		if c.ResetPin == "" {
			return &Error{Field: "reset_pin", Message: "a reset pin is required unless dry_run is set"}
		}
	}
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if _, err := c.Matcher(); err != nil {
		return err
	}
	return nil
}

// Params returns the controller's width range.
func (c Config) Params() glitch.Params {
	return glitch.Params{MinWidth: pulse.Width(c.MinWidth), MaxWidth: pulse.Width(c.MaxWidth)}
}

// Matcher builds the success-marker matcher.
func (c Config) Matcher() (*glitch.Matcher, error) {
	return glitch.NewMatcher(c.Markers, c.IgnoreCase)
}

// RunLimits returns the controller's run budget.
func (c Config) RunLimits() glitch.Limits {
	return glitch.Limits{
		MaxAttempts:          c.Limits.MaxAttempts,
		MaxDuration:          c.Limits.MaxDuration,
		MaxConsecutiveResets: c.Limits.MaxConsecutiveResets,
	}
}

// ResetTiming returns the target reset pulse shape.
func (c Config) ResetTiming() target.ResetTiming {
	return target.ResetTiming{
		Assert:     c.Reset.Assert,
		Release:    c.Reset.Release,
		ActiveHigh: c.Reset.ActiveHigh,
	}
}

// FirmwareConfig returns the simulated target used by dry runs.
func (c Config) FirmwareConfig() target.FirmwareConfig {
	return target.FirmwareConfig{
		VulnMin:  pulse.Width(c.Simulation.VulnMin),
		VulnMax:  pulse.Width(c.Simulation.VulnMax),
		Brownout: pulse.Width(c.Simulation.Brownout),
		Period:   c.Simulation.Period,
	}
}

// Timebase returns a tick-scaled clock timebase when Tick is set, and the
// decrement loop otherwise.
func (c Config) Timebase() pulse.Timebase {
	if c.Tick > 0 {
		return pulse.ClockTimebase{Tick: c.Tick}
	}
	return pulse.LoopTimebase{}
}

// Source returns the width source. A zero Seed seeds from the clock.
func (c Config) Source() glitch.Source {
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return glitch.NewSource(seed)
}

// IsInvalid reports whether err is a configuration validation failure from
// this package or from the controller's parameter checks.
func IsInvalid(err error) bool {
	var fe *Error
	var se *SchemaError
	return errors.As(err, &fe) || errors.As(err, &se) || glitch.IsConfigError(err)
}
