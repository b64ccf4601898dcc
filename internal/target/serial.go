// Package target implements the link to the device under test: its serial
// console and its reset line.
package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/roach88/glitchctl/internal/clock"
	"github.com/roach88/glitchctl/internal/logging"
)

const (
	// DefaultBaud matches the target firmware's Serial.begin.
	DefaultBaud = 9600

	// DefaultReadTimeout bounds how long one port read may block.
	DefaultReadTimeout = 10 * time.Millisecond

	// maxReadBytes caps one Read so a chatty target cannot stall the loop.
	maxReadBytes = 4096
)

// Port is the part of a serial port the link uses. go.bug.st/serial ports
// satisfy it.
type Port interface {
	Read(p []byte) (n int, err error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Pin drives the target's reset line. periph.io gpio.PinOut satisfies it.
type Pin interface {
	Out(l gpio.Level) error
}

// ResetTiming describes the reset pulse. The default is active-low: the
// line is pulled low for Assert, then released high for Release.
type ResetTiming struct {
	Assert     time.Duration
	Release    time.Duration
	ActiveHigh bool
}

// DefaultResetTiming holds reset for 200ms and lets the target boot for 100ms.
var DefaultResetTiming = ResetTiming{
	Assert:  200 * time.Millisecond,
	Release: 100 * time.Millisecond,
}

func (t ResetTiming) active() gpio.Level   { return gpio.Level(t.ActiveHigh) }
func (t ResetTiming) inactive() gpio.Level { return gpio.Level(!t.ActiveHigh) }

// Serial is a target reached over a UART with a GPIO-driven reset line.
type Serial struct {
	port        Port
	reset       Pin
	timing      ResetTiming
	readTimeout time.Duration
	sleep       clock.Sleeper
	logger      *slog.Logger
}

// SerialOption configures a Serial link.
type SerialOption func(*Serial)

// WithResetTiming overrides DefaultResetTiming.
func WithResetTiming(t ResetTiming) SerialOption {
	return func(s *Serial) { s.timing = t }
}

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) SerialOption {
	return func(s *Serial) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithSleeper replaces the sleeps used between reset phases.
func WithSleeper(sl clock.Sleeper) SerialOption {
	return func(s *Serial) { s.sleep = sl }
}

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *slog.Logger) SerialOption {
	return func(s *Serial) {
		if l == nil {
			l = logging.NewNop()
		}
		s.logger = l
	}
}

// NewSerial wraps an open port and reset pin. The reset line is released so
// the target runs.
func NewSerial(port Port, reset Pin, opts ...SerialOption) (*Serial, error) {
	s := &Serial{
		port:        port,
		reset:       reset,
		timing:      DefaultResetTiming,
		readTimeout: DefaultReadTimeout,
		sleep:       clock.Sleep,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if err := reset.Out(s.timing.inactive()); err != nil {
		return nil, fmt.Errorf("release reset line: %w", err)
	}
	return s, nil
}

// SerialConfig names the host resources used by OpenSerial.
type SerialConfig struct {
	Port     string
	Baud     int
	ResetPin string
}

// OpenSerial opens the named UART at cfg.Baud (8N1) and the named reset GPIO.
func OpenSerial(cfg SerialConfig, opts ...SerialOption) (*Serial, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	pin := gpioreg.ByName(cfg.ResetPin)
	if pin == nil {
		return nil, fmt.Errorf("reset pin %q not found", cfg.ResetPin)
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	s, err := NewSerial(port, pin, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// Read drains whatever the target has printed since the last call. It
// returns an empty slice when nothing is buffered and never blocks longer
// than a few read timeouts.
func (s *Serial) Read(ctx context.Context) ([]byte, error) {
	var out []byte
	buf := make([]byte, 256)

	for len(out) < maxReadBytes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := s.port.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// Reset asserts the reset line, holds it, releases it, and waits for the
// target to boot. The line is always released, even if ctx ends while it is
// asserted.
func (s *Serial) Reset(ctx context.Context) error {
	if err := s.reset.Out(s.timing.active()); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	holdErr := s.sleep(ctx, s.timing.Assert)

	if err := s.reset.Out(s.timing.inactive()); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	if holdErr != nil {
		return holdErr
	}

	s.logger.Debug("target reset released", "assert", s.timing.Assert, "release", s.timing.Release)
	return s.sleep(ctx, s.timing.Release)
}

// Close releases the reset line and closes the port.
func (s *Serial) Close() error {
	relErr := s.reset.Out(s.timing.inactive())
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("close serial port: %w", err)
	}
	return relErr
}
