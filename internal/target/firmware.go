package target

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/roach88/glitchctl/internal/pulse"
)

// Success banner printed by the counter firmware once its integrity loop is
// escaped.
const successBanner = "#######\r\nSUCCESSFUL GLITCH\r\n#######\r\n"

type firmwareState int

const (
	fwRunning firmwareState = iota
	fwGlitched
	fwCrashed
)

// FirmwareConfig describes how a simulated target reacts to pulses.
type FirmwareConfig struct {
	// VulnMin and VulnMax bound the widths that corrupt the loop counter.
	VulnMin pulse.Width
	VulnMax pulse.Width

	// Brownout is the width at or above which the target crashes and stays
	// silent until reset. Zero disables crashes.
	Brownout pulse.Width

	// Period is how many reads pass between counter lines. Values below 1
	// mean every read.
	Period int
}

// Firmware simulates the nested-loop counter firmware: it prints
// "25000000 5000 5000 <n>" once per outer loop, prints the success banner
// when a pulse lands in the vulnerable window, and goes silent on brownout.
// It implements the controller's target contract, and Glitch can be used as
// a pulse.Sim OnPulse hook for dry runs.
//
// Thread-safety: Firmware is safe for concurrent use via internal mutex.
type Firmware struct {
	mu      sync.Mutex
	cfg     FirmwareConfig
	state   firmwareState
	loops   int
	reads   int
	pending bytes.Buffer
	boots   int
}

// NewFirmware returns a running simulated target.
func NewFirmware(cfg FirmwareConfig) *Firmware {
	if cfg.Period < 1 {
		cfg.Period = 1
	}
	return &Firmware{cfg: cfg, boots: 1}
}

// Glitch applies a pulse of width w to the simulated power rail.
func (f *Firmware) Glitch(w pulse.Width) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != fwRunning {
		return
	}
	switch {
	case f.cfg.Brownout > 0 && w >= f.cfg.Brownout:
		f.state = fwCrashed
		f.pending.Reset()
	case w >= f.cfg.VulnMin && w <= f.cfg.VulnMax:
		f.state = fwGlitched
		f.pending.WriteString(successBanner)
	}
}

// Read returns the output produced since the previous read.
func (f *Firmware) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.state == fwRunning && f.reads%f.cfg.Period == 0 {
		fmt.Fprintf(&f.pending, "25000000 5000 5000 %d\r\n", f.loops)
		f.loops++
	}
	if f.pending.Len() == 0 {
		return nil, nil
	}
	out := bytes.Clone(f.pending.Bytes())
	f.pending.Reset()
	return out, nil
}

// Reset reboots the simulated target.
func (f *Firmware) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = fwRunning
	f.loops = 0
	f.reads = 0
	f.pending.Reset()
	f.boots++
	return nil
}

// Boots returns how many times the target has started, including power-on.
func (f *Firmware) Boots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boots
}
