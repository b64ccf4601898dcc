package pulse

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is a digital output driven by exactly one Sequencer.
type Line interface {
	High() error
	Low() error
}

// GPIOLine drives a host GPIO pin, typically the gate of the switching
// MOSFET on the target's power rail.
type GPIOLine struct {
	pin gpio.PinOut
}

// NewGPIOLine takes ownership of pin and drives it low.
func NewGPIOLine(pin gpio.PinOut) (*GPIOLine, error) {
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("drive %s low: %w", pin, err)
	}
	return &GPIOLine{pin: pin}, nil
}

// OpenGPIOLine initializes the host drivers and opens the named pin
// (e.g. "GPIO14").
func OpenGPIOLine(name string) (*GPIOLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return NewGPIOLine(p)
}

// High drives the pin high.
func (l *GPIOLine) High() error {
	return l.pin.Out(gpio.High)
}

// Low drives the pin low.
func (l *GPIOLine) Low() error {
	return l.pin.Out(gpio.Low)
}
