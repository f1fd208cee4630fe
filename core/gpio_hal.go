package core

import (
	"context"

	"periph.io/x/conn/v3/gpio"
)

// GPIOPin identifies a GPIO on the engine host (Broadcom numbering)
type GPIOPin uint32

// Mode selects the direction of a pin
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
)

func (m Mode) String() string {
	if m == ModeOutput {
		return "output"
	}
	return "input"
}

// Lines is the raw pin-level interface of the engine.
// Implementations drive the pins of the remote host, not local hardware.
type Lines interface {
	// SetMode configures a pin as input (high impedance) or output
	SetMode(ctx context.Context, pin GPIOPin, mode Mode) error

	// SetPull configures the internal pull resistor of a pin
	SetPull(ctx context.Context, pin GPIOPin, pull gpio.Pull) error

	// Write drives a pin to the given level, switching it to output
	Write(ctx context.Context, pin GPIOPin, level gpio.Level) error
}
