package core

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// BusConfig describes a bit-banged I2C bus
type BusConfig struct {
	SDA   GPIOPin
	SCL   GPIOPin
	Speed physic.Frequency
}

// Baud returns the bus speed in bits per second
func (c BusConfig) Baud() uint32 {
	return uint32(c.Speed / physic.Hertz)
}

func (c BusConfig) String() string {
	return fmt.Sprintf("bb-i2c(sda=%d,scl=%d,%s)", c.SDA, c.SCL, c.Speed)
}

// Session is an open bit-banged I2C bus on the engine.
// It must be closed before another session can use the same SDA pin.
type Session interface {
	// Transfer runs an opcode list and returns the bytes it read
	Transfer(ctx context.Context, program []byte) ([]byte, error)

	// Close releases the bus
	Close() error
}

// Engine is the external bit-banging engine
type Engine interface {
	Lines

	// Open starts a bit-banged I2C session on the configured pins
	Open(ctx context.Context, cfg BusConfig) (Session, error)

	// Close stops the engine connection
	Close() error
}
