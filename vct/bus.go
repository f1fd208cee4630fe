package vct

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"vcti2c/core"
	"vcti2c/protocol"
)

// Tx runs a generic transaction on its own session: w is written, then
// len(r) bytes are read after a repeated start. Either may be empty.
func (d *Device) Tx(ctx context.Context, addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("vct: address 0x%X is not a 7-bit address", addr)
	}
	if len(w) == 0 && len(r) == 0 {
		return nil
	}

	p := protocol.NewProgram().Address(addr).Start()
	if len(w) > 0 {
		p.Write(w...)
	}
	if len(r) > 0 {
		if len(w) > 0 {
			p.Start()
		}
		p.Read(len(r))
	}
	p.Stop().End()

	return d.transaction(ctx, func(s core.Session) error {
		data, err := run(ctx, s, p)
		if err != nil {
			return err
		}
		if len(data) != len(r) {
			return fmt.Errorf("vct: read %d bytes from 0x%02X, expected %d", len(data), addr, len(r))
		}
		copy(r, data)
		return nil
	})
}

// Bus exposes the bit-banged pins as a generic I2C bus. Transactions use
// ctx; third-party drivers can talk to other chips sharing the pins.
func (d *Device) Bus(ctx context.Context) *Bus {
	return &Bus{ctx: ctx, dev: d}
}

// Bus adapts a Device to periph and TinyGo I2C interfaces
type Bus struct {
	ctx context.Context
	dev *Device
}

var (
	_ i2c.Bus     = (*Bus)(nil)
	_ drivers.I2C = (*Bus)(nil)
)

func (b *Bus) String() string {
	return b.dev.busConfig().String()
}

// Tx implements i2c.Bus and drivers.I2C
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.dev.Tx(b.ctx, addr, w, r)
}

// SetSpeed implements i2c.Bus
func (b *Bus) SetSpeed(f physic.Frequency) error {
	return b.dev.SetSpeed(f)
}
