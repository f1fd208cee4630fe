package vct

import (
	"context"

	"vcti2c/core"
	"vcti2c/protocol"
)

// selectProgram points the device at sub
func selectProgram(addr, sub uint8) *protocol.Program {
	return protocol.NewProgram().Address(uint16(addr)).Start().Write(sub).Stop()
}

// readProgram reads n bytes from the current sub-address
func readProgram(addr uint8, n int) *protocol.Program {
	return protocol.NewProgram().Address(uint16(addr)).Start().Read(n).Stop().End()
}

// writeProgram writes data starting at sub
func writeProgram(addr, sub uint8, data ...byte) *protocol.Program {
	payload := append([]byte{sub}, data...)
	return protocol.NewProgram().Address(uint16(addr)).Start().Write(payload...).Stop().End()
}

// read selects sub then reads n bytes, in two opcode lists on one session
func (d *Device) read(ctx context.Context, addr, sub uint8, n int) ([]byte, error) {
	var data []byte
	err := d.transaction(ctx, func(s core.Session) error {
		if _, err := run(ctx, s, selectProgram(addr, sub)); err != nil {
			return err
		}
		var err error
		data, err = run(ctx, s, readProgram(addr, n))
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// write sends sub followed by data in a single opcode list
func (d *Device) write(ctx context.Context, addr, sub uint8, data ...byte) ([]byte, error) {
	var result []byte
	err := d.transaction(ctx, func(s core.Session) error {
		var err error
		result, err = run(ctx, s, writeProgram(addr, sub, data...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadByte reads the byte at addr/sub. The returned slice is the raw
// result of the read transfer.
func (d *Device) ReadByte(ctx context.Context, addr, sub uint8) ([]byte, error) {
	return d.read(ctx, addr, sub, 1)
}

// WriteByte writes v at addr/sub and returns what the engine reported.
// The result is not compared with v.
func (d *Device) WriteByte(ctx context.Context, addr, sub, v uint8) ([]byte, error) {
	return d.write(ctx, addr, sub, v)
}

// ReadWord reads two bytes at addr/sub in the order the device sends them
func (d *Device) ReadWord(ctx context.Context, addr, sub uint8) ([]byte, error) {
	return d.read(ctx, addr, sub, 2)
}

// WriteWord writes high then low at addr/sub
func (d *Device) WriteWord(ctx context.Context, addr, sub, high, low uint8) ([]byte, error) {
	return d.write(ctx, addr, sub, high, low)
}
