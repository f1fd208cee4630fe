package vcttest

import (
	"fmt"

	"tinygo.org/x/drivers/tester"
)

// PageSize is the number of registers of a Page
const PageSize = 256

// Page is a device with a full page of 8-bit registers, 0x00 to 0xFF.
// Set Err to make every transaction fail with it.
type Page struct {
	// unexported tester.I2CDevice methods; its register file is not used
	*tester.I2CDevice8

	// Registers can be inspected or seeded by tests
	Registers [PageSize]uint8
}

var _ tester.I2CDevice = (*Page)(nil)

// NewPage returns a Page answering at addr
func NewPage(f tester.Failer, addr uint8) *Page {
	return &Page{I2CDevice8: tester.NewI2CDevice8(f, addr)}
}

// Tx selects the register w[0], then stores the rest of w or fills r
// from consecutive registers. The register index wraps after 0xFF.
func (p *Page) Tx(w, r []byte) error {
	if p.Err != nil {
		return p.Err
	}
	if len(w) == 0 {
		return fmt.Errorf("page 0x%02x: need a register byte", p.Addr())
	}

	reg := w[0]
	for _, v := range w[1:] {
		p.Registers[reg] = v
		reg++
	}
	for i := range r {
		r[i] = p.Registers[reg]
		reg++
	}
	return nil
}
