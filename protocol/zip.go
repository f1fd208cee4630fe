package protocol

import (
	"fmt"
	"strings"
)

// Bit-bang I2C program opcodes (bbI2CZip)
const (
	OpEnd     byte = 0
	OpEscape  byte = 1 // next parameter is two bytes, low byte first
	OpStart   byte = 2
	OpStop    byte = 3
	OpAddress byte = 4
	OpFlags   byte = 5 // always followed by two bytes
	OpRead    byte = 6
	OpWrite   byte = 7
)

var opNames = map[byte]string{
	OpEnd:     "end",
	OpStart:   "start",
	OpStop:    "stop",
	OpAddress: "addr",
	OpFlags:   "flags",
	OpRead:    "read",
	OpWrite:   "write",
}

// maxParam is the largest parameter an escaped opcode can carry
const maxParam = 0xFFFF

// Program builds an opcode list for the bit-bang I2C engine
type Program struct {
	buf []byte
	err error
}

// NewProgram creates an empty program
func NewProgram() *Program {
	return &Program{buf: make([]byte, 0, 16)}
}

// param appends op with its parameter, escaping values above one byte
func (p *Program) param(op byte, v int) {
	if v < 0 || v > maxParam {
		if p.err == nil {
			p.err = fmt.Errorf("%w: %s parameter %d out of range", ErrBadProgram, opNames[op], v)
		}
		return
	}
	if v > 0xFF {
		p.buf = append(p.buf, OpEscape, op, byte(v), byte(v>>8))
		return
	}
	p.buf = append(p.buf, op, byte(v))
}

// Address selects the 7-bit device address for following transfers
func (p *Program) Address(addr uint16) *Program {
	p.param(OpAddress, int(addr))
	return p
}

// Start emits a (repeated) start condition
func (p *Program) Start() *Program {
	p.buf = append(p.buf, OpStart)
	return p
}

// Stop emits a stop condition
func (p *Program) Stop() *Program {
	p.buf = append(p.buf, OpStop)
	return p
}

// Flags sets the engine flags word
func (p *Program) Flags(f uint16) *Program {
	p.buf = append(p.buf, OpFlags, byte(f), byte(f>>8))
	return p
}

// Write transfers data to the addressed device
func (p *Program) Write(data ...byte) *Program {
	p.param(OpWrite, len(data))
	if p.err == nil {
		p.buf = append(p.buf, data...)
	}
	return p
}

// Read reads n bytes from the addressed device
func (p *Program) Read(n int) *Program {
	p.param(OpRead, n)
	return p
}

// End terminates the program
func (p *Program) End() *Program {
	p.buf = append(p.buf, OpEnd)
	return p
}

// Encode returns the opcode list, or the first build error
func (p *Program) Encode() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out, nil
}

// String disassembles the program
func (p *Program) String() string {
	if p.err != nil {
		return p.err.Error()
	}
	return Disassemble(p.buf)
}

// Instruction is one decoded program step
type Instruction struct {
	Op    byte
	Param int
	Data  []byte // payload of a write
}

func (i Instruction) String() string {
	switch i.Op {
	case OpAddress:
		return fmt.Sprintf("addr 0x%02X", i.Param)
	case OpFlags:
		return fmt.Sprintf("flags 0x%04X", i.Param)
	case OpRead:
		return fmt.Sprintf("read %d", i.Param)
	case OpWrite:
		parts := make([]string, len(i.Data))
		for n, b := range i.Data {
			parts[n] = fmt.Sprintf("0x%02X", b)
		}
		return fmt.Sprintf("write %d [%s]", i.Param, strings.Join(parts, " "))
	default:
		return opNames[i.Op]
	}
}

// DecodeProgram parses an opcode list. Decoding stops at the first End.
func DecodeProgram(list []byte) ([]Instruction, error) {
	input := NewSliceInputBuffer(list)
	var out []Instruction
	escaped := false

	for input.Available() > 0 {
		data := input.Data()
		op := data[0]
		input.Pop(1)

		switch op {
		case OpEnd:
			return append(out, Instruction{Op: OpEnd}), nil

		case OpEscape:
			escaped = true
			continue

		case OpStart, OpStop:
			out = append(out, Instruction{Op: op})

		case OpFlags:
			v, err := popParam(input, true)
			if err != nil {
				return nil, err
			}
			out = append(out, Instruction{Op: op, Param: v})

		case OpAddress, OpRead, OpWrite:
			v, err := popParam(input, escaped)
			if err != nil {
				return nil, err
			}
			ins := Instruction{Op: op, Param: v}
			if op == OpWrite {
				if input.Available() < v {
					return nil, fmt.Errorf("%w: write of %d bytes truncated", ErrBadProgram, v)
				}
				ins.Data = make([]byte, v)
				copy(ins.Data, input.Data()[:v])
				input.Pop(v)
			}
			out = append(out, ins)

		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", ErrBadProgram, op)
		}
		escaped = false
	}

	return out, nil
}

func popParam(input InputBuffer, wide bool) (int, error) {
	n := 1
	if wide {
		n = 2
	}
	if input.Available() < n {
		return 0, fmt.Errorf("%w: missing parameter", ErrBadProgram)
	}
	data := input.Data()
	v := int(data[0])
	if wide {
		v |= int(data[1]) << 8
	}
	input.Pop(n)
	return v, nil
}

// Disassemble renders an opcode list as text, e.g. "addr 0x50; start; read 1; stop".
func Disassemble(list []byte) string {
	ins, err := DecodeProgram(list)
	if err != nil {
		return err.Error()
	}
	parts := make([]string, len(ins))
	for i, in := range ins {
		parts[i] = in.String()
	}
	return strings.Join(parts, "; ")
}
