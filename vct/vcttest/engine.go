// Package vcttest provides a simulated bit-banging engine with
// register-backed I2C devices, for tests.
package vcttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"tinygo.org/x/drivers/tester"

	"vcti2c/core"
	"vcti2c/protocol"
)

// Codes returned for bus faults, as pigpiod does
var (
	ErrNoAck  = protocol.NewError(-82)
	ErrInUse  = protocol.NewError(-50)
	ErrClosed = errors.New("engine closed")
)

// EventKind tells what an Event recorded
type EventKind uint8

const (
	EventMode EventKind = iota
	EventPull
	EventWrite
	EventSleep
	EventOpen
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventMode:
		return "mode"
	case EventPull:
		return "pull"
	case EventWrite:
		return "write"
	case EventSleep:
		return "sleep"
	case EventOpen:
		return "open"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is a pin operation, a sleep or a session boundary
type Event struct {
	Kind  EventKind
	Pin   core.GPIOPin
	Mode  core.Mode
	Pull  gpio.Pull
	Level gpio.Level
	Delay time.Duration
	Bus   core.BusConfig
}

// Transfer is one read or write phase seen on the bus
type Transfer struct {
	Addr   uint8
	Offset uint8
	Write  []byte
	Read   []byte
}

// PinState is the last configuration of a pin
type PinState struct {
	Mode  core.Mode
	Pull  gpio.Pull
	Level gpio.Level
}

// Engine simulates pigpiod with a set of register-backed devices.
// Devices keep a register pointer: a one byte write moves it, reads and
// multi-byte writes advance it.
type Engine struct {
	mu sync.Mutex

	failer   tester.Failer
	bus      *tester.I2CBus
	devices  map[uint8]*Page
	pointers map[uint8]uint8

	pins      map[core.GPIOPin]PinState
	events    []Event
	transfers []Transfer
	programs  [][]byte

	open   bool
	closed bool

	// FailTransfer, if set, is returned by the next transfers
	FailTransfer error
}

var _ core.Engine = (*Engine)(nil)

// NewEngine creates an engine without devices
func NewEngine(f tester.Failer) *Engine {
	return &Engine{
		failer:   f,
		bus:      tester.NewI2CBus(f),
		devices:  make(map[uint8]*Page),
		pointers: make(map[uint8]uint8),
		pins:     make(map[core.GPIOPin]PinState),
	}
}

// AddDevice attaches a page device at addr
func (e *Engine) AddDevice(addr uint8) *Page {
	e.mu.Lock()
	defer e.mu.Unlock()

	dev := NewPage(e.failer, addr)
	e.bus.AddDevice(dev)
	e.devices[addr] = dev
	return dev
}

// Page returns the device attached at addr, or nil
func (e *Engine) Page(addr uint8) *Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.devices[addr]
}

func (e *Engine) record(ev Event) {
	e.events = append(e.events, ev)
}

func (e *Engine) SetMode(ctx context.Context, pin core.GPIOPin, mode core.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	st := e.pins[pin]
	st.Mode = mode
	e.pins[pin] = st
	e.record(Event{Kind: EventMode, Pin: pin, Mode: mode})
	return nil
}

func (e *Engine) SetPull(ctx context.Context, pin core.GPIOPin, pull gpio.Pull) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	st := e.pins[pin]
	st.Pull = pull
	e.pins[pin] = st
	e.record(Event{Kind: EventPull, Pin: pin, Pull: pull})
	return nil
}

// Write drives the pin, switching it to output as pigpiod does
func (e *Engine) Write(ctx context.Context, pin core.GPIOPin, level gpio.Level) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	st := e.pins[pin]
	st.Mode = core.ModeOutput
	st.Level = level
	e.pins[pin] = st
	e.record(Event{Kind: EventWrite, Pin: pin, Level: level})
	return nil
}

// Sleep records a delay without waiting. It can be handed to a Device as
// its sleeper so delays show up in Events between pin operations.
func (e *Engine) Sleep(ctx context.Context, d time.Duration) error {
	e.mu.Lock()
	e.record(Event{Kind: EventSleep, Delay: d})
	e.mu.Unlock()
	return ctx.Err()
}

func (e *Engine) Open(ctx context.Context, cfg core.BusConfig) (core.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.open {
		return nil, ErrInUse
	}

	e.open = true
	e.record(Event{Kind: EventOpen, Bus: cfg})
	return &session{engine: e, cfg: cfg}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Pin returns the state of a pin
func (e *Engine) Pin(pin core.GPIOPin) PinState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pins[pin]
}

// Events returns everything recorded so far
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event{}, e.events...)
}

// Transfers returns the bus phases seen so far
func (e *Engine) Transfers() []Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Transfer{}, e.transfers...)
}

// Programs returns the raw opcode lists received so far
func (e *Engine) Programs() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]byte{}, e.programs...)
}

// IsOpen reports whether a session is open
func (e *Engine) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// IsClosed reports whether Close was called
func (e *Engine) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Reset forgets recorded events, transfers and programs
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
	e.transfers = nil
	e.programs = nil
}

type session struct {
	engine *Engine
	cfg    core.BusConfig
	closed bool
}

func (s *session) Transfer(ctx context.Context, program []byte) ([]byte, error) {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed {
		return nil, errors.New("session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.programs = append(e.programs, append([]byte{}, program...))
	if e.FailTransfer != nil {
		return nil, e.FailTransfer
	}

	ins, err := protocol.DecodeProgram(program)
	if err != nil {
		return nil, err
	}

	out := []byte{}
	var addr uint8
	for _, in := range ins {
		switch in.Op {
		case protocol.OpAddress:
			addr = uint8(in.Param)
		case protocol.OpWrite:
			if err := e.write(addr, in.Data); err != nil {
				return nil, err
			}
		case protocol.OpRead:
			data, err := e.read(addr, in.Param)
			if err != nil {
				return nil, err
			}
			out = append(out, data...)
		}
	}
	return out, nil
}

func (s *session) Close() error {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	e.open = false
	e.record(Event{Kind: EventClose, Bus: s.cfg})
	return nil
}

func (e *Engine) device(addr uint8) (*Page, error) {
	dev, ok := e.devices[addr]
	if !ok {
		return nil, ErrNoAck
	}
	return dev, nil
}

// write moves the register pointer to data[0] and stores the rest
func (e *Engine) write(addr uint8, data []byte) error {
	if _, err := e.device(addr); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	ptr := data[0]
	e.transfers = append(e.transfers, Transfer{Addr: addr, Offset: ptr, Write: append([]byte{}, data[1:]...)})
	for _, v := range data[1:] {
		if err := e.bus.Tx(uint16(addr), []byte{ptr, v}, nil); err != nil {
			return err
		}
		ptr++
	}
	e.pointers[addr] = ptr
	return nil
}

// read returns n bytes from the register pointer, wrapping at the end
func (e *Engine) read(addr uint8, n int) ([]byte, error) {
	if _, err := e.device(addr); err != nil {
		return nil, err
	}

	ptr := e.pointers[addr]
	start := ptr
	data := make([]byte, n)
	for i := range data {
		if err := e.bus.Tx(uint16(addr), []byte{ptr}, data[i:i+1]); err != nil {
			return nil, err
		}
		ptr++
	}
	e.pointers[addr] = ptr
	e.transfers = append(e.transfers, Transfer{Addr: addr, Offset: start, Read: data})
	return data, nil
}
