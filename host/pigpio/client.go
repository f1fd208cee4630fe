// Package pigpio is a client for the pigpio daemon socket interface
package pigpio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"

	"vcti2c/core"
	"vcti2c/host/link"
	"vcti2c/protocol"
)

// ErrNotConnected is returned after Close
var ErrNotConnected = errors.New("not connected to pigpiod")

// Client represents a connection to a pigpio daemon
type Client struct {
	// Transport layer
	transport *protocol.HostTransport

	// Endpoint description, for messages
	endpoint string

	// Connection state
	connected bool
}

var _ core.Engine = (*Client)(nil)

// NewClient wraps an already open link
func NewClient(port link.Port, endpoint string) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		endpoint:  endpoint,
		connected: true,
	}
}

// Dial connects to pigpiod
func Dial(ctx context.Context, cfg *link.Config) (*Client, error) {
	port, err := link.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open link: %w", err)
	}

	c := NewClient(port, cfg.String())
	if cfg.Timeout > 0 {
		c.transport.SetTimeout(cfg.Timeout)
	}
	return c, nil
}

// Close closes the connection to the daemon
func (c *Client) Close() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.transport.Close()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.connected
}

func (c *Client) String() string {
	return "pigpiod@" + c.endpoint
}

// do runs a command and returns the daemon's result
func (c *Client) do(ctx context.Context, cmd protocol.Command) (protocol.Response, []byte, error) {
	if !c.connected {
		return protocol.Response{}, nil, ErrNotConnected
	}
	return c.transport.Do(ctx, cmd)
}

// SetMode configures a GPIO as input or output
func (c *Client) SetMode(ctx context.Context, pin core.GPIOPin, mode core.Mode) error {
	m := protocol.ModeInput
	if mode == core.ModeOutput {
		m = protocol.ModeOutput
	}
	if _, _, err := c.do(ctx, protocol.Command{Cmd: protocol.CmdModes, P1: uint32(pin), P2: m}); err != nil {
		return fmt.Errorf("set mode of gpio %d to %s: %w", pin, mode, err)
	}
	return nil
}

// SetPull configures the pull resistor of a GPIO.
// gpio.PullNoChange leaves the pin untouched.
func (c *Client) SetPull(ctx context.Context, pin core.GPIOPin, pull gpio.Pull) error {
	var pud uint32
	switch pull {
	case gpio.PullNoChange:
		return nil
	case gpio.Float:
		pud = protocol.PudOff
	case gpio.PullDown:
		pud = protocol.PudDown
	case gpio.PullUp:
		pud = protocol.PudUp
	default:
		return fmt.Errorf("unsupported pull %s", pull)
	}

	if _, _, err := c.do(ctx, protocol.Command{Cmd: protocol.CmdPUD, P1: uint32(pin), P2: pud}); err != nil {
		return fmt.Errorf("set pull of gpio %d to %s: %w", pin, pull, err)
	}
	return nil
}

// Write drives a GPIO to a level
func (c *Client) Write(ctx context.Context, pin core.GPIOPin, level gpio.Level) error {
	var l uint32
	if level == gpio.High {
		l = 1
	}
	if _, _, err := c.do(ctx, protocol.Command{Cmd: protocol.CmdWrite, P1: uint32(pin), P2: l}); err != nil {
		return fmt.Errorf("write gpio %d %s: %w", pin, level, err)
	}
	return nil
}

// BitBangOpen claims sda and scl for bit-banged I2C at baud bits per second
func (c *Client) BitBangOpen(ctx context.Context, sda, scl core.GPIOPin, baud uint32) error {
	ext := make([]byte, 4)
	binary.LittleEndian.PutUint32(ext, baud)

	cmd := protocol.Command{Cmd: protocol.CmdBI2CO, P1: uint32(sda), P2: uint32(scl), Ext: ext}
	if _, _, err := c.do(ctx, cmd); err != nil {
		return fmt.Errorf("open bit-bang i2c on sda=%d scl=%d: %w", sda, scl, err)
	}
	return nil
}

// BitBangClose releases the bus opened on sda
func (c *Client) BitBangClose(ctx context.Context, sda core.GPIOPin) error {
	if _, _, err := c.do(ctx, protocol.Command{Cmd: protocol.CmdBI2CC, P1: uint32(sda)}); err != nil {
		return fmt.Errorf("close bit-bang i2c on sda=%d: %w", sda, err)
	}
	return nil
}

// BitBangZip runs an opcode list on the bus opened on sda
func (c *Client) BitBangZip(ctx context.Context, sda core.GPIOPin, program []byte) ([]byte, error) {
	_, data, err := c.do(ctx, protocol.Command{Cmd: protocol.CmdBI2CZ, P1: uint32(sda), Ext: program})
	if err != nil {
		return nil, fmt.Errorf("bit-bang i2c [%s]: %w", protocol.Disassemble(program), err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// Open starts a bit-bang session; the session's Close releases the bus
func (c *Client) Open(ctx context.Context, cfg core.BusConfig) (core.Session, error) {
	if err := c.BitBangOpen(ctx, cfg.SDA, cfg.SCL, cfg.Baud()); err != nil {
		return nil, err
	}
	return &session{client: c, sda: cfg.SDA}, nil
}

type session struct {
	client *Client
	sda    core.GPIOPin
	closed bool
}

func (s *session) Transfer(ctx context.Context, program []byte) ([]byte, error) {
	if s.closed {
		return nil, errors.New("session closed")
	}
	return s.client.BitBangZip(ctx, s.sda, program)
}

// Close does not take a context: release must happen even after the
// caller's context has been cancelled.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.BitBangClose(context.Background(), s.sda)
}
