// Package vct drives VCT49xl ICs over a bit-banged I2C bus.
//
// Every transaction runs on its own bus session: the session is opened,
// the opcode lists are transferred and the session is closed again before
// the call returns, on error paths included.
package vct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"vcti2c/core"
	"vcti2c/protocol"
)

// Version of the tool
const Version = "v0.1 (July 26th, 2024)"

// Default wiring of the VCT board on the Raspberry Pi header
const (
	DefaultSDA core.GPIOPin = 2
	DefaultSCL core.GPIOPin = 3
	DefaultFA1 core.GPIOPin = 17

	DefaultSpeed      = 100 * physic.KiloHertz
	DefaultWriteDelay = time.Millisecond
	DefaultPageDelay  = 20 * time.Millisecond
)

// PageSize is the number of offsets behind one device address
const PageSize = 256

// Config holds the pin assignment and timing of a Device
type Config struct {
	SDA core.GPIOPin
	SCL core.GPIOPin
	FA1 core.GPIOPin

	Speed physic.Frequency

	// WriteDelay is slept after every byte of a block write
	WriteDelay time.Duration

	// PageDelay is slept after every page of a block read
	PageDelay time.Duration
}

// DefaultConfig returns the compiled-in configuration
func DefaultConfig() Config {
	return Config{
		SDA:        DefaultSDA,
		SCL:        DefaultSCL,
		FA1:        DefaultFA1,
		Speed:      DefaultSpeed,
		WriteDelay: DefaultWriteDelay,
		PageDelay:  DefaultPageDelay,
	}
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Device
type Option func(*Device)

// WithLogger sets the logger used for per-byte write reports
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.log = logger
	}
}

// WithSleeper replaces the timer used for pulses and pacing
func WithSleeper(s Sleeper) Option {
	return func(d *Device) {
		d.sleep = s
	}
}

// Device is a handle on the VCT IC behind the engine
type Device struct {
	engine core.Engine
	cfg    Config
	log    *slog.Logger
	sleep  Sleeper

	// session whose release failed, retried by Close
	stale core.Session
}

// New initializes the pins and returns a Device.
// SDA, SCL and FA1 get pull-ups; SDA and SCL are left as inputs and FA1
// is an output.
func New(ctx context.Context, engine core.Engine, cfg Config, opts ...Option) (*Device, error) {
	if engine == nil {
		return nil, errors.New("vct: nil engine")
	}
	if cfg.Speed <= 0 {
		return nil, fmt.Errorf("vct: invalid bus speed %s", cfg.Speed)
	}

	d := &Device{
		engine: engine,
		cfg:    cfg,
		log:    slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, pin := range []core.GPIOPin{cfg.FA1, cfg.SDA, cfg.SCL} {
		if err := engine.SetPull(ctx, pin, gpio.PullUp); err != nil {
			return nil, err
		}
	}
	if err := engine.SetMode(ctx, cfg.SDA, core.ModeInput); err != nil {
		return nil, err
	}
	if err := engine.SetMode(ctx, cfg.SCL, core.ModeInput); err != nil {
		return nil, err
	}
	if err := engine.SetMode(ctx, cfg.FA1, core.ModeOutput); err != nil {
		return nil, err
	}

	return d, nil
}

// Close stops the engine. A bus session that failed to close earlier is
// released first, ignoring errors.
func (d *Device) Close() error {
	if d.stale != nil {
		_ = d.stale.Close()
		d.stale = nil
	}
	return d.engine.Close()
}

// Config returns the current configuration
func (d *Device) Config() Config {
	return d.cfg
}

// SetSpeed changes the bus speed used by following transactions
func (d *Device) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("vct: invalid bus speed %s", f)
	}
	d.cfg.Speed = f
	return nil
}

func (d *Device) String() string {
	return fmt.Sprintf("vct49xl(%s, fa1=%d)", d.busConfig(), d.cfg.FA1)
}

func (d *Device) busConfig() core.BusConfig {
	return core.BusConfig{SDA: d.cfg.SDA, SCL: d.cfg.SCL, Speed: d.cfg.Speed}
}

// transaction runs fn on a fresh bus session
func (d *Device) transaction(ctx context.Context, fn func(s core.Session) error) (err error) {
	s, err := d.engine.Open(ctx, d.busConfig())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			d.stale = s
			if err == nil {
				err = cerr
			}
		}
	}()

	return fn(s)
}

// run encodes and transfers a program
func run(ctx context.Context, s core.Session, p *protocol.Program) ([]byte, error) {
	list, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, list)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
