package vct

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"vcti2c/core"
)

// Line names a GPIO that can be pulled manually
type Line uint8

const (
	LineFA1 Line = iota
	LineSCL
)

func (l Line) String() string {
	switch l {
	case LineFA1:
		return "FA1"
	case LineSCL:
		return "SCL"
	default:
		return fmt.Sprintf("Line(%d)", uint8(l))
	}
}

// Pull drives line to level. For FA1 a non-zero delay turns this into a
// pulse: the inverted level is written once the delay has passed. SCL is
// returned to input mode after the delay, even a zero one.
func (d *Device) Pull(ctx context.Context, line Line, level gpio.Level, delay time.Duration) error {
	switch line {
	case LineFA1:
		return d.PullFA1(ctx, level, delay)
	case LineSCL:
		return d.PullSCL(ctx, level, delay)
	default:
		return fmt.Errorf("vct: unknown line %s", line)
	}
}

// PullFA1 writes level to FA1, and its inverse after delay if delay > 0
func (d *Device) PullFA1(ctx context.Context, level gpio.Level, delay time.Duration) error {
	if err := d.engine.Write(ctx, d.cfg.FA1, level); err != nil {
		return err
	}
	if delay == 0 {
		return nil
	}

	if err := d.sleep(ctx, delay); err != nil {
		return err
	}
	return d.engine.Write(ctx, d.cfg.FA1, !level)
}

// PullSCL writes level to SCL, waits for delay then releases SCL
func (d *Device) PullSCL(ctx context.Context, level gpio.Level, delay time.Duration) error {
	if err := d.engine.Write(ctx, d.cfg.SCL, level); err != nil {
		return err
	}
	if err := d.sleep(ctx, delay); err != nil {
		return err
	}
	return d.engine.SetMode(ctx, d.cfg.SCL, core.ModeInput)
}
