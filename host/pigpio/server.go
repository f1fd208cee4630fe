package pigpio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"vcti2c/core"
	"vcti2c/protocol"
)

// Result codes sent for failures that carry no pigpio code of their own
const (
	resultFailed  int32 = -1
	resultBadGPIO int32 = -3
	resultBadMode int32 = -4
	resultBadPUD  int32 = -6
	resultInUse   int32 = -50
	resultBadBaud int32 = -112
	resultNotOpen int32 = -113 // no bit-bang bus open on the pin
)

const (
	maxGPIO = 53

	// bit-bang I2C baud limits
	minBaud = 50
	maxBaud = 500000
)

// Server answers pigpio socket commands with a core.Engine.
// Only the commands used by Client are served.
type Server struct {
	engine core.Engine
	log    *slog.Logger

	mu       sync.Mutex
	sessions map[core.GPIOPin]core.Session
}

// NewServer creates a server driving engine
func NewServer(engine core.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:   engine,
		log:      log,
		sessions: make(map[core.GPIOPin]core.Session),
	}
}

// Serve accepts connections until ctx is done or the listener fails
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ServeConn(ctx, conn); err != nil {
				s.log.Warn("connection closed", "remote", conn.RemoteAddr(), "error", err)
			}
		}()
	}
}

// ServeConn answers commands read from conn until it is closed.
// Buses opened by the connection are released when it ends.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	owned := make(map[core.GPIOPin]struct{})
	defer func() {
		for sda := range owned {
			s.release(sda)
		}
	}()

	output := protocol.NewScratchOutput()
	transport := protocol.NewTransport(output, func(c protocol.Command) (int32, []byte) {
		result, data := s.handle(ctx, c)
		if result >= 0 {
			switch c.Cmd {
			case protocol.CmdBI2CO:
				owned[core.GPIOPin(c.P1)] = struct{}{}
			case protocol.CmdBI2CC:
				delete(owned, core.GPIOPin(c.P1))
			}
		}
		return result, data
	})
	transport.SetFlushCallback(func() error {
		defer output.Reset()
		if output.Overflow() {
			return errors.New("response overflow")
		}
		_, err := conn.Write(output.Result())
		return err
	})

	input := protocol.NewStreamBuffer(2 * protocol.MessageMax)
	for {
		n, err := input.Fill(conn)
		if n > 0 {
			if rerr := transport.Receive(input); rerr != nil {
				return rerr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle runs one command against the engine
func (s *Server) handle(ctx context.Context, c protocol.Command) (int32, []byte) {
	switch c.Cmd {
	case protocol.CmdModes, protocol.CmdPUD, protocol.CmdWrite, protocol.CmdBI2CO:
		if c.P1 > maxGPIO {
			return resultBadGPIO, nil
		}
	}

	pin := core.GPIOPin(c.P1)
	switch c.Cmd {
	case protocol.CmdModes:
		var mode core.Mode
		switch c.P2 {
		case protocol.ModeInput:
			mode = core.ModeInput
		case protocol.ModeOutput:
			mode = core.ModeOutput
		default:
			return resultBadMode, nil
		}
		return s.result("set mode", s.engine.SetMode(ctx, pin, mode)), nil

	case protocol.CmdPUD:
		var pull gpio.Pull
		switch c.P2 {
		case protocol.PudOff:
			pull = gpio.Float
		case protocol.PudDown:
			pull = gpio.PullDown
		case protocol.PudUp:
			pull = gpio.PullUp
		default:
			return resultBadPUD, nil
		}
		return s.result("set pull", s.engine.SetPull(ctx, pin, pull)), nil

	case protocol.CmdWrite:
		level := gpio.Low
		if c.P2 != 0 {
			level = gpio.High
		}
		return s.result("write", s.engine.Write(ctx, pin, level)), nil

	case protocol.CmdBI2CO:
		if c.P2 > maxGPIO || c.P1 == c.P2 {
			return resultBadGPIO, nil
		}
		if len(c.Ext) != 4 {
			return resultBadBaud, nil
		}
		baud := binary.LittleEndian.Uint32(c.Ext)
		if baud < minBaud || baud > maxBaud {
			return resultBadBaud, nil
		}
		return s.open(ctx, core.BusConfig{
			SDA:   pin,
			SCL:   core.GPIOPin(c.P2),
			Speed: physic.Frequency(baud) * physic.Hertz,
		}), nil

	case protocol.CmdBI2CZ:
		session := s.session(pin)
		if session == nil {
			return resultNotOpen, nil
		}
		data, err := session.Transfer(ctx, c.Ext)
		if err != nil {
			return s.result("transfer", err), nil
		}
		if protocol.HeaderSize+len(data) > protocol.MessageMax {
			s.log.Warn("transfer answer too long", "sda", pin, "bytes", len(data))
			return resultFailed, nil
		}
		return 0, data

	case protocol.CmdBI2CC:
		if !s.release(pin) {
			return resultNotOpen, nil
		}
		return 0, nil
	}

	s.log.Debug("unknown command", "cmd", c.Cmd)
	return protocol.ResultUnknownCommand, nil
}

func (s *Server) open(ctx context.Context, cfg core.BusConfig) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[cfg.SDA]; ok {
		return resultInUse
	}
	session, err := s.engine.Open(ctx, cfg)
	if err != nil {
		return s.result("open", err)
	}
	s.sessions[cfg.SDA] = session
	s.log.Debug("bus opened", "bus", cfg)
	return 0
}

func (s *Server) session(sda core.GPIOPin) core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sda]
}

// release closes the bus opened on sda and reports whether there was one
func (s *Server) release(sda core.GPIOPin) bool {
	s.mu.Lock()
	session, ok := s.sessions[sda]
	delete(s.sessions, sda)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if err := session.Close(); err != nil {
		s.log.Warn("failed to close bus", "sda", sda, "error", err)
	}
	return true
}

// result maps an engine error to a pigpio result code
func (s *Server) result(op string, err error) int32 {
	if err == nil {
		return 0
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	s.log.Debug("engine error", "op", op, "error", err)
	return resultFailed
}
