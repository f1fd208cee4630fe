package trace

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"periph.io/x/conn/v3/gpio"

	"vcti2c/core"
)

// Recorder wraps an engine and records every call it forwards.
// It is safe for concurrent use.
type Recorder struct {
	engine core.Engine

	mu      sync.Mutex
	encoder *cbor.Encoder
	out     io.Closer
	err     error

	now func() time.Time
}

var _ core.Engine = (*Recorder)(nil)

// NewRecorder records the calls made to engine into w
func NewRecorder(engine core.Engine, w io.Writer) *Recorder {
	return &Recorder{
		engine:  engine,
		encoder: NewEncoder(w),
		now:     time.Now,
	}
}

// NewFileRecorder appends the calls made to engine to the file at path.
// The file is closed with the recorder.
func NewFileRecorder(engine core.Engine, path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	r := NewRecorder(engine, f)
	r.out = f
	return r, nil
}

// Err returns the first encoding error. Recording stops after it.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(ev Event, err error) {
	ev.Time = r.now()
	if err != nil {
		ev.Error = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = r.encoder.Encode(ev)
}

func (r *Recorder) SetMode(ctx context.Context, pin core.GPIOPin, mode core.Mode) error {
	err := r.engine.SetMode(ctx, pin, mode)
	r.record(Event{Kind: KindMode, Pin: uint32(pin), Value: mode.String()}, err)
	return err
}

func (r *Recorder) SetPull(ctx context.Context, pin core.GPIOPin, pull gpio.Pull) error {
	err := r.engine.SetPull(ctx, pin, pull)
	r.record(Event{Kind: KindPull, Pin: uint32(pin), Value: pull.String()}, err)
	return err
}

func (r *Recorder) Write(ctx context.Context, pin core.GPIOPin, level gpio.Level) error {
	err := r.engine.Write(ctx, pin, level)
	r.record(Event{Kind: KindWrite, Pin: uint32(pin), Value: level.String()}, err)
	return err
}

func (r *Recorder) Open(ctx context.Context, cfg core.BusConfig) (core.Session, error) {
	s, err := r.engine.Open(ctx, cfg)
	r.record(Event{Kind: KindOpen, SDA: uint32(cfg.SDA), SCL: uint32(cfg.SCL), Baud: cfg.Baud()}, err)
	if err != nil {
		return nil, err
	}
	return &session{Session: s, recorder: r, sda: uint32(cfg.SDA)}, nil
}

// Close closes the engine, then the trace file if the recorder owns one
func (r *Recorder) Close() error {
	err := r.engine.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil {
		if cerr := r.out.Close(); err == nil {
			err = cerr
		}
		r.out = nil
	}
	return err
}

type session struct {
	core.Session
	recorder *Recorder
	sda      uint32
}

func (s *session) Transfer(ctx context.Context, program []byte) ([]byte, error) {
	data, err := s.Session.Transfer(ctx, program)
	s.recorder.record(Event{
		Kind:    KindTransfer,
		SDA:     s.sda,
		Program: append([]byte{}, program...),
		Result:  append([]byte{}, data...),
	}, err)
	return data, err
}

func (s *session) Close() error {
	err := s.Session.Close()
	s.recorder.record(Event{Kind: KindClose, SDA: s.sda}, err)
	return err
}
