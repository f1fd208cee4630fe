package trace

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"vcti2c/core"
	"vcti2c/vct/vcttest"
)

var busConfig = core.BusConfig{SDA: 2, SCL: 3, Speed: 100 * physic.KiloHertz}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	engine := vcttest.NewEngine(t)
	engine.AddDevice(0x50).Registers[0x10] = 0x4D

	var buf bytes.Buffer
	rec := NewRecorder(engine, &buf)
	ts := time.Date(2024, 7, 26, 12, 0, 0, 123456789, time.UTC)
	rec.now = func() time.Time { return ts }

	ctx := context.Background()
	require.NoError(t, rec.SetPull(ctx, 17, gpio.PullUp))
	require.NoError(t, rec.Write(ctx, 17, gpio.High))

	s, err := rec.Open(ctx, busConfig)
	require.NoError(t, err)
	_, err = s.Transfer(ctx, []byte{4, 0x50, 2, 7, 1, 0x10, 3})
	require.NoError(t, err)
	data, err := s.Transfer(ctx, []byte{4, 0x50, 2, 6, 1, 3, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x4D}, data)
	require.NoError(t, s.Close())
	require.NoError(t, rec.Err())

	events := readAll(t, NewReader(&buf))
	require.Len(t, events, 6)

	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
		assert.True(t, ev.Time.Equal(ts))
	}
	assert.Equal(t, []Kind{KindPull, KindWrite, KindOpen, KindTransfer, KindTransfer, KindClose}, kinds)

	assert.Equal(t, uint32(17), events[0].Pin)
	assert.Equal(t, gpio.PullUp.String(), events[0].Value)
	assert.Equal(t, uint32(100000), events[2].Baud)
	assert.Equal(t, []byte{4, 0x50, 2, 6, 1, 3, 0}, events[4].Program)
	assert.Equal(t, []byte{0x4D}, events[4].Result)
	assert.Empty(t, events[3].Result)
}

func TestRecorderRecordsErrors(t *testing.T) {
	engine := vcttest.NewEngine(t)

	var buf bytes.Buffer
	rec := NewRecorder(engine, &buf)

	s, err := rec.Open(context.Background(), busConfig)
	require.NoError(t, err)
	_, err = s.Transfer(context.Background(), []byte{4, 0x60, 2, 6, 1, 3, 0})
	assert.ErrorIs(t, err, vcttest.ErrNoAck)
	require.NoError(t, s.Close())

	events := readAll(t, NewReader(&buf))
	require.Len(t, events, 3)
	assert.Contains(t, events[1].Error, "PI_I2C_WRITE_FAILED")
	assert.Contains(t, events[1].String(), "addr 0x60")
}

func TestFileRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vct.cbor")
	engine := vcttest.NewEngine(t)

	rec, err := NewFileRecorder(engine, path)
	require.NoError(t, err)
	require.NoError(t, rec.SetMode(context.Background(), 3, core.ModeInput))
	require.NoError(t, rec.Close())
	assert.True(t, engine.IsClosed())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	events := readAll(t, r)
	require.Len(t, events, 1)
	assert.Equal(t, KindMode, events[0].Kind)
	assert.Equal(t, "input", events[0].Value)
}

func TestEventString(t *testing.T) {
	ts := time.Date(2024, 7, 26, 12, 30, 1, 500000000, time.UTC)

	testCases := []struct {
		event    Event
		expected string
	}{
		{
			Event{Time: ts, Kind: KindOpen, SDA: 2, SCL: 3, Baud: 100000},
			"12:30:01.500000 open sda=2 scl=3 baud=100000",
		},
		{
			Event{Time: ts, Kind: KindTransfer, SDA: 2, Program: []byte{4, 0x50, 2, 6, 1, 3, 0}, Result: []byte{0x4D}},
			"12:30:01.500000 transfer sda=2 [addr 0x50; start; read 1; stop; end] -> 0x4D",
		},
		{
			Event{Time: ts, Kind: KindWrite, Pin: 17, Value: "High"},
			"12:30:01.500000 write gpio=17 High",
		},
		{
			Event{Time: ts, Kind: KindClose, SDA: 2, Error: "boom"},
			"12:30:01.500000 close sda=2 error: boom",
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.event.String())
	}
}
