package vct

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcti2c/vct/vcttest"
)

func TestReadByte(t *testing.T) {
	d, engine := newTestDevice(t)
	engine.AddDevice(0x4D).Registers[0x10] = 0x36

	data, err := d.ReadByte(context.Background(), 0x4D, 0x10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x36}, data)

	assert.Equal(t, [][]byte{
		{4, 0x4D, 2, 7, 1, 0x10, 3},
		{4, 0x4D, 2, 6, 1, 3, 0},
	}, engine.Programs())
	assert.False(t, engine.IsOpen())
}

func TestWriteByte(t *testing.T) {
	d, engine := newTestDevice(t)
	dev := engine.AddDevice(0x4D)

	data, err := d.WriteByte(context.Background(), 0x4D, 0x10, 0x36)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, uint8(0x36), dev.Registers[0x10])

	assert.Equal(t, [][]byte{{4, 0x4D, 2, 7, 2, 0x10, 0x36, 3, 0}}, engine.Programs())
	assert.False(t, engine.IsOpen())
}

func TestReadWord(t *testing.T) {
	d, engine := newTestDevice(t)
	dev := engine.AddDevice(0x4D)
	dev.Registers[0x20] = 0x12
	dev.Registers[0x21] = 0x34

	data, err := d.ReadWord(context.Background(), 0x4D, 0x20)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, data)
	assert.Equal(t, []byte{4, 0x4D, 2, 6, 2, 3, 0}, engine.Programs()[1])
}

func TestWriteWord(t *testing.T) {
	d, engine := newTestDevice(t)
	dev := engine.AddDevice(0x4D)

	_, err := d.WriteWord(context.Background(), 0x4D, 0x20, 0xAB, 0xCD)
	require.NoError(t, err)

	// bytes go out as given
	assert.Equal(t, [][]byte{{4, 0x4D, 2, 7, 3, 0x20, 0xAB, 0xCD, 3, 0}}, engine.Programs())
	assert.Equal(t, uint8(0xAB), dev.Registers[0x20])
	assert.Equal(t, uint8(0xCD), dev.Registers[0x21])
}

func TestSessionReleasedOnError(t *testing.T) {
	d, engine := newTestDevice(t)

	_, err := d.ReadByte(context.Background(), 0x60, 0x00)
	assert.ErrorIs(t, err, vcttest.ErrNoAck)
	assert.False(t, engine.IsOpen())

	failure := errors.New("bus stuck")
	engine.FailTransfer = failure
	_, err = d.WriteByte(context.Background(), 0x50, 0x00, 0x01)
	assert.ErrorIs(t, err, failure)
	assert.False(t, engine.IsOpen())

	events := engine.Events()
	require.Len(t, events, 4)
	assert.Equal(t, vcttest.EventOpen, events[0].Kind)
	assert.Equal(t, vcttest.EventClose, events[1].Kind)
	assert.Equal(t, vcttest.EventOpen, events[2].Kind)
	assert.Equal(t, vcttest.EventClose, events[3].Kind)
}

func TestLastRegisterOfPage(t *testing.T) {
	d, engine := newTestDevice(t)
	ctx := context.Background()

	_, err := d.WriteByte(ctx, 0x50, 0xFF, 0xAB)
	require.NoError(t, err)

	data, err := d.ReadByte(ctx, 0x50, 0xFF)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, data)
	assert.Equal(t, uint8(0xAB), engine.Page(0x50).Registers[0xFF])
}

func TestDeviceError(t *testing.T) {
	d, engine := newTestDevice(t)
	failure := errors.New("device busy")
	engine.AddDevice(0x4D).Err = failure

	_, err := d.ReadByte(context.Background(), 0x4D, 0x00)
	assert.ErrorIs(t, err, failure)
}

func TestTransactionCancelled(t *testing.T) {
	d, engine := newTestDevice(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ReadByte(ctx, 0x50, 0x00)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, engine.IsOpen())
}
