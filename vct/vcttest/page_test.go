package vcttest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"vcti2c/core"
	"vcti2c/protocol"
)

func TestPageTx(t *testing.T) {
	p := NewPage(t, 0x50)
	assert.Equal(t, uint8(0x50), p.Addr())

	require.NoError(t, p.Tx([]byte{0xFE, 1, 2, 3}, nil))
	assert.Equal(t, uint8(1), p.Registers[0xFE])
	assert.Equal(t, uint8(2), p.Registers[0xFF])
	assert.Equal(t, uint8(3), p.Registers[0x00])

	r := make([]byte, 3)
	require.NoError(t, p.Tx([]byte{0xFE}, r))
	assert.Equal(t, []byte{1, 2, 3}, r)

	assert.Error(t, p.Tx(nil, r))

	p.Err = errors.New("busy")
	assert.ErrorIs(t, p.Tx([]byte{0}, r), p.Err)
}

func TestEngineFullPage(t *testing.T) {
	engine := NewEngine(t)
	dev := engine.AddDevice(0x50)
	assert.Same(t, dev, engine.Page(0x50))
	assert.Nil(t, engine.Page(0x51))

	ctx := context.Background()
	s, err := engine.Open(ctx, core.BusConfig{SDA: 2, SCL: 3, Speed: 100 * physic.KiloHertz})
	require.NoError(t, err)
	defer s.Close()

	image := make([]byte, PageSize)
	for i := range image {
		image[i] = byte(i) ^ 0x5A
	}
	write, err := protocol.NewProgram().Address(0x50).Start().Write(append([]byte{0x00}, image...)...).Stop().End().Encode()
	require.NoError(t, err)
	_, err = s.Transfer(ctx, write)
	require.NoError(t, err)
	assert.Equal(t, image, dev.Registers[:])

	read, err := protocol.NewProgram().Address(0x50).Start().Write(0x00).Start().Read(PageSize).Stop().End().Encode()
	require.NoError(t, err)
	data, err := s.Transfer(ctx, read)
	require.NoError(t, err)
	assert.Equal(t, image, data)
}
