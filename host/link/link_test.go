package link

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("PIGPIO_ADDR", "")
	t.Setenv("PIGPIO_PORT", "")

	cfg := DefaultConfig()
	assert.Equal(t, NetworkTCP, cfg.Network)
	assert.Equal(t, "localhost:8888", cfg.Address)
}

func TestDefaultConfigFromEnvironment(t *testing.T) {
	t.Setenv("PIGPIO_ADDR", "raspberrypi.local")
	t.Setenv("PIGPIO_PORT", "9999")

	cfg := DefaultConfig()
	assert.Equal(t, "raspberrypi.local:9999", cfg.Address)
}

func TestParseEndpoint(t *testing.T) {
	t.Setenv("PIGPIO_ADDR", "")
	t.Setenv("PIGPIO_PORT", "")

	tests := []struct {
		in      string
		network string
		address string
		baud    int
	}{
		{"", NetworkTCP, "localhost:8888", 0},
		{"pi", NetworkTCP, "pi:8888", 0},
		{"pi:7777", NetworkTCP, "pi:7777", 0},
		{"10.0.0.5", NetworkTCP, "10.0.0.5:8888", 0},
		{"tcp://pi", NetworkTCP, "pi:8888", 0},
		{"tcp://pi:1234", NetworkTCP, "pi:1234", 0},
		{"serial:///dev/ttyUSB0", NetworkSerial, "/dev/ttyUSB0", DefaultBaud},
		{"serial:///dev/ttyAMA0?baud=230400", NetworkSerial, "/dev/ttyAMA0", 230400},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg, err := ParseEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.network, cfg.Network)
			assert.Equal(t, tt.address, cfg.Address)
			assert.Equal(t, tt.baud, cfg.Baud)
		})
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	for _, in := range []string{
		"udp://pi:8888",
		"tcp://",
		"serial://",
		"serial:///dev/ttyUSB0?baud=fast",
		"serial:///dev/ttyUSB0?baud=-1",
	} {
		_, err := ParseEndpoint(in)
		assert.Error(t, err, in)
	}
}

func TestConfigString(t *testing.T) {
	assert.Equal(t, "tcp://pi:8888", (&Config{Network: NetworkTCP, Address: "pi:8888"}).String())
	assert.Equal(t, "serial:///dev/ttyUSB0?baud=115200",
		(&Config{Network: NetworkSerial, Address: "/dev/ttyUSB0", Baud: 115200}).String())
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	port, err := Open(context.Background(), &Config{Network: NetworkTCP, Address: ln.Addr().String(), Timeout: time.Second})
	require.NoError(t, err)
	defer port.Close()

	server := <-accepted
	defer server.Close()

	_, err = port.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), &Config{Network: "carrier-pigeon"})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Open(ctx, &Config{Network: NetworkSerial, Address: "/dev/null"})
	assert.ErrorIs(t, err, context.Canceled)
}
