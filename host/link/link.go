// Package link opens the byte stream that carries pigpio commands
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"vcti2c/protocol"
)

// Supported networks
const (
	NetworkTCP    = "tcp"
	NetworkSerial = "serial"
)

// DefaultBaud is used for serial links without an explicit rate
const DefaultBaud = 115200

// ErrTimeout is returned by links that signal a timeout with an empty read
var ErrTimeout = errors.New("link read timeout")

// Port represents a link to the engine daemon.
// This abstraction allows for different implementations:
// - TCP socket to pigpiod (the usual case)
// - Serial port bridged to pigpiod's socket (github.com/tarm/serial)
// - net.Pipe (for testing)
type Port interface {
	io.ReadWriteCloser
}

// Config holds link configuration
type Config struct {
	// Network is "tcp" or "serial"
	Network string

	// Address is host:port for tcp or the device path for serial
	Address string

	// Baud rate for serial links
	Baud int

	// Timeout for dialing and for serial reads
	Timeout time.Duration
}

// DefaultConfig returns the pigpio default endpoint, honouring the
// PIGPIO_ADDR and PIGPIO_PORT environment variables.
func DefaultConfig() *Config {
	host := os.Getenv("PIGPIO_ADDR")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("PIGPIO_PORT")
	if port == "" {
		port = strconv.Itoa(protocol.DefaultPort)
	}

	return &Config{
		Network: NetworkTCP,
		Address: net.JoinHostPort(host, port),
		Timeout: 5 * time.Second,
	}
}

// ParseEndpoint parses "host[:port]", "tcp://host[:port]" or
// "serial:///dev/ttyUSB0?baud=115200". An empty string yields DefaultConfig.
func ParseEndpoint(s string) (*Config, error) {
	cfg := DefaultConfig()
	if s == "" {
		return cfg, nil
	}

	if !strings.Contains(s, "://") {
		cfg.Address = withDefaultPort(s)
		return cfg, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}

	switch u.Scheme {
	case NetworkTCP:
		if u.Host == "" {
			return nil, fmt.Errorf("invalid endpoint %q: missing host", s)
		}
		cfg.Address = withDefaultPort(u.Host)

	case NetworkSerial:
		if u.Path == "" {
			return nil, fmt.Errorf("invalid endpoint %q: missing device path", s)
		}
		cfg.Network = NetworkSerial
		cfg.Address = u.Path
		cfg.Baud = DefaultBaud
		if b := u.Query().Get("baud"); b != "" {
			baud, err := strconv.Atoi(b)
			if err != nil || baud <= 0 {
				return nil, fmt.Errorf("invalid endpoint %q: bad baud rate %q", s, b)
			}
			cfg.Baud = baud
		}

	default:
		return nil, fmt.Errorf("invalid endpoint %q: unsupported scheme %q", s, u.Scheme)
	}

	return cfg, nil
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, strconv.Itoa(protocol.DefaultPort))
}

func (c *Config) String() string {
	if c.Network == NetworkSerial {
		return fmt.Sprintf("serial://%s?baud=%d", c.Address, c.Baud)
	}
	return c.Network + "://" + c.Address
}

// Open connects the link described by cfg
func Open(ctx context.Context, cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Network {
	case NetworkTCP, "":
		d := net.Dialer{Timeout: cfg.Timeout}
		conn, err := d.DialContext(ctx, NetworkTCP, cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
		}
		return conn, nil

	case NetworkSerial:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenSerial(cfg)
	}

	return nil, fmt.Errorf("unsupported network %q", cfg.Network)
}
