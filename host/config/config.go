// Package config loads the tool configuration from YAML, .env files and
// the environment. Every field has a compiled-in default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"vcti2c/core"
	"vcti2c/host/link"
	"vcti2c/vct"
)

// Environment variables overriding the file
const (
	EnvEngine   = "VCT_ENGINE"
	EnvLogLevel = "VCT_LOG_LEVEL"
	EnvTrace    = "VCT_TRACE"
)

// Config is the on-disk configuration
type Config struct {
	// Engine endpoint, see link.ParseEndpoint. Empty uses PIGPIO_ADDR/PIGPIO_PORT.
	Engine  string        `yaml:"engine"`
	Timeout time.Duration `yaml:"timeout"`

	Pins  Pins   `yaml:"pins"`
	Speed string `yaml:"speed"`

	WriteDelay time.Duration `yaml:"write_delay"`
	PageDelay  time.Duration `yaml:"page_delay"`

	LogLevel  string `yaml:"log_level"`
	TraceFile string `yaml:"trace_file"`
}

// Pins assigns the GPIOs. GPIO 0 and 1 carry the HAT ID EEPROM, so zero
// selects the default.
type Pins struct {
	SDA uint32 `yaml:"sda"`
	SCL uint32 `yaml:"scl"`
	FA1 uint32 `yaml:"fa1"`
}

// Default returns the compiled-in configuration
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path. ${VAR} references are expanded from
// the environment before parsing. An empty path yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: load: %w", err)
		}
		if err := Parse([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown fields
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse: %w", err)
	}
	return nil
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEngine); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvTrace); v != "" {
		cfg.TraceFile = v
	}
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.Pins.SDA == 0 {
		cfg.Pins.SDA = uint32(vct.DefaultSDA)
	}
	if cfg.Pins.SCL == 0 {
		cfg.Pins.SCL = uint32(vct.DefaultSCL)
	}
	if cfg.Pins.FA1 == 0 {
		cfg.Pins.FA1 = uint32(vct.DefaultFA1)
	}

	if cfg.Speed == "" {
		cfg.Speed = vct.DefaultSpeed.String()
	}
	if cfg.WriteDelay == 0 {
		cfg.WriteDelay = vct.DefaultWriteDelay
	}
	if cfg.PageDelay == 0 {
		cfg.PageDelay = vct.DefaultPageDelay
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Pins.SDA == c.Pins.SCL || c.Pins.SDA == c.Pins.FA1 || c.Pins.SCL == c.Pins.FA1 {
		return fmt.Errorf("config: pins must be distinct (sda=%d scl=%d fa1=%d)", c.Pins.SDA, c.Pins.SCL, c.Pins.FA1)
	}
	if _, err := c.Frequency(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout %s", c.Timeout)
	}
	if c.WriteDelay < 0 || c.PageDelay < 0 {
		return fmt.Errorf("config: negative delay")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := link.ParseEndpoint(c.Engine); err != nil {
		return fmt.Errorf("config: engine: %w", err)
	}
	return nil
}

// Frequency parses the bus speed
func (c *Config) Frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(strings.TrimSpace(c.Speed)); err != nil {
		return 0, fmt.Errorf("config: speed %q: %w", c.Speed, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("config: speed %q must be positive", c.Speed)
	}
	return f, nil
}

// Level parses the log level
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// Device returns the driver configuration
func (c *Config) Device() (vct.Config, error) {
	f, err := c.Frequency()
	if err != nil {
		return vct.Config{}, err
	}
	return vct.Config{
		SDA:        core.GPIOPin(c.Pins.SDA),
		SCL:        core.GPIOPin(c.Pins.SCL),
		FA1:        core.GPIOPin(c.Pins.FA1),
		Speed:      f,
		WriteDelay: c.WriteDelay,
		PageDelay:  c.PageDelay,
	}, nil
}

// Link returns the engine endpoint
func (c *Config) Link() (*link.Config, error) {
	lc, err := link.ParseEndpoint(c.Engine)
	if err != nil {
		return nil, fmt.Errorf("config: engine: %w", err)
	}
	lc.Timeout = c.Timeout
	return lc, nil
}
