package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// ErrInvalidArgument is matched by every parse failure in this file
var ErrInvalidArgument = errors.New("invalid argument")

// ArgumentError reports a command-line value that could not be used
type ArgumentError struct {
	Input  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("Invalid input (%s). %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("Invalid input (%s). Please use integer or hex string (e.g. 0x4d)", e.Input)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// ParseInt interprets s as hexadecimal when it starts with "0x" and as
// decimal otherwise.
func ParseInt(s string) (int64, error) {
	v := strings.TrimSpace(s)

	base := 10
	if strings.HasPrefix(v, "0x") {
		v = v[2:]
		base = 16
		// The sign belongs in front of the prefix, if anywhere
		if strings.HasPrefix(v, "-") || strings.HasPrefix(v, "+") {
			return 0, &ArgumentError{Input: s}
		}
	}

	n, err := strconv.ParseInt(v, base, 64)
	if err != nil {
		return 0, &ArgumentError{Input: s}
	}
	return n, nil
}

// ParseByte is ParseInt limited to 0x00..0xFF
func ParseByte(s string) (uint8, error) {
	n, err := ParseInt(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 0xFF {
		return 0, &ArgumentError{Input: s, Reason: "Value must be between 0x00 and 0xFF"}
	}
	return uint8(n), nil
}

// ParseLevel accepts 0 or 1
func ParseLevel(s string) (gpio.Level, error) {
	n, err := ParseInt(s)
	if err != nil {
		return gpio.Low, err
	}
	switch n {
	case 0:
		return gpio.Low, nil
	case 1:
		return gpio.High, nil
	}
	return gpio.Low, &ArgumentError{Input: s, Reason: "Level must be 0 or 1"}
}

// ParseDelay parses a non-negative number of seconds, e.g. "0.1"
func ParseDelay(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ArgumentError{Input: s, Reason: "Delay must be a non-negative number of seconds"}
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}
