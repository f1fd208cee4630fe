package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMessageTooLong = errors.New("message too long")
	ErrShortFrame     = errors.New("short frame")
	ErrBadResponse    = errors.New("unexpected response")
	ErrBadProgram     = errors.New("malformed bit-bang program")
)

// Error is a negative result reported by pigpiod
type Error struct {
	Code int32
	Name string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("pigpio error %d", e.Code)
	}
	return fmt.Sprintf("pigpio error %d (%s)", e.Code, e.Name)
}

// errorNames covers the codes the bit-bang and GPIO commands can produce.
var errorNames = map[int32]string{
	-1:   "PI_INIT_FAILED",
	-2:   "PI_BAD_USER_GPIO",
	-3:   "PI_BAD_GPIO",
	-4:   "PI_BAD_MODE",
	-5:   "PI_BAD_LEVEL",
	-6:   "PI_BAD_PUD",
	-41:  "PI_NOT_PERMITTED",
	-50:  "PI_GPIO_IN_USE",
	-82:  "PI_I2C_WRITE_FAILED",
	-83:  "PI_I2C_READ_FAILED",
	-88:  "PI_UNKNOWN_COMMAND",
	-112: "PI_BAD_I2C_BAUD",
	-113: "PI_NOT_I2C_GPIO",
}

// NewError maps a negative pigpio result to an *Error
func NewError(code int32) *Error {
	return &Error{Code: code, Name: errorNames[code]}
}
