// Package protocol implements the pigpio daemon socket protocol
package protocol

// Command codes understood by pigpiod
const (
	CmdModes uint32 = 0  // set GPIO mode
	CmdPUD   uint32 = 2  // set pull-up/down
	CmdWrite uint32 = 4  // write GPIO level
	CmdBI2CC uint32 = 89 // close bit-bang I2C
	CmdBI2CO uint32 = 90 // open bit-bang I2C
	CmdBI2CZ uint32 = 91 // run bit-bang I2C program
)

// GPIO modes
const (
	ModeInput  uint32 = 0
	ModeOutput uint32 = 1
)

// Pull-up/down selectors
const (
	PudOff  uint32 = 0
	PudDown uint32 = 1
	PudUp   uint32 = 2
)

// Frame constants
const (
	MessageMax = 512 // Maximum frame size (header + extension)
	HeaderSize = 16  // cmd, p1, p2, p3 as little endian uint32

	// Offsets inside the header
	HeaderPositionCmd = 0
	HeaderPositionP1  = 4
	HeaderPositionP2  = 8
	HeaderPositionP3  = 12

	// DefaultPort is the TCP port pigpiod listens on
	DefaultPort = 8888
)

// returnsData reports whether a successful result is followed by that many
// bytes of payload.
func returnsData(cmd uint32) bool {
	return cmd == CmdBI2CZ
}
