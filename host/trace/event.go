// Package trace records the traffic between the tool and the engine as a
// stream of CBOR events, and reads it back.
package trace

import (
	"fmt"
	"strings"
	"time"

	"vcti2c/protocol"
)

// Kind classifies an event
type Kind uint8

const (
	KindOpen Kind = iota
	KindTransfer
	KindClose
	KindMode
	KindPull
	KindWrite
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindTransfer:
		return "transfer"
	case KindClose:
		return "close"
	case KindMode:
		return "mode"
	case KindPull:
		return "pull"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Event is one engine call. CBOR encoding uses integer keys.
type Event struct {
	Time time.Time `cbor:"1,keyasint"`
	Kind Kind      `cbor:"2,keyasint"`

	// Pin operations
	Pin   uint32 `cbor:"3,keyasint,omitempty"`
	Value string `cbor:"4,keyasint,omitempty"`

	// Bus sessions
	SDA  uint32 `cbor:"5,keyasint,omitempty"`
	SCL  uint32 `cbor:"6,keyasint,omitempty"`
	Baud uint32 `cbor:"7,keyasint,omitempty"`

	Program []byte `cbor:"8,keyasint,omitempty"`
	Result  []byte `cbor:"9,keyasint,omitempty"`

	Error string `cbor:"10,keyasint,omitempty"`
}

func (e Event) String() string {
	var sb strings.Builder
	sb.WriteString(e.Time.Format("15:04:05.000000"))
	sb.WriteByte(' ')
	sb.WriteString(e.Kind.String())

	switch e.Kind {
	case KindOpen:
		fmt.Fprintf(&sb, " sda=%d scl=%d baud=%d", e.SDA, e.SCL, e.Baud)
	case KindClose:
		fmt.Fprintf(&sb, " sda=%d", e.SDA)
	case KindTransfer:
		fmt.Fprintf(&sb, " sda=%d [%s]", e.SDA, protocol.Disassemble(e.Program))
		if len(e.Result) > 0 {
			sb.WriteString(" ->")
			for _, b := range e.Result {
				fmt.Fprintf(&sb, " 0x%02X", b)
			}
		}
	case KindMode, KindPull, KindWrite:
		fmt.Fprintf(&sb, " gpio=%d %s", e.Pin, e.Value)
	}

	if e.Error != "" {
		sb.WriteString(" error: ")
		sb.WriteString(e.Error)
	}
	return sb.String()
}
