package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ResultUnknownCommand is returned for commands the daemon does not serve
const ResultUnknownCommand int32 = -88

// CommandHandler serves one command. It returns the result and, for data
// returning commands, the data that follows the response.
type CommandHandler func(c Command) (int32, []byte)

// Transport handles the daemon side of the socket protocol: it decodes
// the commands buffered in an InputBuffer and answers each one in order.
type Transport struct {
	output        OutputBuffer
	handler       CommandHandler
	flushCallback func() error
}

// NewTransport creates a new daemon-side Transport
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		output:  output,
		handler: handler,
	}
}

// SetFlushCallback sets a callback run after every response.
// The client waits for each response before sending the next command.
func (t *Transport) SetFlushCallback(callback func() error) {
	t.flushCallback = callback
}

// Receive answers every complete command in input. A partial command is
// left in input until the rest arrives.
func (t *Transport) Receive(input InputBuffer) error {
	for {
		data := input.Data()
		if len(data) >= HeaderSize {
			extLen := int(binary.LittleEndian.Uint32(data[HeaderPositionP3:]))
			if HeaderSize+extLen > MessageMax {
				return fmt.Errorf("%w: command %d with %d extension bytes", ErrMessageTooLong,
					binary.LittleEndian.Uint32(data[HeaderPositionCmd:]), extLen)
			}
		}

		c, err := DecodeCommand(input)
		if errors.Is(err, ErrShortFrame) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.respond(c); err != nil {
			return err
		}
	}
}

// respond encodes the answer to c and flushes it
func (t *Transport) respond(c Command) error {
	result := ResultUnknownCommand
	var data []byte
	if t.handler != nil {
		result, data = t.handler(c)
	}

	if returnsData(c.Cmd) && result >= 0 {
		result = int32(len(data))
	} else {
		data = nil
	}

	EncodeResponse(t.output, Response{Cmd: c.Cmd, P1: c.P1, P2: c.P2, Result: result})
	if len(data) > 0 {
		t.output.Output(data)
	}

	if t.flushCallback != nil {
		return t.flushCallback()
	}
	return nil
}
