package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is a single request to pigpiod.
// P3 is not stored: it always carries the extension length.
type Command struct {
	Cmd uint32
	P1  uint32
	P2  uint32
	Ext []byte
}

// Response is the fixed 16-byte answer to a Command
type Response struct {
	Cmd    uint32
	P1     uint32
	P2     uint32
	Result int32
}

// Err returns the pigpio error carried by a negative result, or nil
func (r Response) Err() error {
	if r.Result < 0 {
		return NewError(r.Result)
	}
	return nil
}

// EncodeCommand writes the command header and extension to output
func EncodeCommand(output OutputBuffer, c Command) error {
	if HeaderSize+len(c.Ext) > MessageMax {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, HeaderSize+len(c.Ext), MessageMax)
	}

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[HeaderPositionCmd:], c.Cmd)
	binary.LittleEndian.PutUint32(header[HeaderPositionP1:], c.P1)
	binary.LittleEndian.PutUint32(header[HeaderPositionP2:], c.P2)
	binary.LittleEndian.PutUint32(header[HeaderPositionP3:], uint32(len(c.Ext)))

	output.Output(header[:])
	if len(c.Ext) > 0 {
		output.Output(c.Ext)
	}
	return nil
}

// DecodeCommand parses a command frame, the inverse of EncodeCommand.
// The input is advanced past the consumed bytes.
func DecodeCommand(input InputBuffer) (Command, error) {
	data := input.Data()
	if len(data) < HeaderSize {
		return Command{}, ErrShortFrame
	}

	c := Command{
		Cmd: binary.LittleEndian.Uint32(data[HeaderPositionCmd:]),
		P1:  binary.LittleEndian.Uint32(data[HeaderPositionP1:]),
		P2:  binary.LittleEndian.Uint32(data[HeaderPositionP2:]),
	}
	extLen := int(binary.LittleEndian.Uint32(data[HeaderPositionP3:]))
	if len(data) < HeaderSize+extLen {
		return Command{}, ErrShortFrame
	}
	if extLen > 0 {
		c.Ext = make([]byte, extLen)
		copy(c.Ext, data[HeaderSize:HeaderSize+extLen])
	}

	input.Pop(HeaderSize + extLen)
	return c, nil
}

// EncodeResponse writes a response header to output
func EncodeResponse(output OutputBuffer, r Response) {
	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[HeaderPositionCmd:], r.Cmd)
	binary.LittleEndian.PutUint32(header[HeaderPositionP1:], r.P1)
	binary.LittleEndian.PutUint32(header[HeaderPositionP2:], r.P2)
	binary.LittleEndian.PutUint32(header[HeaderPositionP3:], uint32(r.Result))
	output.Output(header[:])
}

// DecodeResponse parses a response header and advances the input
func DecodeResponse(input InputBuffer) (Response, error) {
	data := input.Data()
	if len(data) < HeaderSize {
		return Response{}, ErrShortFrame
	}

	r := Response{
		Cmd:    binary.LittleEndian.Uint32(data[HeaderPositionCmd:]),
		P1:     binary.LittleEndian.Uint32(data[HeaderPositionP1:]),
		P2:     binary.LittleEndian.Uint32(data[HeaderPositionP2:]),
		Result: int32(binary.LittleEndian.Uint32(data[HeaderPositionP3:])),
	}

	input.Pop(HeaderSize)
	return r, nil
}
