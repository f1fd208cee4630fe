package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// echoHandler answers BI2CZ with the reversed extension and everything
// else with the first parameter
func echoHandler(c Command) (int32, []byte) {
	switch c.Cmd {
	case CmdBI2CZ:
		data := make([]byte, len(c.Ext))
		for i, b := range c.Ext {
			data[len(data)-1-i] = b
		}
		return 0, data
	case CmdWrite:
		return int32(c.P1), []byte{0xFF}
	case CmdPUD:
		return -2, nil
	}
	return ResultUnknownCommand, nil
}

func encodeCommands(t *testing.T, commands ...Command) []byte {
	t.Helper()
	var frames []byte
	for _, c := range commands {
		output := NewScratchOutput()
		if err := EncodeCommand(output, c); err != nil {
			t.Fatalf("EncodeCommand failed: %v", err)
		}
		frames = append(frames, output.Result()...)
	}
	return frames
}

func TestTransportReceive(t *testing.T) {
	output := NewScratchOutput()
	tr := NewTransport(output, echoHandler)

	var flushed [][]byte
	tr.SetFlushCallback(func() error {
		flushed = append(flushed, append([]byte{}, output.Result()...))
		output.Reset()
		return nil
	})

	input := NewSliceInputBuffer(encodeCommands(t,
		Command{Cmd: CmdWrite, P1: 17, P2: 1},
		Command{Cmd: CmdBI2CZ, P1: 2, Ext: []byte{1, 2, 3}},
	))
	if err := tr.Receive(input); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if input.Available() != 0 {
		t.Errorf("Receive left %d bytes", input.Available())
	}
	if len(flushed) != 2 {
		t.Fatalf("Expected 2 responses, got %d", len(flushed))
	}

	// Plain commands never carry data
	resp, err := DecodeResponse(NewSliceInputBuffer(flushed[0]))
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.Cmd != CmdWrite || resp.P1 != 17 || resp.P2 != 1 || resp.Result != 17 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if len(flushed[0]) != HeaderSize {
		t.Errorf("Plain response should be %d bytes, got %d", HeaderSize, len(flushed[0]))
	}

	// Data commands report the payload length as result
	in := NewSliceInputBuffer(flushed[1])
	resp, _ = DecodeResponse(in)
	if resp.Cmd != CmdBI2CZ || resp.Result != 3 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if !bytes.Equal(in.Data(), []byte{3, 2, 1}) {
		t.Errorf("Expected payload [3 2 1], got %v", in.Data())
	}
}

func TestTransportPartialFrame(t *testing.T) {
	output := NewScratchOutput()
	tr := NewTransport(output, echoHandler)

	frame := encodeCommands(t, Command{Cmd: CmdBI2CZ, P1: 2, Ext: []byte{4, 0x50, 0}})
	input := NewSliceInputBuffer(frame[:HeaderSize+1])
	if err := tr.Receive(input); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if input.Available() != HeaderSize+1 {
		t.Errorf("Partial frame should stay buffered, %d bytes left", input.Available())
	}
	if output.CurPosition() != 0 {
		t.Errorf("No response expected for a partial frame, got %d bytes", output.CurPosition())
	}

	input = NewSliceInputBuffer(frame)
	if err := tr.Receive(input); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if output.CurPosition() != HeaderSize+3 {
		t.Errorf("Expected a %d byte response, got %d", HeaderSize+3, output.CurPosition())
	}
}

func TestTransportErrorResult(t *testing.T) {
	output := NewScratchOutput()
	tr := NewTransport(output, func(c Command) (int32, []byte) {
		return -82, []byte{1, 2}
	})

	if err := tr.Receive(NewSliceInputBuffer(encodeCommands(t, Command{Cmd: CmdBI2CZ, Ext: []byte{0}}))); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}

	// Data is dropped together with a failed result
	resp, _ := DecodeResponse(NewSliceInputBuffer(output.Result()))
	if resp.Result != -82 || output.CurPosition() != HeaderSize {
		t.Errorf("Unexpected response %+v (%d bytes)", resp, output.CurPosition())
	}
}

func TestTransportUnknownCommand(t *testing.T) {
	output := NewScratchOutput()
	tr := NewTransport(output, nil)

	if err := tr.Receive(NewSliceInputBuffer(encodeCommands(t, Command{Cmd: 99}))); err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	resp, _ := DecodeResponse(NewSliceInputBuffer(output.Result()))
	if resp.Result != ResultUnknownCommand {
		t.Errorf("Expected %d, got %d", ResultUnknownCommand, resp.Result)
	}
}

func TestTransportOversizedCommand(t *testing.T) {
	tr := NewTransport(NewScratchOutput(), echoHandler)

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint32(header[HeaderPositionCmd:], CmdBI2CZ)
	binary.LittleEndian.PutUint32(header[HeaderPositionP3:], MessageMax)

	err := tr.Receive(NewSliceInputBuffer(header[:]))
	if !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
}

func TestTransportFlushError(t *testing.T) {
	tr := NewTransport(NewScratchOutput(), echoHandler)
	flushErr := errors.New("link down")
	tr.SetFlushCallback(func() error { return flushErr })

	err := tr.Receive(NewSliceInputBuffer(encodeCommands(t, Command{Cmd: CmdWrite, P1: 3})))
	if !errors.Is(err, flushErr) {
		t.Errorf("Expected flush error, got %v", err)
	}
}
