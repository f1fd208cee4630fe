package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// serveOnce reads one command from conn and answers with resp and data
func serveOnce(t *testing.T, conn net.Conn, resp Response, data []byte) <-chan Command {
	t.Helper()
	got := make(chan Command, 1)
	go func() {
		var header [HeaderSize]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			close(got)
			return
		}
		frame := append([]byte{}, header[:]...)
		extLen := binary.LittleEndian.Uint32(header[HeaderPositionP3:])
		if extLen > 0 {
			ext := make([]byte, extLen)
			if _, err := io.ReadFull(conn, ext); err != nil {
				close(got)
				return
			}
			frame = append(frame, ext...)
		}
		c, _ := DecodeCommand(NewSliceInputBuffer(frame))
		got <- c

		output := NewScratchOutput()
		EncodeResponse(output, resp)
		output.Output(data)
		_, _ = conn.Write(output.Result())
	}()
	return got
}

func TestHostTransportDataCommand(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	program := []byte{4, 0x50, 2, 6, 2, 3, 0}
	got := serveOnce(t, server, Response{Cmd: CmdBI2CZ, P1: 2, Result: 2}, []byte{0x12, 0x34})

	resp, data, err := tr.Do(context.Background(), Command{Cmd: CmdBI2CZ, P1: 2, Ext: program})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.Result != 2 {
		t.Errorf("Expected result 2, got %d", resp.Result)
	}
	if !bytes.Equal(data, []byte{0x12, 0x34}) {
		t.Errorf("Expected data [0x12 0x34], got %v", data)
	}

	c := <-got
	if c.Cmd != CmdBI2CZ || c.P1 != 2 || !bytes.Equal(c.Ext, program) {
		t.Errorf("Server received unexpected command %+v", c)
	}
}

func TestHostTransportPlainCommand(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	serveOnce(t, server, Response{Cmd: CmdWrite, P1: 17, P2: 1, Result: 0}, nil)

	_, data, err := tr.Do(context.Background(), Command{Cmd: CmdWrite, P1: 17, P2: 1})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if data != nil {
		t.Errorf("Plain command returned data %v", data)
	}
}

func TestHostTransportErrorResult(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	serveOnce(t, server, Response{Cmd: CmdBI2CZ, Result: -82}, nil)

	_, _, err := tr.Do(context.Background(), Command{Cmd: CmdBI2CZ, Ext: []byte{0}})
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != -82 {
		t.Errorf("Expected pigpio error -82, got %v", err)
	}
}

func TestHostTransportMismatchedCommand(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	serveOnce(t, server, Response{Cmd: CmdModes}, nil)

	_, _, err := tr.Do(context.Background(), Command{Cmd: CmdPUD, P1: 2, P2: PudUp})
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("Expected ErrBadResponse, got %v", err)
	}
}

func TestHostTransportOversizedData(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	serveOnce(t, server, Response{Cmd: CmdBI2CZ, Result: 1 << 30}, nil)

	_, data, err := tr.Do(context.Background(), Command{Cmd: CmdBI2CZ, P1: 2, Ext: []byte{0}})
	if !errors.Is(err, ErrBadResponse) {
		t.Errorf("Expected ErrBadResponse, got %v", err)
	}
	if data != nil {
		t.Errorf("Expected no data, got %d bytes", len(data))
	}
}

func TestHostTransportContextCancel(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()

	// Swallow the request and never answer
	go func() {
		_, _ = io.Copy(io.Discard, server)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, _, err := tr.Do(ctx, Command{Cmd: CmdWrite, P1: 17})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestHostTransportTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	defer tr.Close()
	tr.SetTimeout(50 * time.Millisecond)

	go func() {
		_, _ = io.Copy(io.Discard, server)
	}()

	_, _, err := tr.Do(context.Background(), Command{Cmd: CmdWrite, P1: 17})
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestHostTransportClosed(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewHostTransport(client)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _, err := tr.Do(context.Background(), Command{Cmd: CmdWrite}); err == nil {
		t.Error("Expected error after Close")
	}
}
