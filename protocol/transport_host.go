package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// DefaultTimeout bounds a single command round trip
const DefaultTimeout = 2 * time.Second

// deadliner is implemented by links that support I/O deadlines (net.Conn)
type deadliner interface {
	SetDeadline(t time.Time) error
}

// HostTransport handles the pigpio socket protocol from the client side.
// pigpiod answers every command before reading the next one, so the
// transport is strictly request/response.
type HostTransport struct {
	// Link to the daemon
	port io.ReadWriteCloser

	// Timeout applied to each round trip when the link supports deadlines
	timeout time.Duration

	// Reused for every request
	output *ScratchOutput

	// Serializes round trips
	mu     sync.Mutex
	closed bool
}

// NewHostTransport creates a new client-side transport
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	return &HostTransport{
		port:    port,
		timeout: DefaultTimeout,
		output:  NewScratchOutput(),
	}
}

// SetTimeout changes the per-command timeout; zero disables it
func (t *HostTransport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// Do sends a command and waits for its response. For data returning
// commands the payload is returned as well. A negative result is returned
// as a *Error together with the response.
func (t *HostTransport) Do(ctx context.Context, c Command) (Response, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Response{}, nil, errors.New("transport closed")
	}
	if err := ctx.Err(); err != nil {
		return Response{}, nil, err
	}

	if d, ok := t.port.(deadliner); ok {
		deadline := time.Time{}
		if t.timeout > 0 {
			deadline = time.Now().Add(t.timeout)
		}
		if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
			deadline = ctxDeadline
		}
		if err := d.SetDeadline(deadline); err != nil {
			return Response{}, nil, fmt.Errorf("failed to set deadline: %w", err)
		}
		// Unblock pending I/O when the context is cancelled
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	resp, data, err := t.roundTrip(c)
	if err != nil && ctx.Err() != nil {
		return resp, nil, ctx.Err()
	}
	return resp, data, err
}

func (t *HostTransport) roundTrip(c Command) (Response, []byte, error) {
	t.output.Reset()
	if err := EncodeCommand(t.output, c); err != nil {
		return Response{}, nil, fmt.Errorf("failed to build command: %w", err)
	}

	if err := t.writeMessage(t.output.Result()); err != nil {
		return Response{}, nil, fmt.Errorf("failed to write command %d: %w", c.Cmd, err)
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(t.port, header[:]); err != nil {
		return Response{}, nil, fmt.Errorf("failed to read response to command %d: %w", c.Cmd, err)
	}

	resp, err := DecodeResponse(NewSliceInputBuffer(header[:]))
	if err != nil {
		return Response{}, nil, err
	}
	if resp.Cmd != c.Cmd {
		return resp, nil, fmt.Errorf("%w: command %d answered as %d", ErrBadResponse, c.Cmd, resp.Cmd)
	}
	if err := resp.Err(); err != nil {
		return resp, nil, err
	}

	if !returnsData(c.Cmd) || resp.Result == 0 {
		return resp, nil, nil
	}

	if resp.Result > MessageMax-HeaderSize {
		return resp, nil, fmt.Errorf("%w: %d data bytes for command %d", ErrBadResponse, resp.Result, c.Cmd)
	}
	data := make([]byte, resp.Result)
	if _, err := io.ReadFull(t.port, data); err != nil {
		return resp, nil, fmt.Errorf("failed to read %d data bytes: %w", resp.Result, err)
	}
	return resp, data, nil
}

// writeMessage sends a frame to the link
func (t *HostTransport) writeMessage(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// Close closes the link. Further calls to Do fail.
func (t *HostTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		return t.port.Close()
	}
	return nil
}
