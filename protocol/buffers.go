package protocol

import (
	"errors"
	"io"
)

// ErrBufferFull is returned by StreamBuffer.Fill when no space is left
var ErrBufferFull = errors.New("stream buffer full")

// InputBuffer is a window over received bytes
type InputBuffer interface {
	// Data returns the unread bytes
	Data() []byte

	// Available returns len(Data())
	Available() int

	// Pop drops n bytes from the front
	Pop(n int)
}

// OutputBuffer collects the bytes of outgoing frames
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)

	// CurPosition returns the number of bytes collected
	CurPosition() int
}

// SliceInputBuffer implements InputBuffer over a byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer creates a new SliceInputBuffer
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput implements OutputBuffer using a fixed-size scratch buffer.
// Writes past MessageMax are dropped and reported by Overflow.
type ScratchOutput struct {
	buf      [MessageMax]byte
	pos      int
	overflow bool
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

// Overflow reports whether any Output call was truncated
func (s *ScratchOutput) Overflow() bool {
	return s.overflow
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// StreamBuffer implements InputBuffer for bytes read from a stream.
// Frames split across reads stay buffered until they are complete.
type StreamBuffer struct {
	buf  []byte
	read int
	size int
}

// NewStreamBuffer creates a StreamBuffer holding at most capacity bytes
func NewStreamBuffer(capacity int) *StreamBuffer {
	return &StreamBuffer{buf: make([]byte, capacity)}
}

// Fill reads once from r into the free space. Consumed bytes are moved
// out of the way first.
func (b *StreamBuffer) Fill(r io.Reader) (int, error) {
	if b.read > 0 {
		b.size = copy(b.buf, b.buf[b.read:b.size])
		b.read = 0
	}
	if b.size == len(b.buf) {
		return 0, ErrBufferFull
	}

	n, err := r.Read(b.buf[b.size:])
	b.size += n
	return n, err
}

func (b *StreamBuffer) Data() []byte {
	return b.buf[b.read:b.size]
}

func (b *StreamBuffer) Available() int {
	return b.size - b.read
}

func (b *StreamBuffer) Pop(n int) {
	if n > b.Available() {
		n = b.Available()
	}
	b.read += n
}

// Reset drops everything buffered
func (b *StreamBuffer) Reset() {
	b.read = 0
	b.size = 0
}
