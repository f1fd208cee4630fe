package trace

import (
	"errors"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader reads trace events sequentially
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
}

// NewReader reads events from r
func NewReader(r io.Reader) *Reader {
	return &Reader{decoder: NewDecoder(r)}
}

// Open reads events from the file at path
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{closer: f, decoder: NewDecoder(f)}, nil
}

// Next returns the next event, or io.EOF at the end of the trace
func (r *Reader) Next() (Event, error) {
	var ev Event
	if err := r.decoder.Decode(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, err
	}
	return ev, nil
}

// Close closes the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
