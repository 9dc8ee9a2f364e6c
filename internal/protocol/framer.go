package protocol

import (
	"bytes"
	"errors"
	"io"
	"iter"
)

// DefaultMaxFrameSize bounds the bytes a Framer buffers while waiting for a
// newline.
const DefaultMaxFrameSize = 4096

const readChunkSize = 4096

// ErrFrameTooLong is returned when a peer sends more than the maximum frame
// size without a newline.
var ErrFrameTooLong = errors.New("protocol: frame exceeds maximum size")

// Framer accumulates stream chunks and yields complete newline-delimited
// frames. Bytes after the last newline stay buffered until a later chunk
// completes them.
type Framer struct {
	buf     []byte
	off     int
	maxSize int
}

// NewFramer creates a Framer that rejects undelimited runs longer than
// maxSize bytes. A non-positive maxSize selects DefaultMaxFrameSize.
func NewFramer(maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framer{maxSize: maxSize}
}

// Feed appends chunk to the pending buffer.
func (f *Framer) Feed(chunk []byte) error {
	if f.off > 0 {
		n := copy(f.buf, f.buf[f.off:])
		f.buf = f.buf[:n]
		f.off = 0
	}
	f.buf = append(f.buf, chunk...)

	tail := len(f.buf)
	if i := bytes.LastIndexByte(f.buf, '\n'); i >= 0 {
		tail = len(f.buf) - i - 1
	}
	if tail > f.maxSize {
		return ErrFrameTooLong
	}
	return nil
}

// Next returns the next complete frame without its terminator. The returned
// slice is owned by the caller.
func (f *Framer) Next() ([]byte, bool) {
	pending := f.buf[f.off:]
	i := bytes.IndexByte(pending, '\n')
	if i < 0 {
		return nil, false
	}
	frame := make([]byte, i)
	copy(frame, pending[:i])
	f.off += i + 1
	return frame, true
}

// Frames yields every frame that is complete right now. Ranging again after
// another Feed continues where the previous range stopped.
func (f *Framer) Frames() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			frame, ok := f.Next()
			if !ok || !yield(frame) {
				return
			}
		}
	}
}

// Buffered reports how many undelivered bytes the Framer holds.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.off
}

// Reader reads frames from a stream through a Framer.
type Reader struct {
	r      io.Reader
	framer *Framer
	chunk  []byte
}

// NewReader wraps r. maxSize is passed to NewFramer.
func NewReader(r io.Reader, maxSize int) *Reader {
	return &Reader{
		r:      r,
		framer: NewFramer(maxSize),
		chunk:  make([]byte, readChunkSize),
	}
}

// ReadFrame blocks until a complete frame is available. At stream end it
// returns io.EOF and drops any partial trailing line.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		if frame, ok := r.framer.Next(); ok {
			return frame, nil
		}
		n, err := r.r.Read(r.chunk)
		if n > 0 {
			if ferr := r.framer.Feed(r.chunk[:n]); ferr != nil {
				return nil, ferr
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		// A zero-length read without an error is treated as a closed peer.
		return nil, io.EOF
	}
}
