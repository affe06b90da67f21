package filestore

import (
	"io"
	"os"

	"github.com/ostigter/xantippe/internal/xerr"
)

// Stream is an independent, positional view over a byte range of the shared
// content file (§4.1 "Retrieve stream"). Each Stream owns its own *os.File
// handle and cursor; concurrent Streams over the same content file never
// observe each other's position (§5).
//
// Mark/reset are unsupported (§7 InvalidArgument).
type Stream struct {
	f      *os.File
	base   int64 // offset of the entry within the content file
	length int64 // total bytes this stream exposes
	pos    int64 // cursor relative to base
}

func newStream(f *os.File, base, length int64) *Stream {
	return &Stream{f: f, base: base, length: length}
}

// Available returns the number of bytes remaining before EOF.
func (s *Stream) Available() int64 {
	return s.length - s.pos
}

// ReadByte reads a single byte, returning (-1, nil) at EOF per the spec's
// read() contract (no error, sentinel value).
func (s *Stream) ReadByte() (int, error) {
	if s.Available() <= 0 {
		return -1, nil
	}
	var buf [1]byte
	n, err := s.f.ReadAt(buf[:], s.base+s.pos)
	if n == 1 {
		s.pos++
		return int(buf[0]), nil
	}
	return -1, err
}

// Read fills p, bounded by the remaining bytes in the entry. It returns
// (0, nil) for a zero-length p without advancing the position, and
// (-1-as-io.EOF, nil) semantics are expressed as (0, io.EOF) once the
// stream is exhausted and len(p) > 0, matching Go's io.Reader convention.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	remaining := s.Available()
	if remaining <= 0 {
		return 0, io.EOF
	}
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}
	n, err := s.f.ReadAt(p[:want], s.base+s.pos)
	s.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, xerr.Wrap(xerr.StoreIo, "retrieve stream read", err)
	}
	return n, nil
}

// Skip advances the cursor by n bytes (clamped to the entry's length) and
// returns the actual number of bytes skipped.
func (s *Stream) Skip(n int64) int64 {
	if n < 0 {
		n = 0
	}
	remaining := s.Available()
	if n > remaining {
		n = remaining
	}
	s.pos += n
	return n
}

// Close releases the stream's file handle. The caller must close every
// retrieve stream before the store is shut down (§3 "Ownership").
func (s *Stream) Close() error {
	return s.f.Close()
}
