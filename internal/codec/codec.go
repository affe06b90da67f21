// Package codec implements the optional compression layer (spec §4.6):
// DEFLATE pipes bytes through a compressor on write and a decompressor on
// read; NONE is a passthrough. The teacher carries no compression code of
// its own, so this package is enrichment from the wider retrieval pack —
// klauspost/compress rides in (indirect, via containerd) across the pack's
// infra-flavored repos and is promoted here to a direct, exercised import.
package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/ostigter/xantippe/internal/xerr"
)

// Mode is a document or collection's compression setting (§3).
type Mode int

const (
	None Mode = iota
	Deflate
)

// Encode compresses src according to mode, returning the bytes to place in
// the file store and the logical (pre-compression) length. For None, the
// returned bytes are src itself.
func Encode(mode Mode, src []byte) (stored []byte, logicalLen int, err error) {
	switch mode {
	case None:
		return src, len(src), nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, 0, xerr.Wrap(xerr.Io, "create deflate writer", err)
		}
		if _, err := w.Write(src); err != nil {
			return nil, 0, xerr.Wrap(xerr.Io, "deflate write", err)
		}
		if err := w.Close(); err != nil {
			return nil, 0, xerr.Wrap(xerr.Io, "deflate close", err)
		}
		return buf.Bytes(), len(src), nil
	default:
		return nil, 0, xerr.New(xerr.InvalidArgument, "unknown compression mode")
	}
}

// Decode wraps r so that reads yield the original, decompressed bytes.
// For None, r is returned unchanged if it is an io.ReadCloser, and wrapped
// in a no-op closer otherwise.
func Decode(mode Mode, r io.Reader) (io.ReadCloser, error) {
	switch mode {
	case None:
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	case Deflate:
		fr := flate.NewReader(r)
		if closer, ok := r.(io.Closer); ok {
			return &deflateReadCloser{ReadCloser: fr, underlying: closer}, nil
		}
		return fr, nil
	default:
		return nil, xerr.New(xerr.InvalidArgument, "unknown compression mode")
	}
}

// deflateReadCloser closes both the flate reader and the underlying stream
// it was built from; flate.Reader.Close does not close its wrapped reader,
// so without this the file store's retrieve stream would never be released.
type deflateReadCloser struct {
	io.ReadCloser
	underlying io.Closer
}

func (d *deflateReadCloser) Close() error {
	err := d.ReadCloser.Close()
	if cerr := d.underlying.Close(); err == nil {
		err = cerr
	}
	return err
}
