package codec

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostigter/xantippe/internal/xerr"
)

func TestNoneRoundTrip(t *testing.T) {
	src := []byte("hello, xantippe")
	stored, logicalLen, err := Encode(None, src)
	require.NoError(t, err)
	assert.Equal(t, src, stored)
	assert.Equal(t, len(src), logicalLen)

	rc, err := Decode(None, bytes.NewReader(stored))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDeflateRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 50))
	stored, logicalLen, err := Encode(Deflate, src)
	require.NoError(t, err)
	assert.Equal(t, len(src), logicalLen)
	assert.Less(t, len(stored), len(src), "repetitive input should compress smaller")

	rc, err := Decode(Deflate, bytes.NewReader(stored))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestDeflateEmptyInput(t *testing.T) {
	stored, logicalLen, err := Encode(Deflate, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, logicalLen)

	rc, err := Decode(Deflate, bytes.NewReader(stored))
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

func TestDeflateDecodeClosesUnderlyingStream(t *testing.T) {
	src := []byte(strings.Repeat("abc", 100))
	stored, _, err := Encode(Deflate, src)
	require.NoError(t, err)

	underlying := &closeTrackingReader{Reader: bytes.NewReader(stored)}
	rc, err := Decode(Deflate, underlying)
	require.NoError(t, err)

	_, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.True(t, underlying.closed, "closing the decoded reader must close the underlying stream")
}

func TestUnknownModeIsInvalidArgument(t *testing.T) {
	_, _, err := Encode(Mode(99), []byte("x"))
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.InvalidArgument))

	_, err = Decode(Mode(99), bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.InvalidArgument))
}
