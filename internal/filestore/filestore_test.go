package filestore

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostigter/xantippe/internal/xerr"
)

func TestStoreRetrieveRoundTrip(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	want := []byte("the quick brown fox")
	require.NoError(t, fs.Store(1, bytes.NewReader(want)))

	stream, err := fs.Retrieve(1)
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	length, err := fs.Length(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(want)), length)
}

func TestStoreOverwriteReusesID(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	require.NoError(t, fs.Store(1, bytes.NewReader([]byte("first version"))))
	require.NoError(t, fs.Store(1, bytes.NewReader([]byte("second"))))

	stream, err := fs.Retrieve(1)
	require.NoError(t, err)
	defer stream.Close()
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFirstFitUsesGapWhenItExactlyFits(t *testing.T) {
	entries := []*entry{
		{id: 1, offset: 0, length: 10},
		{id: 2, offset: 20, length: 10},
	}
	// Gap between entry 1 (ends at 10) and entry 2 (starts at 20) is exactly
	// 10 bytes wide.
	offset := firstFit(entries, 10)
	assert.Equal(t, uint32(10), offset)
}

func TestFirstFitSkipsGapTooSmall(t *testing.T) {
	entries := []*entry{
		{id: 1, offset: 0, length: 10},
		{id: 2, offset: 15, length: 10}, // only a 5-byte gap before this
	}
	offset := firstFit(entries, 10)
	assert.Equal(t, uint32(25), offset, "should place after the last entry when no gap fits")
}

func TestFirstFitOnEmptyStoreStartsAtZero(t *testing.T) {
	assert.Equal(t, uint32(0), firstFit(nil, 100))
}

func TestRetrieveZeroLengthEntryYieldsImmediateEOF(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	require.NoError(t, fs.Store(1, bytes.NewReader(nil)))

	stream, err := fs.Retrieve(1)
	require.NoError(t, err)
	defer stream.Close()

	buf := make([]byte, 10)
	n, err := stream.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	b, err := stream.ReadByte()
	assert.Equal(t, -1, b)
	assert.NoError(t, err)
}

func TestDeleteIsIdempotentlyRejectedTwice(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	require.NoError(t, fs.Store(1, bytes.NewReader([]byte("x"))))
	require.NoError(t, fs.Delete(1))

	err := fs.Delete(1)
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.NotFound))

	_, err = fs.Retrieve(1)
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.NotFound))
}

func TestEntriesNeverOverlapAfterDeleteAndReuse(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	require.NoError(t, fs.Store(1, bytes.NewReader(bytes.Repeat([]byte("a"), 100))))
	require.NoError(t, fs.Store(2, bytes.NewReader(bytes.Repeat([]byte("b"), 100))))
	require.NoError(t, fs.Delete(1))
	require.NoError(t, fs.Store(3, bytes.NewReader(bytes.Repeat([]byte("c"), 50))))

	fs.mu.Lock()
	entries := make([]*entry, len(fs.entries))
	copy(entries, fs.entries)
	fs.mu.Unlock()

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			overlap := a.offset < b.offset+b.length && b.offset < a.offset+a.length
			assert.False(t, overlap, "entries %d and %d overlap", a.id, b.id)
		}
	}
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	fs := New(dir)
	require.NoError(t, fs.Start())
	require.NoError(t, fs.Store(1, bytes.NewReader([]byte("persisted"))))
	require.NoError(t, fs.Shutdown())

	reopened := New(dir)
	require.NoError(t, reopened.Start())
	defer reopened.Shutdown()

	stream, err := reopened.Retrieve(1)
	require.NoError(t, err)
	defer stream.Close()
	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))
}

func TestDoubleStartFails(t *testing.T) {
	fs := New(t.TempDir())
	require.NoError(t, fs.Start())
	defer fs.Shutdown()

	err := fs.Start()
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.InvalidState))
}

func TestOperationsOnStoppedStoreFailWithNotRunning(t *testing.T) {
	fs := New(t.TempDir())
	err := fs.Store(1, bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.NotRunning))
}
