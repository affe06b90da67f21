package database

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
)

func mustReadAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

// Scenario 1: create, insert, shutdown/restart, content and nextId survive.
func TestScenarioRestartPreservesContentAndNextID(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()

	db := New("test", dir)
	require.NoError(t, db.Start())

	_, err := db.CreateCollection(conn, "/", "data")
	require.NoError(t, err)
	_, err = db.CreateCollection(conn, "/data", "foo")
	require.NoError(t, err)

	doc, err := db.PutDocument(conn, "/data/foo", "a.xml", catalog.MediaXML, []byte("<a/>"), nil)
	require.NoError(t, err)
	mintedID := doc.ID

	require.NoError(t, db.Shutdown())

	db2 := New("test", dir)
	require.NoError(t, db2.Start())
	defer db2.Shutdown()

	rc, err := db2.GetContent(conn, "/data/foo/a.xml")
	require.NoError(t, err)
	assert.Equal(t, "<a/>", string(mustReadAll(t, rc)))

	// nextId must be strictly greater than any ID minted before the
	// restart, including a.xml's.
	newCol, err := db2.CreateCollection(conn, "/", "other")
	require.NoError(t, err)
	assert.Greater(t, newCol.ID, mintedID)
}

// Scenario 2: delete the middle of three equal-size documents, then insert
// one the same size — it reclaims the deleted slot (first-fit).
func TestScenarioDeleteMiddleThenReuseSameSizeSlot(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	payload := func(c byte) []byte { return bytes.Repeat([]byte{c}, 100) }

	d1, err := db.PutDocument(conn, "/", "a.bin", catalog.MediaBinary, payload('a'), nil)
	require.NoError(t, err)
	d2, err := db.PutDocument(conn, "/", "b.bin", catalog.MediaBinary, payload('b'), nil)
	require.NoError(t, err)
	_, err = db.PutDocument(conn, "/", "c.bin", catalog.MediaBinary, payload('c'), nil)
	require.NoError(t, err)

	sizeBefore, err := db.files.Size()
	require.NoError(t, err)

	require.NoError(t, db.DeleteDocument(conn, "/b.bin"))

	_, err = db.PutDocument(conn, "/", "d.bin", catalog.MediaBinary, payload('d'), nil)
	require.NoError(t, err)
	_ = d1
	_ = d2

	sizeAfter, err := db.files.Size()
	require.NoError(t, err)
	assert.Equal(t, sizeBefore.ContentSize, sizeAfter.ContentSize, "content file length must be unchanged by a same-size reclaim")

	rc, err := db.GetContent(conn, "/d.bin")
	require.NoError(t, err)
	assert.Equal(t, payload('d'), mustReadAll(t, rc))
}

// Scenario 3: delete the middle of three 100-byte documents, then insert a
// 150-byte document — too big for the gap, so it appends past the end.
func TestScenarioDeleteMiddleThenInsertLargerGrowsFile(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	payload := func(c byte, n int) []byte { return bytes.Repeat([]byte{c}, n) }

	_, err := db.PutDocument(conn, "/", "a.bin", catalog.MediaBinary, payload('a', 100), nil)
	require.NoError(t, err)
	_, err = db.PutDocument(conn, "/", "b.bin", catalog.MediaBinary, payload('b', 100), nil)
	require.NoError(t, err)
	_, err = db.PutDocument(conn, "/", "c.bin", catalog.MediaBinary, payload('c', 100), nil)
	require.NoError(t, err)

	require.NoError(t, db.DeleteDocument(conn, "/b.bin"))

	sizeBefore, err := db.files.Size()
	require.NoError(t, err)

	_, err = db.PutDocument(conn, "/", "big.bin", catalog.MediaBinary, payload('z', 150), nil)
	require.NoError(t, err)

	sizeAfter, err := db.files.Size()
	require.NoError(t, err)
	assert.Equal(t, sizeBefore.ContentSize+150, sizeAfter.ContentSize, "content file must grow by exactly the new entry's size")

	rc, err := db.GetContent(conn, "/big.bin")
	require.NoError(t, err)
	assert.Equal(t, payload('z', 150), mustReadAll(t, rc))
}

// Scenario 4: an index over /*/Type, two conjunctive-query shapes. The
// indexed keys are derived purely from each document's XML content via the
// declared index definitions' xpaths — PutDocument is never handed a keys
// map, so a pass here proves extraction itself, not a caller shortcut.
func TestScenarioFindDocumentsByIndexedKey(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	_, err := db.CreateCollection(conn, "/", "data")
	require.NoError(t, err)
	dataCol, err := db.GetCollection("/data")
	require.NoError(t, err)
	require.NoError(t, db.policy.AddIndexDef(dataCol, catalog.IndexDef{ID: 1, Name: "DocType", XPath: "/*/Type", Type: catalog.IndexString}))
	require.NoError(t, db.policy.AddIndexDef(dataCol, catalog.IndexDef{ID: 2, Name: "DocId", XPath: "/*/Id", Type: catalog.IndexLong}))

	mk := func(name, typ string, docID int64) {
		content := fmt.Sprintf("<root><Type>%s</Type><Id>%d</Id></root>", typ, docID)
		_, err := db.PutDocument(conn, "/data", name, catalog.MediaXML, []byte(content), nil)
		require.NoError(t, err)
	}
	mk("one.xml", "Foo", 1)
	mk("two.xml", "Foo", 2)
	mk("three.xml", "Bar", 3)

	ids, err := db.FindDocuments("/data", []SecondaryKey{{Name: "DocType", Value: catalog.TypedValue{Type: catalog.IndexString, Str: "Foo"}}}, false)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = db.FindDocuments("/data", []SecondaryKey{
		{Name: "DocType", Value: catalog.TypedValue{Type: catalog.IndexString, Str: "Foo"}},
		{Name: "DocId", Value: catalog.TypedValue{Type: catalog.IndexLong, Int: 2}},
	}, false)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

// Scenario 5: ancestor-shared-lock compatibility across an unrelated reader
// while a writer is blocked on the true conflict.
func TestScenarioAncestorLockingAllowsUnrelatedReaderDuringWriterBlock(t *testing.T) {
	dir := t.TempDir()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	setupConn := NewConnection()
	_, err := db.CreateCollection(setupConn, "/", "data")
	require.NoError(t, err)
	_, err = db.CreateCollection(setupConn, "/data", "foo")
	require.NoError(t, err)
	_, err = db.CreateCollection(setupConn, "/", "other")
	require.NoError(t, err)
	_, err = db.PutDocument(setupConn, "/data/foo", "a.xml", catalog.MediaXML, []byte("<a/>"), nil)
	require.NoError(t, err)
	_, err = db.PutDocument(setupConn, "/other", "o.xml", catalog.MediaXML, []byte("<o/>"), nil)
	require.NoError(t, err)

	connA := NewConnection()
	connB := NewConnection()
	connC := NewConnection()

	// A holds a read lock on /data/foo/a.xml.
	rcA, err := db.GetContent(connA, "/data/foo/a.xml")
	require.NoError(t, err)

	// B attempts to write-lock the parent collection /data/foo; it must
	// block while A holds its read lock.
	bDone := make(chan struct{})
	go func() {
		require.NoError(t, db.SetPolicy(connB, "/data/foo", catalog.ValidationOn, catalog.CompressionNone))
		close(bDone)
	}()

	select {
	case <-bDone:
		t.Fatal("writer B acquired the lock while reader A still held it")
	case <-time.After(50 * time.Millisecond):
	}

	// C must still be able to read /other concurrently, since /db's shared
	// ancestor lock is compatible with B's pending shared ancestor lock.
	rcC, err := db.GetContent(connC, "/other/o.xml")
	require.NoError(t, err)
	assert.Equal(t, "<o/>", string(mustReadAll(t, rcC)))

	require.NoError(t, rcA.Close())

	select {
	case <-bDone:
	case <-time.After(time.Second):
		t.Fatal("writer B never acquired the lock after reader A released it")
	}
}

// Scenario 6: DEFLATE compression on a highly compressible document.
func TestScenarioDeflateCompressionShrinksStoredLength(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	_, err := db.CreateCollection(conn, "/", "data")
	require.NoError(t, err)
	dataCol, err := db.GetCollection("/data")
	require.NoError(t, err)
	require.NoError(t, db.SetPolicy(conn, "/data", catalog.ValidationOff, catalog.CompressionDeflate))

	content := []byte(strings.Repeat("a", 10000))
	doc, err := db.PutDocument(conn, "/data", "big.txt", catalog.MediaText, content, nil)
	require.NoError(t, err)
	_ = dataCol

	assert.Less(t, doc.StoredLength, doc.Length)
	assert.Equal(t, uint32(len(content)), doc.Length)

	rc, err := db.GetContent(conn, "/data/big.txt")
	require.NoError(t, err)
	assert.Equal(t, content, mustReadAll(t, rc))
}

// fakeValidator rejects any document whose bytes equal "reject".
type fakeValidator struct{ calls int }

func (v *fakeValidator) Validate(mediaType catalog.MediaType, data []byte) (bool, []string, error) {
	v.calls++
	if string(data) == "reject" {
		return false, []string{"payload is literally \"reject\""}, nil
	}
	return true, nil, nil
}

func TestPutDocumentWithoutValidatorSkipsValidation(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	require.NoError(t, db.SetPolicy(conn, "/", catalog.ValidationOn, catalog.CompressionNone))
	_, err := db.PutDocument(conn, "/", "a.xml", catalog.MediaXML, []byte("reject"), nil)
	require.NoError(t, err, "with no Validator installed, ValidationOn must not block writes")
}

func TestPutDocumentRejectsContentFailingValidation(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	v := &fakeValidator{}
	db.SetValidator(v)
	require.NoError(t, db.SetPolicy(conn, "/", catalog.ValidationOn, catalog.CompressionNone))

	_, err := db.PutDocument(conn, "/", "a.xml", catalog.MediaXML, []byte("reject"), nil)
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.ValidationFailed))

	_, err = db.PutDocument(conn, "/", "b.xml", catalog.MediaXML, []byte("<ok/>"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls)
}

func TestPutDocumentValidationOffNeverCallsValidator(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	v := &fakeValidator{}
	db.SetValidator(v)
	require.NoError(t, db.SetPolicy(conn, "/", catalog.ValidationOff, catalog.CompressionNone))

	_, err := db.PutDocument(conn, "/", "a.xml", catalog.MediaXML, []byte("reject"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, v.calls)
}

func TestPutDocumentValidationAutoSkipsNonXML(t *testing.T) {
	dir := t.TempDir()
	conn := NewConnection()
	db := New("test", dir)
	require.NoError(t, db.Start())
	defer db.Shutdown()

	v := &fakeValidator{}
	db.SetValidator(v)
	require.NoError(t, db.SetPolicy(conn, "/", catalog.ValidationAuto, catalog.CompressionNone))

	_, err := db.PutDocument(conn, "/", "a.bin", catalog.MediaBinary, []byte("reject"), nil)
	require.NoError(t, err, "AUTO only validates XML content")
	assert.Equal(t, 0, v.calls)

	_, err = db.PutDocument(conn, "/", "a.xml", catalog.MediaXML, []byte("reject"), nil)
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.ValidationFailed))
}
