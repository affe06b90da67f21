package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreStartSynthesizesDefaultRootWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	cat, err := store.Start()
	require.NoError(t, err)
	assert.Equal(t, rootName, cat.GetRoot().Name)
	assert.True(t, store.IsRunning())
}

func TestStoreRoundTripsCollectionsAndDocuments(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir)
	cat, err := store.Start()
	require.NoError(t, err)

	root := cat.GetRoot()
	books, err := cat.CreateChildCollection(root.ID, "books")
	require.NoError(t, err)
	require.NoError(t, cat.SetPolicy(books.ID, ValidationOn, CompressionDeflate))

	doc, err := cat.CreateDocument(books.ID, "a.xml", MediaXML, 100)
	require.NoError(t, err)
	require.NoError(t, cat.UpdateDocumentContent(doc.ID, 42, 30, 200))
	require.NoError(t, cat.SetDocumentKeys(doc.ID, map[string]TypedValue{
		"title": {Type: IndexString, Str: "Moby Dick"},
		"year":  {Type: IndexInt, Int: 1851},
	}))

	require.NoError(t, store.Shutdown())
	assert.False(t, store.IsRunning())

	reopened := NewStore(dir)
	cat2, err := reopened.Start()
	require.NoError(t, err)

	res, err := cat2.ResolveURI("/books/a.xml")
	require.NoError(t, err)
	require.Equal(t, ResolvedDocument, res.Kind)
	assert.Equal(t, uint32(42), res.Document.Length)
	assert.Equal(t, uint32(30), res.Document.StoredLength)
	assert.Equal(t, "Moby Dick", res.Document.Keys["title"].Str)
	assert.Equal(t, int64(1851), res.Document.Keys["year"].Int)

	booksCol, err := cat2.ChildCollectionByName(cat2.GetRoot().ID, "books")
	require.NoError(t, err)
	assert.Equal(t, ValidationOn, booksCol.ExplicitValidation)
	assert.Equal(t, CompressionDeflate, booksCol.ExplicitCompression)

	// nextId must stay monotonic across the restart: newly minted IDs must
	// not collide with anything loaded from disk.
	newCol, err := cat2.CreateChildCollection(cat2.GetRoot().ID, "other")
	require.NoError(t, err)
	assert.NotEqual(t, root.ID, newCol.ID)
	assert.NotEqual(t, books.ID, newCol.ID)
	assert.NotEqual(t, doc.ID, newCol.ID)
}

func TestStoreDoubleStartFails(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	_, err := store.Start()
	require.NoError(t, err)

	_, err = store.Start()
	require.Error(t, err)
}

func TestStoreSyncPersistsWithoutShutdown(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	cat, err := store.Start()
	require.NoError(t, err)

	_, err = cat.CreateChildCollection(cat.GetRoot().ID, "docs")
	require.NoError(t, err)
	require.NoError(t, store.Sync())

	reopened := NewStore(dir)
	cat2, err := reopened.Start()
	require.NoError(t, err)
	_, err = cat2.ChildCollectionByName(cat2.GetRoot().ID, "docs")
	require.NoError(t, err)
}
