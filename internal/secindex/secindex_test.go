package secindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
)

// fakeTree is a minimal collectionResolver for tests that don't need a real
// catalog.Catalog, just its DescendantCollections shape.
type fakeTree struct {
	descendants map[uint32][]uint32
}

func (t fakeTree) DescendantCollections(colID uint32) []uint32 {
	return t.descendants[colID]
}

func strVal(s string) catalog.TypedValue { return catalog.TypedValue{Type: catalog.IndexString, Str: s} }
func intVal(n int64) catalog.TypedValue  { return catalog.TypedValue{Type: catalog.IndexInt, Int: n} }

func TestFindDocumentsSingleKey(t *testing.T) {
	idx := New()
	idx.Add(1, 10, "author", strVal("melville"))
	idx.Add(1, 11, "author", strVal("melville"))
	idx.Add(1, 12, "author", strVal("twain"))

	tree := fakeTree{}
	ids, err := idx.FindDocuments(tree, 1, []Key{{Name: "author", Value: strVal("melville")}}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, ids)
}

func TestFindDocumentsTwoKeysIntersect(t *testing.T) {
	idx := New()
	idx.Add(1, 10, "author", strVal("melville"))
	idx.Add(1, 10, "year", intVal(1851))
	idx.Add(1, 11, "author", strVal("melville"))
	idx.Add(1, 11, "year", intVal(1852))

	tree := fakeTree{}
	ids, err := idx.FindDocuments(tree, 1, []Key{
		{Name: "author", Value: strVal("melville")},
		{Name: "year", Value: intVal(1851)},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10}, ids)
}

func TestFindDocumentsRecursiveUnionsDescendants(t *testing.T) {
	idx := New()
	idx.Add(1, 10, "author", strVal("melville")) // directly in collection 1
	idx.Add(2, 20, "author", strVal("melville")) // in child collection 2

	tree := fakeTree{descendants: map[uint32][]uint32{1: {1, 2}}}

	ids, err := idx.FindDocuments(tree, 1, []Key{{Name: "author", Value: strVal("melville")}}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10}, ids, "non-recursive must not see the child collection")

	ids, err = idx.FindDocuments(tree, 1, []Key{{Name: "author", Value: strVal("melville")}}, true)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20}, ids, "recursive must union across descendants")
}

func TestFindDocumentsEmptyKeysIsInvalidArgument(t *testing.T) {
	idx := New()
	_, err := idx.FindDocuments(fakeTree{}, 1, nil, false)
	require.Error(t, err)
	assert.True(t, xerr.Of(err, xerr.InvalidArgument))
}

func TestFindDocumentsNoMatchReturnsEmpty(t *testing.T) {
	idx := New()
	idx.Add(1, 10, "author", strVal("melville"))
	ids, err := idx.FindDocuments(fakeTree{}, 1, []Key{{Name: "author", Value: strVal("twain")}}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRemoveAndRemoveDocument(t *testing.T) {
	idx := New()
	idx.Add(1, 10, "author", strVal("melville"))
	idx.Add(1, 10, "year", intVal(1851))

	idx.Remove(1, 10, "author", strVal("melville"))
	ids, err := idx.FindDocuments(fakeTree{}, 1, []Key{{Name: "author", Value: strVal("melville")}}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)

	idx.Add(1, 10, "author", strVal("melville"))
	idx.RemoveDocument(1, 10, map[string]catalog.TypedValue{
		"author": strVal("melville"),
		"year":   intVal(1851),
	})
	ids, err = idx.FindDocuments(fakeTree{}, 1, []Key{{Name: "author", Value: strVal("melville")}}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = idx.FindDocuments(fakeTree{}, 1, []Key{{Name: "year", Value: intVal(1851)}}, false)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
