// Package secindex implements per-collection secondary indices over typed
// document keys (spec §4.4): a two-level map keyName → (typedValue →
// set<docId>), backed by roaring bitmaps for fast intersection/union, plus
// persistence to indices.dbx and startup validation against the catalog.
//
// Grounded on the teacher's internal/graph/graph.go MemoryStore, whose
// fileToNodes map[string]*roaring.Bitmap is the same "named set of things
// → bitmap of IDs, intersect to query" shape generalized here to a
// per-collection, per-key-name table, and on internal/lattice/closure.go's
// use of bitmap .And/.Or for formal-context derivation.
package secindex

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
)

// bucket pairs a posting bitmap with the typed value it was created from,
// so persistence can re-emit the exact original type tag (§6 TypedValue)
// instead of reconstructing a lossy approximation from the string key.
type bucket struct {
	value catalog.TypedValue
	bm    *roaring.Bitmap
}

// Index is the secondary-index table for one database: per-collection,
// per-key-name, per-value postings.
type Index struct {
	mu sync.RWMutex
	// collections[colID][keyName][valueKey] -> bucket of document IDs.
	collections map[uint32]map[string]map[string]*bucket
}

// New creates an empty index table.
func New() *Index {
	return &Index{collections: make(map[uint32]map[string]map[string]*bucket)}
}

func (idx *Index) bucketFor(colID uint32, keyName string, v catalog.TypedValue, create bool) *bucket {
	valueKey := v.Key()
	byKey := idx.collections[colID]
	if byKey == nil {
		if !create {
			return nil
		}
		byKey = make(map[string]map[string]*bucket)
		idx.collections[colID] = byKey
	}
	byValue := byKey[keyName]
	if byValue == nil {
		if !create {
			return nil
		}
		byValue = make(map[string]*bucket)
		byKey[keyName] = byValue
	}
	b := byValue[valueKey]
	if b == nil {
		if !create {
			return nil
		}
		b = &bucket{value: v, bm: roaring.New()}
		byValue[valueKey] = b
	}
	return b
}

// postings returns the bitmap for (colID, keyName, value), used for
// querying where only the canonical value key is known.
func (idx *Index) postings(colID uint32, keyName, valueKey string) *roaring.Bitmap {
	byValue := idx.collections[colID][keyName]
	if byValue == nil {
		return nil
	}
	if b := byValue[valueKey]; b != nil {
		return b.bm
	}
	return nil
}

// Add records that document docID carries value v under keyName in
// collection colID.
func (idx *Index) Add(colID, docID uint32, keyName string, v catalog.TypedValue) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.bucketFor(colID, keyName, v, true).bm.Add(docID)
}

// Remove undoes Add for the given document/key/value triple.
func (idx *Index) Remove(colID, docID uint32, keyName string, v catalog.TypedValue) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if b := idx.bucketFor(colID, keyName, v, false); b != nil {
		b.bm.Remove(docID)
	}
}

// RemoveDocument strips every posting for docID across every key/value in
// colID, used when a document's keys are replaced or the document is
// deleted.
func (idx *Index) RemoveDocument(colID, docID uint32, keys map[string]catalog.TypedValue) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for keyName, v := range keys {
		if b := idx.bucketFor(colID, keyName, v, false); b != nil {
			b.bm.Remove(docID)
		}
	}
}

// Key is a single (name, value) query term.
type Key struct {
	Name  string
	Value catalog.TypedValue
}

// collectionResolver supplies the child collections needed for recursive
// queries without secindex depending on the full catalog package surface.
type collectionResolver interface {
	DescendantCollections(colID uint32) []uint32
}

// FindDocuments resolves keys against colID, intersecting across keys and
// optionally unioning across the collection's descendants (§4.4). Empty
// keys is a programming error (InvalidArgument). The result is
// deduplicated and ascending by document ID.
func (idx *Index) FindDocuments(cat collectionResolver, colID uint32, keys []Key, recursive bool) ([]uint32, error) {
	if len(keys) == 0 {
		return nil, xerr.New(xerr.InvalidArgument, "findDocuments requires at least one key")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	targets := []uint32{colID}
	if recursive {
		targets = cat.DescendantCollections(colID)
	}

	var union *roaring.Bitmap
	for _, cid := range targets {
		local := idx.intersectLocked(cid, keys)
		if local == nil {
			continue
		}
		if union == nil {
			union = local
		} else {
			union.Or(local)
		}
	}
	if union == nil {
		return nil, nil
	}

	ids := union.ToArray()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// intersectLocked computes the local (non-recursive) match set for one
// collection. Must be called with idx.mu held.
func (idx *Index) intersectLocked(colID uint32, keys []Key) *roaring.Bitmap {
	var result *roaring.Bitmap
	for _, k := range keys {
		bm := idx.postings(colID, k.Name, k.Value.Key())
		if bm == nil {
			return nil
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result
		}
	}
	return result
}
