package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ostigter/xantippe/internal/xerr"
)

const rootName = "db"

// Catalog is the in-memory collection/document tree (§3, §4.2). It
// exclusively owns every Collection, Document, and the ID counter (§3
// "Ownership"). Structural reads/writes are guarded by mu; callers that
// need cross-operation consistency additionally take the lock manager's
// locks (lockmgr), which this package does not itself know about.
type Catalog struct {
	mu          sync.RWMutex
	collections map[uint32]*Collection
	documents   map[uint32]*Document
	rootID      uint32
	nextID      uint32 // accessed via atomic so MintID needs no mu
}

// NewEmpty synthesizes a fresh catalog with a default root named "db"
// (explicit validation OFF, compression NONE), matching §4.2's documented
// behavior when collections.dbx is absent at startup.
func NewEmpty() *Catalog {
	root := &Collection{
		ID:                  0,
		Name:                rootName,
		ParentID:            RootParentID,
		ExplicitValidation:  ValidationOff,
		ExplicitCompression: CompressionNone,
	}
	c := &Catalog{
		collections: map[uint32]*Collection{0: root},
		documents:   map[uint32]*Document{},
		rootID:      0,
		nextID:      1,
	}
	return c
}

// MintID returns the next object ID and advances the persisted counter.
// IDs are never reused within a database lifetime (§3).
func (c *Catalog) MintID() uint32 {
	return atomic.AddUint32(&c.nextID, 1) - 1
}

// NextID returns the current counter value without advancing it (used by
// persistence to write metadata.dbx).
func (c *Catalog) NextID() uint32 {
	return atomic.LoadUint32(&c.nextID)
}

// bumpNextIDAbove ensures the counter stays strictly greater than id,
// preserving the nextId > max(all ids ever minted) invariant (§3, §8)
// across a catalog load from disk.
func (c *Catalog) bumpNextIDAbove(id uint32) {
	for {
		cur := atomic.LoadUint32(&c.nextID)
		if cur > id {
			return
		}
		if atomic.CompareAndSwapUint32(&c.nextID, cur, id+1) {
			return
		}
	}
}

// GetRoot returns the single root collection.
func (c *Catalog) GetRoot() *Collection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collections[c.rootID]
}

// Collection returns the collection with the given ID.
func (c *Catalog) Collection(id uint32) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collections[id]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
	}
	return col, nil
}

// Document returns the document with the given ID.
func (c *Catalog) Document(id uint32) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.documents[id]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("document %d not found", id))
	}
	return doc, nil
}

// ChildCollectionByName returns the child collection of parent named name,
// or NotFound. Sibling lookup is O(children) by name (§4.2).
func (c *Catalog) ChildCollectionByName(parentID uint32, name string) (*Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parent, ok := c.collections[parentID]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", parentID))
	}
	for _, cid := range parent.ChildCollectionIDs {
		if child := c.collections[cid]; child != nil && child.Name == name {
			return child, nil
		}
	}
	return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %q not found under %d", name, parentID))
}

// ChildDocumentByName returns the child document of parent named name, or
// NotFound.
func (c *Catalog) ChildDocumentByName(parentID uint32, name string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	parent, ok := c.collections[parentID]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", parentID))
	}
	for _, did := range parent.ChildDocumentIDs {
		if doc := c.documents[did]; doc != nil && doc.Name == name {
			return doc, nil
		}
	}
	return nil, xerr.New(xerr.NotFound, fmt.Sprintf("document %q not found under %d", name, parentID))
}

// nameInUse reports whether name is already taken by a child collection or
// document of parentID. Must be called with mu held (read or write).
func (c *Catalog) nameInUse(parentID uint32, name string) bool {
	parent := c.collections[parentID]
	if parent == nil {
		return false
	}
	for _, cid := range parent.ChildCollectionIDs {
		if child := c.collections[cid]; child != nil && child.Name == name {
			return true
		}
	}
	for _, did := range parent.ChildDocumentIDs {
		if doc := c.documents[did]; doc != nil && doc.Name == name {
			return true
		}
	}
	return false
}

// CreateChildCollection creates a new collection named name under parentID.
// Fails with NameInUse if a sibling (collection or document) already has
// that name.
func (c *Catalog) CreateChildCollection(parentID uint32, name string) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.collections[parentID]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", parentID))
	}
	if err := validateSegment(name); err != nil {
		return nil, err
	}
	if c.nameInUse(parentID, name) {
		return nil, xerr.New(xerr.NameInUse, fmt.Sprintf("name %q already in use under %d", name, parentID))
	}

	col := &Collection{
		ID:                  c.MintID(),
		Name:                name,
		ParentID:            int64(parentID),
		ExplicitValidation:  ValidationInherit,
		ExplicitCompression: CompressionInherit,
	}
	c.collections[col.ID] = col
	parent.ChildCollectionIDs = append(parent.ChildCollectionIDs, col.ID)
	return col, nil
}

// CreateDocument creates a new, empty document named name under parentID.
// Content, length, and keys are set separately once the write stream
// closes (database layer coordinates with filestore/codec).
func (c *Catalog) CreateDocument(parentID uint32, name string, mediaType MediaType, now int64) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.collections[parentID]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", parentID))
	}
	if err := validateSegment(name); err != nil {
		return nil, err
	}
	if c.nameInUse(parentID, name) {
		return nil, xerr.New(xerr.NameInUse, fmt.Sprintf("name %q already in use under %d", name, parentID))
	}

	doc := &Document{
		ID:        c.MintID(),
		Name:      name,
		ParentID:  parentID,
		MediaType: mediaType,
		Created:   now,
		Modified:  now,
		Keys:      make(map[string]TypedValue),
	}
	c.documents[doc.ID] = doc
	parent.ChildDocumentIDs = append(parent.ChildDocumentIDs, doc.ID)
	return doc, nil
}

// UpdateDocumentContent records a document's logical/stored length and
// bumps its modified timestamp (content bytes themselves live in the file
// store, not the catalog).
func (c *Catalog) UpdateDocumentContent(id uint32, length, storedLength uint32, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("document %d not found", id))
	}
	doc.Length = length
	doc.StoredLength = storedLength
	doc.Modified = now
	return nil
}

// SetDocumentKeys replaces a document's key-value pairs.
func (c *Catalog) SetDocumentKeys(id uint32, keys map[string]TypedValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("document %d not found", id))
	}
	doc.Keys = keys
	return nil
}

// Rename changes a collection's or document's name, rejecting a collision
// with an existing sibling.
func (c *Catalog) Rename(id uint32, isCollection bool, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validateSegment(newName); err != nil {
		return err
	}

	var parentID uint32
	if isCollection {
		col, ok := c.collections[id]
		if !ok {
			return xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
		}
		if col.ParentID == RootParentID {
			return xerr.New(xerr.InvalidState, "cannot rename the root collection")
		}
		parentID = uint32(col.ParentID)
		if c.nameInUse(parentID, newName) {
			return xerr.New(xerr.NameInUse, fmt.Sprintf("name %q already in use", newName))
		}
		col.Name = newName
		return nil
	}

	doc, ok := c.documents[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("document %d not found", id))
	}
	parentID = doc.ParentID
	if c.nameInUse(parentID, newName) {
		return xerr.New(xerr.NameInUse, fmt.Sprintf("name %q already in use", newName))
	}
	doc.Name = newName
	return nil
}

// SetPolicy updates a collection's explicit validation/compression modes.
// Rejects setting the root's mode to INHERIT (§3 invariant).
func (c *Catalog) SetPolicy(id uint32, validation ValidationMode, compression CompressionMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
	}
	if col.ParentID == RootParentID && (validation == ValidationInherit || compression == CompressionInherit) {
		return xerr.New(xerr.InvalidState, "root collection's explicit mode cannot be INHERIT")
	}
	col.ExplicitValidation = validation
	col.ExplicitCompression = compression
	return nil
}

// MutateCollection runs fn with exclusive access to the collection
// identified by id, letting callers in other packages (policy's index-def
// inheritance checks) make read-then-write decisions atomically without
// the catalog needing to know their invariants.
func (c *Catalog) MutateCollection(id uint32, fn func(*Collection) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.collections[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
	}
	return fn(col)
}

// WithCollectionChain calls fn with the chain of ancestor collections from
// col up to and including the root, read-locked for the duration.
func (c *Catalog) WithCollectionChain(col *Collection, fn func([]*Collection) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chain := []*Collection{col}
	cur := col
	for cur.ParentID != RootParentID {
		parent := c.collections[uint32(cur.ParentID)]
		if parent == nil {
			return xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", cur.ParentID))
		}
		chain = append(chain, parent)
		cur = parent
	}
	return fn(chain)
}

// AncestorChainIDs returns the IDs of colID's parent, grandparent, and so
// on up to the root (colID itself is not included), the shape
// lockmgr needs for its automatic ancestor read-locking (§4.5).
func (c *Catalog) AncestorChainIDs(colID uint32) ([]uint32, error) {
	col, err := c.Collection(colID)
	if err != nil {
		return nil, err
	}
	var ids []uint32
	err = c.WithCollectionChain(col, func(chain []*Collection) error {
		for i := 1; i < len(chain); i++ {
			ids = append(ids, chain[i].ID)
		}
		return nil
	})
	return ids, err
}

// DeleteDocument removes a document from its parent.
func (c *Catalog) DeleteDocument(id uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[id]
	if !ok {
		return xerr.New(xerr.NotFound, fmt.Sprintf("document %d not found", id))
	}
	parent := c.collections[doc.ParentID]
	if parent != nil {
		parent.ChildDocumentIDs = removeU32(parent.ChildDocumentIDs, id)
	}
	delete(c.documents, id)
	return nil
}

// DeleteCollection removes a collection. Without recursive, a non-empty
// collection fails with InvalidState. With recursive, the whole subtree
// (descendant collections and documents) is removed; deletedDocIDs lists
// every document ID removed, so callers can cascade file-store/index
// cleanup.
func (c *Catalog) DeleteCollection(id uint32, recursive bool) (deletedDocIDs []uint32, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.collections[id]
	if !ok {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
	}
	if col.ParentID == RootParentID {
		return nil, xerr.New(xerr.InvalidState, "cannot delete the root collection")
	}
	if !recursive && (len(col.ChildCollectionIDs) > 0 || len(col.ChildDocumentIDs) > 0) {
		return nil, xerr.New(xerr.InvalidState, "collection is not empty")
	}

	var docIDs []uint32
	c.collectSubtree(id, &docIDs)

	parent := c.collections[uint32(col.ParentID)]
	if parent != nil {
		parent.ChildCollectionIDs = removeU32(parent.ChildCollectionIDs, id)
	}
	c.deleteSubtreeLocked(id)
	return docIDs, nil
}

func (c *Catalog) collectSubtree(id uint32, docIDs *[]uint32) {
	col := c.collections[id]
	if col == nil {
		return
	}
	*docIDs = append(*docIDs, col.ChildDocumentIDs...)
	for _, cid := range col.ChildCollectionIDs {
		c.collectSubtree(cid, docIDs)
	}
}

func (c *Catalog) deleteSubtreeLocked(id uint32) {
	col := c.collections[id]
	if col == nil {
		return
	}
	for _, did := range col.ChildDocumentIDs {
		delete(c.documents, did)
	}
	for _, cid := range col.ChildCollectionIDs {
		c.deleteSubtreeLocked(cid)
	}
	delete(c.collections, id)
}

// IsDescendant reports whether id is col or a descendant of col (§4.4
// "descendant (inclusive)").
func (c *Catalog) IsDescendant(col *Collection, id uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDescendantLocked(col.ID, id)
}

func (c *Catalog) isDescendantLocked(ancestorID, id uint32) bool {
	if ancestorID == id {
		return true
	}
	col := c.collections[ancestorID]
	if col == nil {
		return false
	}
	for _, cid := range col.ChildCollectionIDs {
		if c.isDescendantLocked(cid, id) {
			return true
		}
	}
	return false
}

// Children returns the child collections and documents of id, in
// insertion order.
func (c *Catalog) Children(id uint32) (cols []*Collection, docs []*Document, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collections[id]
	if !ok {
		return nil, nil, xerr.New(xerr.NotFound, fmt.Sprintf("collection %d not found", id))
	}
	for _, cid := range col.ChildCollectionIDs {
		cols = append(cols, c.collections[cid])
	}
	for _, did := range col.ChildDocumentIDs {
		docs = append(docs, c.documents[did])
	}
	return cols, docs, nil
}

// DescendantCollections returns id and every collection in its subtree
// (inclusive), used by recursive secondary-index queries (§4.4).
func (c *Catalog) DescendantCollections(id uint32) []uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []uint32
	var walk func(uint32)
	walk = func(cur uint32) {
		out = append(out, cur)
		col := c.collections[cur]
		if col == nil {
			return
		}
		for _, cid := range col.ChildCollectionIDs {
			walk(cid)
		}
	}
	walk(id)
	return out
}

func removeU32(s []uint32, v uint32) []uint32 {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
