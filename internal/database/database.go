// Package database wires the core subsystems — file store, catalog,
// policy resolver, secondary index, and lock manager — into the
// programmatic surface a caller or query engine drives (spec §6):
// Database (start/shutdown, collection/document lookup, content I/O) and
// DatabaseManager (a registry of named instances by path).
//
// Grounded on the teacher's cmd/mount.go bootstrap, which assembles a
// store, an index, and a filesystem adapter behind one object with the
// same start/stop lifecycle shape reproduced here for Database.
package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/filestore"
	"github.com/ostigter/xantippe/internal/lockmgr"
	"github.com/ostigter/xantippe/internal/policy"
	"github.com/ostigter/xantippe/internal/secindex"
	"github.com/ostigter/xantippe/internal/xerr"
	"github.com/ostigter/xantippe/internal/xlog"
)

// Connection is a logical session identity used by the lock manager to
// associate lock reentries with a caller that may cross thread/goroutine
// boundaries (§6, §9).
type Connection = lockmgr.Connection

// NewConnection mints a fresh session identity.
func NewConnection() Connection { return lockmgr.NewConnection() }

// Database is one embedded xantippe instance rooted at a data directory.
type Database struct {
	name string
	dir  string

	mu      sync.Mutex
	running bool

	catStore  *catalog.Store
	cat       *catalog.Catalog
	files     *filestore.FileStore
	policy    *policy.Resolver
	index     *secindex.Index
	locks     *lockmgr.Manager
	validator Validator
}

// New creates a Database rooted at dir. Name is a display/lookup label
// used by DatabaseManager; it does not affect file layout.
func New(name, dir string) *Database {
	return &Database{name: name, dir: dir}
}

// Start opens the file store and loads (or synthesizes) the catalog and
// secondary index.
func (db *Database) Start() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.running {
		return xerr.New(xerr.InvalidState, "database already running")
	}
	log := xlog.WithDatabase(db.name)

	catStore := catalog.NewStore(db.dir)
	cat, err := catStore.Start()
	if err != nil {
		return err
	}

	files := filestore.New(db.dir)
	if err := files.Start(); err != nil {
		catStore.Shutdown()
		return err
	}

	idx, diagnostics, err := secindex.Load(db.dir, func(id uint32) bool {
		_, derr := cat.Document(id)
		return derr == nil
	})
	if err != nil {
		files.Shutdown()
		catStore.Shutdown()
		return err
	}
	for _, d := range diagnostics {
		log.Warn().Msg(d)
	}

	db.catStore = catStore
	db.cat = cat
	db.files = files
	db.policy = policy.NewResolver(cat)
	db.index = idx
	db.locks = lockmgr.New()
	db.running = true
	log.Info().Str("dir", db.dir).Msg("database started")
	return nil
}

// IsRunning reports whether Start has completed without a matching
// Shutdown.
func (db *Database) IsRunning() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.running
}

// Shutdown persists the secondary index and catalog, then closes the file
// store.
func (db *Database) Shutdown() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.running {
		return xerr.New(xerr.NotRunning, "database is not running")
	}

	var firstErr error
	if err := secindex.Save(db.dir, db.index); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.catStore.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := db.files.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}

	db.running = false
	db.cat = nil
	db.catStore = nil
	db.files = nil
	db.policy = nil
	db.index = nil
	db.locks = nil
	xlog.WithDatabase(db.name).Info().Msg("database shut down")
	return firstErr
}

func (db *Database) requireRunning() error {
	if !db.IsRunning() {
		return xerr.New(xerr.NotRunning, "database is not running")
	}
	return nil
}

// GetRootCollection returns the single root collection.
func (db *Database) GetRootCollection() (*catalog.Collection, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	return db.cat.GetRoot(), nil
}

// GetCollection resolves uri to a collection.
func (db *Database) GetCollection(uri string) (*catalog.Collection, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	resolved, err := db.cat.ResolveURI(uri)
	if err != nil {
		return nil, err
	}
	if resolved.Kind != catalog.ResolvedCollection {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("%q is a document, not a collection", uri))
	}
	return resolved.Collection, nil
}

// GetDocument resolves uri to a document.
func (db *Database) GetDocument(uri string) (*catalog.Document, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	resolved, err := db.cat.ResolveURI(uri)
	if err != nil {
		return nil, err
	}
	if resolved.Kind != catalog.ResolvedDocument {
		return nil, xerr.New(xerr.NotFound, fmt.Sprintf("%q is a collection, not a document", uri))
	}
	return resolved.Document, nil
}

// CreateCollection creates a new child collection named name under
// parentURI.
func (db *Database) CreateCollection(conn Connection, parentURI, name string) (*catalog.Collection, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	parent, err := db.GetCollection(parentURI)
	if err != nil {
		return nil, err
	}
	if err := db.lockWriteCol(conn, parent.ID); err != nil {
		return nil, err
	}
	defer db.unlockCol(conn, parent.ID)
	return db.cat.CreateChildCollection(parent.ID, name)
}

// DeleteCollection removes a collection, cascading to its subtree when
// recursive is set, and drops every removed document's file-store entry
// and index postings.
func (db *Database) DeleteCollection(conn Connection, uri string, recursive bool) error {
	if err := db.requireRunning(); err != nil {
		return err
	}
	col, err := db.GetCollection(uri)
	if err != nil {
		return err
	}
	if err := db.lockWriteCol(conn, col.ID); err != nil {
		return err
	}
	defer db.unlockCol(conn, col.ID)

	var docs []*catalog.Document
	for _, cid := range db.cat.DescendantCollections(col.ID) {
		if _, childDocs, err := db.cat.Children(cid); err == nil {
			docs = append(docs, childDocs...)
		}
	}

	docIDs, err := db.cat.DeleteCollection(col.ID, recursive)
	if err != nil {
		return err
	}
	for _, d := range docs {
		db.index.RemoveDocument(d.ParentID, d.ID, d.Keys)
	}
	var firstErr error
	for _, docID := range docIDs {
		if err := db.files.Delete(docID); err != nil && firstErr == nil && !xerr.Of(err, xerr.NotFound) {
			firstErr = err
		}
	}
	return firstErr
}

// DeleteDocument removes a document, its stored bytes, and its secondary
// index postings.
func (db *Database) DeleteDocument(conn Connection, uri string) error {
	if err := db.requireRunning(); err != nil {
		return err
	}
	doc, err := db.GetDocument(uri)
	if err != nil {
		return err
	}
	if err := db.lockWriteDoc(conn, doc); err != nil {
		return err
	}
	defer db.unlockDoc(conn, doc)

	db.index.RemoveDocument(doc.ParentID, doc.ID, doc.Keys)
	if err := db.cat.DeleteDocument(doc.ID); err != nil {
		return err
	}
	if err := db.files.Delete(doc.ID); err != nil && !xerr.Of(err, xerr.NotFound) {
		return err
	}
	return nil
}

// Rename changes a collection's or document's name.
func (db *Database) Rename(conn Connection, uri, newName string) error {
	if err := db.requireRunning(); err != nil {
		return err
	}
	resolved, err := db.cat.ResolveURI(uri)
	if err != nil {
		return err
	}
	if resolved.Kind == catalog.ResolvedCollection {
		if err := db.lockWriteCol(conn, resolved.Collection.ID); err != nil {
			return err
		}
		defer db.unlockCol(conn, resolved.Collection.ID)
		return db.cat.Rename(resolved.Collection.ID, true, newName)
	}
	if err := db.lockWriteDoc(conn, resolved.Document); err != nil {
		return err
	}
	defer db.unlockDoc(conn, resolved.Document)
	return db.cat.Rename(resolved.Document.ID, false, newName)
}

// SetPolicy updates a collection's explicit validation/compression modes.
func (db *Database) SetPolicy(conn Connection, uri string, validation catalog.ValidationMode, compression catalog.CompressionMode) error {
	if err := db.requireRunning(); err != nil {
		return err
	}
	col, err := db.GetCollection(uri)
	if err != nil {
		return err
	}
	if err := db.lockWriteCol(conn, col.ID); err != nil {
		return err
	}
	defer db.unlockCol(conn, col.ID)
	return db.cat.SetPolicy(col.ID, validation, compression)
}

// --- locking helpers ----------------------------------------------------

func (db *Database) lockReadCol(conn Connection, colID uint32) error {
	ancestors, err := db.cat.AncestorChainIDs(colID)
	if err != nil {
		return err
	}
	db.locks.LockReadCol(conn, colID, ancestors)
	return nil
}

func (db *Database) lockWriteCol(conn Connection, colID uint32) error {
	ancestors, err := db.cat.AncestorChainIDs(colID)
	if err != nil {
		return err
	}
	db.locks.LockWriteCol(conn, colID, ancestors)
	return nil
}

func (db *Database) unlockCol(conn Connection, colID uint32) {
	ancestors, err := db.cat.AncestorChainIDs(colID)
	if err != nil {
		return
	}
	db.locks.UnlockChain(conn, colID, ancestors)
}

// docAncestorIDs returns the IDs of a document's containing collection and
// all of that collection's ancestors, the full chain lockmgr needs to take
// shared locks on before it locks the document itself.
func (db *Database) docAncestorIDs(doc *catalog.Document) ([]uint32, error) {
	parentAncestors, err := db.cat.AncestorChainIDs(doc.ParentID)
	if err != nil {
		return nil, err
	}
	return append([]uint32{doc.ParentID}, parentAncestors...), nil
}

func (db *Database) lockReadDoc(conn Connection, doc *catalog.Document) error {
	ancestors, err := db.docAncestorIDs(doc)
	if err != nil {
		return err
	}
	db.locks.LockReadDoc(conn, doc.ID, ancestors)
	return nil
}

func (db *Database) lockWriteDoc(conn Connection, doc *catalog.Document) error {
	ancestors, err := db.docAncestorIDs(doc)
	if err != nil {
		return err
	}
	db.locks.LockWriteDoc(conn, doc.ID, ancestors)
	return nil
}

func (db *Database) unlockDoc(conn Connection, doc *catalog.Document) {
	ancestors, err := db.docAncestorIDs(doc)
	if err != nil {
		return
	}
	db.locks.UnlockChain(conn, doc.ID, ancestors)
}

// TryLockWriteDoc acquires a write lock on a document (plus shared
// ancestor locks) with a timeout, surfacing Timeout on failure instead of
// blocking indefinitely (§5 "Cancellation and timeouts").
func (db *Database) TryLockWriteDoc(conn Connection, doc *catalog.Document, timeout time.Duration) error {
	ancestors, err := db.docAncestorIDs(doc)
	if err != nil {
		return err
	}
	return db.locks.TryLockWriteDoc(conn, doc.ID, ancestors, timeout)
}
