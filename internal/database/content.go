package database

import (
	"bytes"
	"io"
	"time"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/codec"
	"github.com/ostigter/xantippe/internal/secindex"
	"github.com/ostigter/xantippe/internal/xerr"
	"github.com/ostigter/xantippe/internal/xlog"
)

// PutDocument creates or replaces the document named name under parentURI:
// validating per the parent's effective policy (§4.3) if a Validator is
// installed, compressing per its effective compression policy (§4.6), and
// indexing the document (§4.4). keys seeds the indexed set for names not
// covered by any of the parent's effective index definitions; every
// declared index definition is additionally evaluated against data itself,
// via its xpath, and the extracted (type-coerced) value takes precedence
// over any same-named entry in keys. This is the insert/replace half of
// the data flow described in §2: validate-compress-place-index-unlock.
func (db *Database) PutDocument(conn Connection, parentURI, name string, mediaType catalog.MediaType, data []byte, keys map[string]catalog.TypedValue) (*catalog.Document, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	parent, err := db.GetCollection(parentURI)
	if err != nil {
		return nil, err
	}

	valMode, err := db.policy.GetEffectiveValidation(parent)
	if err != nil {
		return nil, err
	}
	if err := db.validateContent(valMode, mediaType, data); err != nil {
		return nil, err
	}

	mode, err := db.policy.GetEffectiveCompression(parent)
	if err != nil {
		return nil, err
	}

	doc, err := db.cat.ChildDocumentByName(parent.ID, name)
	created := false
	if err != nil {
		doc, err = db.cat.CreateDocument(parent.ID, name, mediaType, time.Now().UnixMilli())
		if err != nil {
			return nil, err
		}
		created = true
	}

	if err := db.lockWriteDoc(conn, doc); err != nil {
		if created {
			db.cat.DeleteDocument(doc.ID)
		}
		return nil, err
	}
	defer db.unlockDoc(conn, doc)

	stored, logicalLen, err := codec.Encode(codecMode(mode), data)
	if err != nil {
		return nil, err
	}
	if err := db.files.Store(doc.ID, bytes.NewReader(stored)); err != nil {
		return nil, err
	}

	if err := db.cat.UpdateDocumentContent(doc.ID, uint32(logicalLen), uint32(len(stored)), time.Now().UnixMilli()); err != nil {
		return nil, err
	}

	finalKeys := db.extractKeys(parent, mediaType, data, keys)

	db.index.RemoveDocument(parent.ID, doc.ID, doc.Keys)
	for keyName, v := range finalKeys {
		db.index.Add(parent.ID, doc.ID, keyName, v)
	}
	if err := db.cat.SetDocumentKeys(doc.ID, finalKeys); err != nil {
		return nil, err
	}

	return doc, nil
}

// extractKeys starts from the explicit keys a caller supplied, then
// overlays the result of evaluating every index definition effective at
// parent against data's xpath (§4.4). A definition that matches nothing or
// whose value fails type coercion is skipped with a warning rather than
// failing the write — the document is simply not indexed on that key.
func (db *Database) extractKeys(parent *catalog.Collection, mediaType catalog.MediaType, data []byte, keys map[string]catalog.TypedValue) map[string]catalog.TypedValue {
	defs, err := db.policy.EffectiveIndexDefs(parent)
	if err != nil || len(defs) == 0 {
		return keys
	}
	out := make(map[string]catalog.TypedValue, len(keys)+len(defs))
	for k, v := range keys {
		out[k] = v
	}
	log := xlog.WithComponent("secindex")
	for _, def := range defs {
		v, ok, diag := secindex.ExtractKey(def, mediaType, data)
		if !ok {
			if diag != "" {
				log.Warn().Str("database", db.name).Msg(diag)
			}
			continue
		}
		out[def.Name] = v
	}
	return out
}

// contentReader wraps the decompressed content stream so that closing it
// also releases the document's read lock, keeping the lock held for
// exactly the lifetime of the retrieve stream (§5 "Ordering guarantees").
type contentReader struct {
	io.ReadCloser
	unlock func()
}

func (c *contentReader) Close() error {
	err := c.ReadCloser.Close()
	c.unlock()
	return err
}

// GetContent returns the decompressed bytes of the document at uri as a
// stream. The caller must Close it before the database is shut down.
func (db *Database) GetContent(conn Connection, uri string) (io.ReadCloser, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	doc, err := db.GetDocument(uri)
	if err != nil {
		return nil, err
	}
	if err := db.lockReadDoc(conn, doc); err != nil {
		return nil, err
	}

	parent, err := db.cat.Collection(doc.ParentID)
	if err != nil {
		db.unlockDoc(conn, doc)
		return nil, err
	}
	mode, err := db.policy.GetEffectiveCompression(parent)
	if err != nil {
		db.unlockDoc(conn, doc)
		return nil, err
	}

	stream, err := db.files.Retrieve(doc.ID)
	if err != nil {
		db.unlockDoc(conn, doc)
		return nil, err
	}
	rc, err := codec.Decode(codecMode(mode), stream)
	if err != nil {
		stream.Close()
		db.unlockDoc(conn, doc)
		return nil, err
	}
	return &contentReader{ReadCloser: rc, unlock: func() { db.unlockDoc(conn, doc) }}, nil
}

// FindDocuments resolves a conjunctive key query under uri, optionally
// recursing into descendant collections (§4.4).
func (db *Database) FindDocuments(uri string, keys []SecondaryKey, recursive bool) ([]uint32, error) {
	if err := db.requireRunning(); err != nil {
		return nil, err
	}
	col, err := db.GetCollection(uri)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, xerr.New(xerr.InvalidArgument, "findDocuments requires at least one key")
	}
	return db.index.FindDocuments(db.cat, col.ID, toIndexKeys(keys), recursive)
}

func codecMode(m catalog.CompressionMode) codec.Mode {
	if m == catalog.CompressionDeflate {
		return codec.Deflate
	}
	return codec.None
}
