package database

import (
	"io"

	"github.com/ostigter/xantippe/internal/queryadapter"
)

// Database implements queryadapter.Adapter directly: every resolve uses a
// short-lived Connection of its own, since the query engine has no
// session concept of its own to reuse (§4.7 is a contract surface, not a
// locking API).

// ResolveDocument implements queryadapter.DocumentSource.
func (db *Database) ResolveDocument(uri string) (queryadapter.DocumentStream, bool) {
	rc, err := db.GetContent(NewConnection(), uri)
	if err != nil {
		return nil, false
	}
	return rc, true
}

// sliceIterator adapts a pre-computed list of URIs to
// queryadapter.DocumentURIIterator.
type sliceIterator struct {
	uris []string
	pos  int
}

func (it *sliceIterator) Next() (string, bool) {
	if it.pos >= len(it.uris) {
		return "", false
	}
	uri := it.uris[it.pos]
	it.pos++
	return uri, true
}

// ResolveCollection implements queryadapter.CollectionSource.
func (db *Database) ResolveCollection(uri string, params queryadapter.CollectionParams) (queryadapter.DocumentURIIterator, bool) {
	col, err := db.GetCollection(uri)
	if err != nil {
		return nil, false
	}
	var uris []string
	db.collectDocumentURIs(uri, col.ID, params.Recurse, &uris)
	return &sliceIterator{uris: uris}, true
}

func (db *Database) collectDocumentURIs(colURI string, colID uint32, recurse bool, out *[]string) {
	cols, docs, err := db.cat.Children(colID)
	if err != nil {
		return
	}
	for _, d := range docs {
		*out = append(*out, joinURI(colURI, d.Name))
	}
	if !recurse {
		return
	}
	for _, c := range cols {
		db.collectDocumentURIs(joinURI(colURI, c.Name), c.ID, recurse, out)
	}
}

func joinURI(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// ResolveModule implements queryadapter.ModuleSource: each hint is
// stripped of a "file:" scheme and tried as a stored document URI in
// turn; the first one that resolves wins (§4.7).
func (db *Database) ResolveModule(namespace string, locationHints []string) ([]byte, bool) {
	_ = namespace // namespace-to-module mapping beyond location hints is left to the query engine
	for _, hint := range locationHints {
		uri := queryadapter.StripFileScheme(hint)
		rc, err := db.GetContent(NewConnection(), uri)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		return data, true
	}
	return nil, false
}
