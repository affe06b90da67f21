// Package queryadapter exposes the database to an external query engine
// (spec §4.7): a document resolver, a collection resolver with optional
// recursion, and a module resolver for stored XQuery modules. Missing
// documents/collections/modules are reported as "not found" rather than
// as an error — the engine treats an absent resource as empty, not
// exceptional. The query engine itself is out of scope; this package
// only defines the contract surface it would be driven through.
//
// Grounded on the teacher's nfsmount/graphfs.go adapter pattern, which
// exposes the same underlying graph store to an unrelated external
// protocol (NFS) through a small resolver interface rather than coupling
// the store to that protocol's types.
package queryadapter

import (
	"io"
	"strings"
)

// DocumentStream is the minimal streaming surface a resolved document
// exposes to the query engine.
type DocumentStream interface {
	io.Reader
	io.Closer
}

// DocumentSource resolves a document URI to its content stream.
type DocumentSource interface {
	ResolveDocument(uri string) (DocumentStream, bool)
}

// CollectionParams carries the query parameters recognized when resolving
// a collection URI. Recurse is the only one the spec defines.
type CollectionParams struct {
	Recurse bool
}

// ParseParams interprets the recurse=yes|true parameter form the spec
// names explicitly; unrecognized parameters are ignored.
func ParseParams(params map[string]string) CollectionParams {
	v := strings.ToLower(params["recurse"])
	return CollectionParams{Recurse: v == "yes" || v == "true"}
}

// DocumentURIIterator enumerates document URIs one at a time.
type DocumentURIIterator interface {
	// Next returns the next document URI, or ("", false) when exhausted.
	Next() (string, bool)
}

// CollectionSource resolves a collection URI (with recursion) to an
// iterator over the document URIs it contains.
type CollectionSource interface {
	ResolveCollection(uri string, params CollectionParams) (DocumentURIIterator, bool)
}

// ModuleSource resolves an XQuery module by namespace and location hints.
// Hints prefixed with "file:" have the prefix stripped before lookup; the
// first hint that resolves wins.
type ModuleSource interface {
	ResolveModule(namespace string, locationHints []string) ([]byte, bool)
}

// StripFileScheme removes a leading "file:" prefix from a location hint,
// leaving other hints untouched.
func StripFileScheme(hint string) string {
	return strings.TrimPrefix(hint, "file:")
}

// Adapter aggregates the three resolver contracts the query engine is
// driven through.
type Adapter interface {
	DocumentSource
	CollectionSource
	ModuleSource
}
