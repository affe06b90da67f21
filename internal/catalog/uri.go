package catalog

import (
	"fmt"
	"strings"

	"github.com/ostigter/xantippe/internal/xerr"
)

// validateSegment rejects names that cannot appear as a single path segment
// (§4.2 URI grammar): empty, or containing the "/" separator.
func validateSegment(name string) error {
	if name == "" {
		return xerr.New(xerr.InvalidArgument, "name must not be empty")
	}
	if strings.Contains(name, "/") {
		return xerr.New(xerr.InvalidArgument, "name must not contain '/'")
	}
	return nil
}

// ResolvedKind distinguishes what a URI resolved to.
type ResolvedKind int

const (
	ResolvedCollection ResolvedKind = iota
	ResolvedDocument
)

// Resolved is the result of resolving a URI to a catalog object.
type Resolved struct {
	Kind       ResolvedKind
	Collection *Collection
	Document   *Document
}

// ResolveURI walks uri from the root, left to right, one path segment at a
// time (§4.2): an absolute path starting with "/", empty segments
// forbidden except for the root path "/" itself. Intermediate segments
// must name collections; only the final segment may name a document.
func (c *Catalog) ResolveURI(uri string) (*Resolved, error) {
	if !strings.HasPrefix(uri, "/") {
		return nil, xerr.New(xerr.InvalidArgument, "uri must be absolute (start with '/')")
	}
	if uri == "/" {
		return &Resolved{Kind: ResolvedCollection, Collection: c.GetRoot()}, nil
	}

	segments := strings.Split(strings.TrimPrefix(uri, "/"), "/")
	cur := c.GetRoot()
	for i, seg := range segments {
		if seg == "" {
			return nil, xerr.New(xerr.InvalidArgument, "uri must not contain empty segments")
		}
		last := i == len(segments)-1
		child, err := c.ChildCollectionByName(cur.ID, seg)
		if err == nil {
			cur = child
			continue
		}
		if !last {
			return nil, xerr.New(xerr.NotFound, fmt.Sprintf("uri segment %q not found", seg))
		}
		doc, derr := c.ChildDocumentByName(cur.ID, seg)
		if derr != nil {
			return nil, xerr.New(xerr.NotFound, fmt.Sprintf("uri not found: %s", uri))
		}
		return &Resolved{Kind: ResolvedDocument, Document: doc}, nil
	}
	return &Resolved{Kind: ResolvedCollection, Collection: cur}, nil
}

// ParentURI splits uri into its parent collection path and final segment
// name. uri must be absolute and not the root.
func ParentURI(uri string) (parent, name string, err error) {
	if !strings.HasPrefix(uri, "/") || uri == "/" {
		return "", "", xerr.New(xerr.InvalidArgument, "uri must be an absolute, non-root path")
	}
	trimmed := strings.TrimPrefix(uri, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/", trimmed, nil
	}
	return "/" + trimmed[:idx], trimmed[idx+1:], nil
}
