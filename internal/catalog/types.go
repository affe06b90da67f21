// Package catalog implements the hierarchical, ID-addressed object graph of
// collections and documents (spec §3, §4.2): an in-memory tree persisted as
// a depth-first binary record, with URI resolution and lifecycle
// operations (create/delete/rename/setPolicy).
//
// Grounded on the teacher's internal/graph/graph.go Node/MemoryStore shape
// (a flat ID-keyed map guarded by sync.RWMutex, an AddNode/indexNode
// pattern for secondary bookkeeping) generalized here from a flat node
// graph into an owned Collection/Document tree, and on
// internal/graph/arena.go's manual big-endian binary encoding style for
// the depth-first persistence format mandated by §4.2/§6.
package catalog

import "math"

// ValidationMode is a collection's explicit validation policy (§3).
type ValidationMode uint8

const (
	ValidationOff ValidationMode = iota
	ValidationOn
	ValidationAuto
	ValidationInherit
)

func (m ValidationMode) String() string {
	switch m {
	case ValidationOff:
		return "OFF"
	case ValidationOn:
		return "ON"
	case ValidationAuto:
		return "AUTO"
	case ValidationInherit:
		return "INHERIT"
	default:
		return "UNKNOWN"
	}
}

// CompressionMode is a collection's explicit compression policy (§3).
type CompressionMode uint8

const (
	CompressionNone CompressionMode = iota
	CompressionDeflate
	CompressionInherit
)

func (m CompressionMode) String() string {
	switch m {
	case CompressionNone:
		return "NONE"
	case CompressionDeflate:
		return "DEFLATE"
	case CompressionInherit:
		return "INHERIT"
	default:
		return "UNKNOWN"
	}
}

// IndexType is the type tag of a secondary-index definition and, by
// extension, of any document key value it applies to (§3, §6).
type IndexType uint8

const (
	IndexString IndexType = iota
	IndexInt
	IndexLong
	IndexFloat
	IndexDouble
	IndexDate
)

func (t IndexType) String() string {
	switch t {
	case IndexString:
		return "STRING"
	case IndexInt:
		return "INT"
	case IndexLong:
		return "LONG"
	case IndexFloat:
		return "FLOAT"
	case IndexDouble:
		return "DOUBLE"
	case IndexDate:
		return "DATE"
	default:
		return "UNKNOWN"
	}
}

// MediaType classifies a document's bytes (spec §1: "typed as XML, schema,
// text, or binary").
type MediaType uint8

const (
	MediaXML MediaType = iota
	MediaSchema
	MediaText
	MediaBinary
)

func (m MediaType) String() string {
	switch m {
	case MediaXML:
		return "XML"
	case MediaSchema:
		return "SCHEMA"
	case MediaText:
		return "TEXT"
	case MediaBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// IndexDef is a secondary-index definition attached to a collection and
// applying, by inheritance, to that collection and its descendants (§3).
type IndexDef struct {
	ID    uint32
	Name  string
	XPath string
	Type  IndexType
}

// RootParentID is the sentinel parent ID of the single root collection.
const RootParentID int64 = -1

// Collection is a named node in the namespace tree (§3).
type Collection struct {
	ID       uint32
	Name     string
	ParentID int64 // RootParentID for the root

	ExplicitValidation  ValidationMode
	ExplicitCompression CompressionMode
	IndexDefs           []IndexDef

	ChildCollectionIDs []uint32
	ChildDocumentIDs   []uint32
}

// Document is a named leaf carrying bytes, a media type, and optional typed
// keys (§3).
type Document struct {
	ID           uint32
	Name         string
	ParentID     uint32
	MediaType    MediaType
	Length       uint32
	StoredLength uint32
	Created      int64
	Modified     int64
	Keys         map[string]TypedValue
}

// TypedValue is a typed document key value (§3 "Index value table", §6
// "TypedValue").
type TypedValue struct {
	Type   IndexType
	Str    string
	Int    int64
	Float  float64
	DateMs int64
}

// Key returns a canonical string form of v suitable for use as a map key,
// implementing the "type-appropriate equivalence" required by §3.
func (v TypedValue) Key() string {
	switch v.Type {
	case IndexString:
		return "s:" + v.Str
	case IndexInt, IndexLong:
		return "i:" + itoa(v.Int)
	case IndexFloat, IndexDouble:
		return "f:" + ftoa(v.Float)
	case IndexDate:
		return "d:" + itoa(v.DateMs)
	default:
		return ""
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ftoa(f float64) string {
	// Stable, type-appropriate equivalence only needs a deterministic
	// canonical form, not a human-readable one — bit pattern is exact.
	bits := int64(math.Float64bits(f))
	return itoa(bits)
}
