package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// writeCollection serializes c and its subtree depth-first, per §4.2's
// record grammar. byID/docsByID resolve child IDs to their full records.
func writeCollection(w io.Writer, c *Collection, byID map[uint32]*Collection, docsByID map[uint32]*Document) error {
	if err := writeU32(w, c.ID); err != nil {
		return err
	}
	if err := writeString(w, c.Name); err != nil {
		return err
	}
	if err := writeU8(w, uint8(c.ExplicitValidation)); err != nil {
		return err
	}
	if err := writeU8(w, uint8(c.ExplicitCompression)); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(c.IndexDefs))); err != nil {
		return err
	}
	for _, idx := range c.IndexDefs {
		if err := writeU32(w, idx.ID); err != nil {
			return err
		}
		if err := writeString(w, idx.Name); err != nil {
			return err
		}
		if err := writeString(w, idx.XPath); err != nil {
			return err
		}
		if err := writeU8(w, uint8(idx.Type)); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(c.ChildDocumentIDs))); err != nil {
		return err
	}
	for _, did := range c.ChildDocumentIDs {
		d, ok := docsByID[did]
		if !ok {
			return fmt.Errorf("dangling document id %d under collection %d", did, c.ID)
		}
		if err := writeDocument(w, d); err != nil {
			return err
		}
	}

	if err := writeU32(w, uint32(len(c.ChildCollectionIDs))); err != nil {
		return err
	}
	for _, cid := range c.ChildCollectionIDs {
		child, ok := byID[cid]
		if !ok {
			return fmt.Errorf("dangling collection id %d under collection %d", cid, c.ID)
		}
		if err := writeCollection(w, child, byID, docsByID); err != nil {
			return err
		}
	}
	return nil
}

func writeDocument(w io.Writer, d *Document) error {
	if err := writeU32(w, d.ID); err != nil {
		return err
	}
	if err := writeString(w, d.Name); err != nil {
		return err
	}
	if err := writeU8(w, uint8(d.MediaType)); err != nil {
		return err
	}
	if err := writeU32(w, d.Length); err != nil {
		return err
	}
	if err := writeU32(w, d.StoredLength); err != nil {
		return err
	}
	if err := writeI64(w, d.Created); err != nil {
		return err
	}
	if err := writeI64(w, d.Modified); err != nil {
		return err
	}

	names := make([]string, 0, len(d.Keys))
	for name := range d.Keys {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := writeU32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeTypedValue(w, d.Keys[name]); err != nil {
			return err
		}
	}
	return nil
}

func writeTypedValue(w io.Writer, v TypedValue) error {
	if err := writeU8(w, uint8(v.Type)); err != nil {
		return err
	}
	switch v.Type {
	case IndexString:
		return writeString(w, v.Str)
	case IndexInt:
		return writeI32(w, int32(v.Int))
	case IndexLong, IndexDate:
		n := v.Int
		if v.Type == IndexDate {
			n = v.DateMs
		}
		return writeI64(w, n)
	case IndexFloat:
		return writeU32(w, math.Float32bits(float32(v.Float)))
	case IndexDouble:
		return writeU64(w, math.Float64bits(v.Float))
	default:
		return fmt.Errorf("unknown typed value type %d", v.Type)
	}
}

// readCollection deserializes one Collection (and recursively its subtree),
// registering every Collection/Document it encounters into out/docsOut.
func readCollection(r io.Reader, parentID int64, out map[uint32]*Collection, docsOut map[uint32]*Document) (*Collection, error) {
	id, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	vmode, err := readU8(r)
	if err != nil {
		return nil, err
	}
	cmode, err := readU8(r)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		ID:                  id,
		Name:                name,
		ParentID:            parentID,
		ExplicitValidation:  ValidationMode(vmode),
		ExplicitCompression: CompressionMode(cmode),
	}

	idxCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < idxCount; i++ {
		idxID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		idxName, err := readString(r)
		if err != nil {
			return nil, err
		}
		xpath, err := readString(r)
		if err != nil {
			return nil, err
		}
		typ, err := readU8(r)
		if err != nil {
			return nil, err
		}
		c.IndexDefs = append(c.IndexDefs, IndexDef{ID: idxID, Name: idxName, XPath: xpath, Type: IndexType(typ)})
	}

	docCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < docCount; i++ {
		d, err := readDocument(r, id)
		if err != nil {
			return nil, err
		}
		docsOut[d.ID] = d
		c.ChildDocumentIDs = append(c.ChildDocumentIDs, d.ID)
	}

	subCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out[id] = c
	for i := uint32(0); i < subCount; i++ {
		child, err := readCollection(r, int64(id), out, docsOut)
		if err != nil {
			return nil, err
		}
		c.ChildCollectionIDs = append(c.ChildCollectionIDs, child.ID)
	}
	return c, nil
}

func readDocument(r io.Reader, parentID uint32) (*Document, error) {
	id, err := readU32(r)
	if err != nil {
		return nil, err
	}
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	mt, err := readU8(r)
	if err != nil {
		return nil, err
	}
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	storedLength, err := readU32(r)
	if err != nil {
		return nil, err
	}
	created, err := readI64(r)
	if err != nil {
		return nil, err
	}
	modified, err := readI64(r)
	if err != nil {
		return nil, err
	}
	keyCount, err := readU32(r)
	if err != nil {
		return nil, err
	}

	d := &Document{
		ID:           id,
		Name:         name,
		ParentID:     parentID,
		MediaType:    MediaType(mt),
		Length:       length,
		StoredLength: storedLength,
		Created:      created,
		Modified:     modified,
		Keys:         make(map[string]TypedValue, keyCount),
	}
	for i := uint32(0); i < keyCount; i++ {
		keyName, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readTypedValue(r)
		if err != nil {
			return nil, err
		}
		d.Keys[keyName] = v
	}
	return d, nil
}

func readTypedValue(r io.Reader) (TypedValue, error) {
	typ, err := readU8(r)
	if err != nil {
		return TypedValue{}, err
	}
	v := TypedValue{Type: IndexType(typ)}
	switch v.Type {
	case IndexString:
		s, err := readString(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.Str = s
	case IndexInt:
		n, err := readI32(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.Int = int64(n)
	case IndexLong:
		n, err := readI64(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.Int = n
	case IndexDate:
		n, err := readI64(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.DateMs = n
	case IndexFloat:
		bits, err := readU32(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.Float = float64(math.Float32frombits(bits))
	case IndexDouble:
		bits, err := readU64(r)
		if err != nil {
			return TypedValue{}, err
		}
		v.Float = math.Float64frombits(bits)
	default:
		return TypedValue{}, fmt.Errorf("unknown typed value type %d", v.Type)
	}
	return v, nil
}

// --- primitive helpers -------------------------------------------------

func writeU8(w io.Writer, v uint8) error  { _, err := w.Write([]byte{v}); return err }
func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}
func writeI32(w io.Writer, v int32) error { return writeU32(w, uint32(v)) }
func writeI64(w io.Writer, v int64) error { return writeU64(w, uint64(v)) }

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
func readI32(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}
func readI64(r io.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}
func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
