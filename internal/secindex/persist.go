package secindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ostigter/xantippe/internal/catalog"
	"github.com/ostigter/xantippe/internal/xerr"
	"github.com/ostigter/xantippe/internal/xlog"
)

const indicesFileName = "indices.dbx"

// storedEntry is one (type, value, docIDs) posting as read back from disk,
// before it has been validated against the live catalog.
type storedEntry struct {
	colID   uint32
	keyName string
	value   catalog.TypedValue
	docIDs  []uint32
}

// Load reads indices.dbx from dir, validates every document ID against
// resolveDoc (typically catalog.Catalog.Document), drops unknown IDs with
// a warning, and returns the populated index (§4.4: "catalog is loaded
// first; the index file is loaded second and validated against the
// catalog"). A missing file yields an empty index.
func Load(dir string, resolveDoc func(id uint32) bool) (*Index, []string, error) {
	path := filepath.Join(dir, indicesFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil, nil
	}
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.Io, "read indices.dbx", err)
	}

	entries, err := decodeEntries(bytes.NewReader(data))
	if err != nil {
		return nil, nil, xerr.Wrap(xerr.Io, "parse indices.dbx", err)
	}

	log := xlog.WithComponent("secindex")
	idx := New()
	var diagnostics []string
	for _, e := range entries {
		kept := e.docIDs[:0]
		for _, id := range e.docIDs {
			if resolveDoc(id) {
				kept = append(kept, id)
			} else {
				msg := fmt.Sprintf("dropping unknown document %d from index %q in collection %d", id, e.keyName, e.colID)
				diagnostics = append(diagnostics, msg)
				log.Warn().Msg(msg)
			}
		}
		b := idx.bucketFor(e.colID, e.keyName, e.value, true)
		for _, id := range kept {
			b.bm.Add(id)
		}
	}
	return idx, diagnostics, nil
}

// Save persists idx to indices.dbx under dir via write-to-temp-then-rename.
func Save(dir string, idx *Index) error {
	idx.mu.RLock()
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := encodeEntries(bw, idx)
	if err == nil {
		err = bw.Flush()
	}
	idx.mu.RUnlock()
	if err != nil {
		return xerr.Wrap(xerr.Io, "serialize indices.dbx", err)
	}

	path := filepath.Join(dir, indicesFileName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return xerr.Wrap(xerr.Io, "create indices.dbx.tmp", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return xerr.Wrap(xerr.Io, "write indices.dbx.tmp", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return xerr.Wrap(xerr.Io, "fsync indices.dbx.tmp", err)
	}
	if err := f.Close(); err != nil {
		return xerr.Wrap(xerr.Io, "close indices.dbx.tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerr.Wrap(xerr.Io, "publish indices.dbx", err)
	}
	return nil
}

// encodeEntries writes the grammar from §6: u32 colCount; per collection
// u32 colId, u32 keyCount; per key utf8 keyName, u32 valueCount; per value
// TypedValue, u32 docCount, u32 docId[docCount].
func encodeEntries(w io.Writer, idx *Index) error {
	colIDs := make([]uint32, 0, len(idx.collections))
	for id := range idx.collections {
		colIDs = append(colIDs, id)
	}
	sort.Slice(colIDs, func(i, j int) bool { return colIDs[i] < colIDs[j] })

	if err := writeU32(w, uint32(len(colIDs))); err != nil {
		return err
	}
	for _, colID := range colIDs {
		byKey := idx.collections[colID]
		keyNames := make([]string, 0, len(byKey))
		for name := range byKey {
			keyNames = append(keyNames, name)
		}
		sort.Strings(keyNames)

		if err := writeU32(w, colID); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(keyNames))); err != nil {
			return err
		}
		for _, keyName := range keyNames {
			byValue := byKey[keyName]
			valueKeys := make([]string, 0, len(byValue))
			for vk := range byValue {
				valueKeys = append(valueKeys, vk)
			}
			sort.Strings(valueKeys)

			if err := writeString(w, keyName); err != nil {
				return err
			}
			if err := writeU32(w, uint32(len(valueKeys))); err != nil {
				return err
			}
			for _, vk := range valueKeys {
				b := byValue[vk]
				if err := writeTypedValue(w, b.value); err != nil {
					return err
				}
				ids := b.bm.ToArray()
				if err := writeU32(w, uint32(len(ids))); err != nil {
					return err
				}
				for _, id := range ids {
					if err := writeU32(w, id); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func decodeEntries(r io.Reader) ([]storedEntry, error) {
	colCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var entries []storedEntry
	for i := uint32(0); i < colCount; i++ {
		colID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		keyCount, err := readU32(r)
		if err != nil {
			return nil, err
		}
		for k := uint32(0); k < keyCount; k++ {
			keyName, err := readString(r)
			if err != nil {
				return nil, err
			}
			valueCount, err := readU32(r)
			if err != nil {
				return nil, err
			}
			for v := uint32(0); v < valueCount; v++ {
				val, err := readTypedValue(r)
				if err != nil {
					return nil, err
				}
				docCount, err := readU32(r)
				if err != nil {
					return nil, err
				}
				ids := make([]uint32, docCount)
				for d := uint32(0); d < docCount; d++ {
					id, err := readU32(r)
					if err != nil {
						return nil, err
					}
					ids[d] = id
				}
				entries = append(entries, storedEntry{
					colID:   colID,
					keyName: keyName,
					value:   val,
					docIDs:  ids,
				})
			}
		}
	}
	return entries, nil
}

// --- primitive helpers (same big-endian primitives as
// internal/catalog/binary.go; unlike that file, INT and FLOAT values are
// written here at 64-bit width) --

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeU8(w io.Writer, v uint8) error { _, err := w.Write([]byte{v}); return err }

func writeI64(w io.Writer, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeTypedValue(w io.Writer, v catalog.TypedValue) error {
	if err := writeU8(w, uint8(v.Type)); err != nil {
		return err
	}
	switch v.Type {
	case catalog.IndexString:
		return writeString(w, v.Str)
	case catalog.IndexInt, catalog.IndexLong:
		return writeI64(w, v.Int)
	case catalog.IndexDate:
		return writeI64(w, v.DateMs)
	case catalog.IndexFloat, catalog.IndexDouble:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Float))
		_, err := w.Write(b[:])
		return err
	default:
		return fmt.Errorf("unknown typed value type %d", v.Type)
	}
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readI64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
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

func readTypedValue(r io.Reader) (catalog.TypedValue, error) {
	typ, err := readU8(r)
	if err != nil {
		return catalog.TypedValue{}, err
	}
	v := catalog.TypedValue{Type: catalog.IndexType(typ)}
	switch v.Type {
	case catalog.IndexString:
		s, err := readString(r)
		if err != nil {
			return catalog.TypedValue{}, err
		}
		v.Str = s
	case catalog.IndexInt, catalog.IndexLong:
		n, err := readI64(r)
		if err != nil {
			return catalog.TypedValue{}, err
		}
		v.Int = n
	case catalog.IndexDate:
		n, err := readI64(r)
		if err != nil {
			return catalog.TypedValue{}, err
		}
		v.DateMs = n
	case catalog.IndexFloat, catalog.IndexDouble:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return catalog.TypedValue{}, err
		}
		v.Float = math.Float64frombits(binary.BigEndian.Uint64(b[:]))
	default:
		return catalog.TypedValue{}, fmt.Errorf("unknown typed value type %d", v.Type)
	}
	return v, nil
}
