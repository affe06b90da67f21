package filestore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// loadIndex reads the entry table from path (§4.1 "Index file"). A missing
// file is treated as empty, matching start()'s documented behavior.
func loadIndex(path string) ([]*entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var count uint32
	if err := binary.Read(f, binary.BigEndian, &count); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read entry count: %w", err)
	}

	entries := make([]*entry, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec [12]byte
		if _, err := io.ReadFull(f, rec[:]); err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		entries = append(entries, &entry{
			id:     binary.BigEndian.Uint32(rec[0:4]),
			offset: binary.BigEndian.Uint32(rec[4:8]),
			length: binary.BigEndian.Uint32(rec[8:12]),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })
	return entries, nil
}

// saveIndex rewrites the entry table at path. Entries are written in
// offset order so a subsequent loadIndex needs no further sort.
func saveIndex(path string, entries []*entry) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	sorted := make([]*entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })

	if err := binary.Write(f, binary.BigEndian, uint32(len(sorted))); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	for _, e := range sorted {
		var rec [12]byte
		binary.BigEndian.PutUint32(rec[0:4], e.id)
		binary.BigEndian.PutUint32(rec[4:8], e.offset)
		binary.BigEndian.PutUint32(rec[8:12], e.length)
		if _, err := f.Write(rec[:]); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
