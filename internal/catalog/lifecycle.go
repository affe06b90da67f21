package catalog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/ostigter/xantippe/internal/xerr"
	"github.com/ostigter/xantippe/internal/xlog"
)

const (
	metadataFileName    = "metadata.dbx"
	collectionsFileName = "collections.dbx"
)

// Store owns a Catalog's lifecycle and persistence to metadata.dbx /
// collections.dbx, mirroring the teacher's start/shutdown/sync pattern in
// internal/filestore but for the structural tree rather than raw bytes.
type Store struct {
	dir string

	mu      sync.Mutex
	running bool
	cat     *Catalog
}

// NewStore creates a catalog persistence layer rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Start loads the catalog from disk, or synthesizes a default root (§4.2)
// if collections.dbx is absent.
func (s *Store) Start() (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, xerr.New(xerr.InvalidState, "catalog store already running")
	}
	log := xlog.WithComponent("catalog")

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, xerr.Wrap(xerr.Io, "create catalog directory", err)
	}

	nextID, err := loadNextID(filepath.Join(s.dir, metadataFileName))
	if err != nil {
		return nil, err
	}

	colPath := filepath.Join(s.dir, collectionsFileName)
	data, err := os.ReadFile(colPath)
	var cat *Catalog
	switch {
	case os.IsNotExist(err):
		cat = NewEmpty()
		log.Info().Msg("no collections.dbx found, synthesizing default root")
	case err != nil:
		return nil, xerr.Wrap(xerr.Io, "read collections.dbx", err)
	default:
		cat, err = loadCatalog(data)
		if err != nil {
			return nil, err
		}
	}
	if nextID > cat.NextID() {
		cat.bumpNextIDAbove(nextID - 1)
	}

	s.cat = cat
	s.running = true
	log.Info().Uint32("nextId", cat.NextID()).Msg("catalog started")
	return cat, nil
}

// IsRunning reports whether the store has been started.
func (s *Store) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Shutdown persists the catalog and releases it.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return xerr.New(xerr.NotRunning, "catalog store is not running")
	}
	err := s.persistLocked()
	s.running = false
	s.cat = nil
	if err != nil {
		return err
	}
	xlog.WithComponent("catalog").Info().Msg("catalog shut down")
	return nil
}

// Sync persists the current catalog state without shutting down.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return xerr.New(xerr.NotRunning, "catalog store is not running")
	}
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if err := writeNextID(filepath.Join(s.dir, metadataFileName), s.cat.NextID()); err != nil {
		return err
	}
	return persistCatalog(filepath.Join(s.dir, collectionsFileName), s.cat)
}

func loadNextID(path string) (uint32, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, xerr.Wrap(xerr.Io, "read metadata.dbx", err)
	}
	if len(data) < 4 {
		return 0, xerr.New(xerr.Io, "metadata.dbx truncated")
	}
	return binary.BigEndian.Uint32(data[:4]), nil
}

func writeNextID(path string, nextID uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], nextID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return xerr.Wrap(xerr.Io, "write metadata.dbx", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerr.Wrap(xerr.Io, "publish metadata.dbx", err)
	}
	return nil
}

// loadCatalog parses a depth-first collections.dbx blob rooted at the
// single top-level collection record.
func loadCatalog(data []byte) (*Catalog, error) {
	r := bytes.NewReader(data)
	byID := make(map[uint32]*Collection)
	docsByID := make(map[uint32]*Document)
	root, err := readCollection(r, RootParentID, byID, docsByID)
	if err != nil {
		return nil, xerr.Wrap(xerr.Io, "parse collections.dbx", err)
	}

	var maxID uint32
	for id := range byID {
		if id > maxID {
			maxID = id
		}
	}
	for id := range docsByID {
		if id > maxID {
			maxID = id
		}
	}

	cat := &Catalog{
		collections: byID,
		documents:   docsByID,
		rootID:      root.ID,
		nextID:      maxID + 1,
	}
	return cat, nil
}

// persistCatalog writes the catalog's full tree to path via the standard
// write-to-temp-then-publish discipline (matching the teacher's filestore
// index persistence).
func persistCatalog(path string, cat *Catalog) error {
	cat.mu.RLock()
	root := cat.collections[cat.rootID]
	byID := cat.collections
	docsByID := cat.documents
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	err := writeCollection(bw, root, byID, docsByID)
	if err == nil {
		err = bw.Flush()
	}
	cat.mu.RUnlock()
	if err != nil {
		return xerr.Wrap(xerr.Io, "serialize collections.dbx", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return xerr.Wrap(xerr.Io, "create collections.dbx.tmp", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return xerr.Wrap(xerr.Io, "write collections.dbx.tmp", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return xerr.Wrap(xerr.Io, "fsync collections.dbx.tmp", err)
	}
	if err := f.Close(); err != nil {
		return xerr.Wrap(xerr.Io, "close collections.dbx.tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return xerr.Wrap(xerr.Io, "publish collections.dbx", err)
	}
	return nil
}
