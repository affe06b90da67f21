package database

import (
	"sync"

	"github.com/ostigter/xantippe/internal/xerr"
)

// Manager manages named Database instances at filesystem paths (§6
// DatabaseManager).
type Manager struct {
	mu  sync.Mutex
	dbs map[string]*Database
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{dbs: make(map[string]*Database)}
}

// Register adds a new, not-yet-started Database under name rooted at dir.
func (m *Manager) Register(name, dir string) (*Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.dbs[name]; exists {
		return nil, xerr.New(xerr.NameInUse, "database name already registered: "+name)
	}
	db := New(name, dir)
	m.dbs[name] = db
	return db, nil
}

// Get returns the Database registered under name.
func (m *Manager) Get(name string) (*Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.dbs[name]
	if !ok {
		return nil, xerr.New(xerr.NotFound, "no database registered under name: "+name)
	}
	return db, nil
}

// Unregister shuts down (if running) and removes the named database.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	db, ok := m.dbs[name]
	if !ok {
		m.mu.Unlock()
		return xerr.New(xerr.NotFound, "no database registered under name: "+name)
	}
	delete(m.dbs, name)
	m.mu.Unlock()

	if db.IsRunning() {
		return db.Shutdown()
	}
	return nil
}

// Names lists every registered database name.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.dbs))
	for name := range m.dbs {
		out = append(out, name)
	}
	return out
}
