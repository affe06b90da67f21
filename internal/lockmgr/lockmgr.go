// Package lockmgr implements reentrant, hierarchical read/write locking
// over catalog object IDs (spec §4.5): locking a document or collection
// also takes a shared read lock on every ancestor up to the root, so a
// writer never blocks an unrelated reader elsewhere in the tree.
//
// Grounded on the teacher's internal/graph/hotswap.go sync.RWMutex-guarded
// swap wrapper, generalized here from one global lock to a per-object-ID
// table with reentry counts and sync.Cond-based waiting; holder identity
// follows the pack's own use of google/uuid for session/connection IDs
// (cuemby-warren, marmos91-dittofs).
package lockmgr

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ostigter/xantippe/internal/xerr"
)

// Connection identifies a lock holder across reentrant acquisitions.
type Connection uuid.UUID

// NewConnection mints a fresh holder identity.
func NewConnection() Connection {
	return Connection(uuid.New())
}

type mode int

const (
	modeNone mode = iota
	modeShared
	modeExclusive
)

// node is the lock state for a single object ID.
type node struct {
	mu      sync.Mutex
	cond    *sync.Cond
	mode    mode
	holders map[Connection]int
}

func newNode() *node {
	n := &node{holders: make(map[Connection]int)}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// acquire blocks until conn holds the lock on n in the requested mode,
// honoring reentry: a connection that already holds a lock (shared or
// exclusive) may always re-acquire it in a mode no stronger than what it
// holds, and may upgrade shared to exclusive only when it is the sole
// current holder.
func (n *node) acquire(conn Connection, exclusive bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		if n.mode == modeNone {
			if exclusive {
				n.mode = modeExclusive
			} else {
				n.mode = modeShared
			}
			n.holders[conn]++
			return
		}
		if cnt := n.holders[conn]; cnt > 0 {
			if !exclusive || n.mode == modeExclusive {
				n.holders[conn]++
				return
			}
			if len(n.holders) == 1 {
				n.mode = modeExclusive
				n.holders[conn]++
				return
			}
		} else if !exclusive && n.mode == modeShared {
			n.holders[conn]++
			return
		}
		n.cond.Wait()
	}
}

// tryAcquire is acquire with a deadline; it returns false on timeout
// instead of blocking forever (SUPPLEMENTAL: spec §9 leaves fairness to
// acquisition ordering, this only adds an escape hatch for callers that
// cannot wait indefinitely).
func (n *node) tryAcquire(conn Connection, exclusive bool, deadline time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		if n.mode == modeNone {
			if exclusive {
				n.mode = modeExclusive
			} else {
				n.mode = modeShared
			}
			n.holders[conn]++
			return true
		}
		if cnt := n.holders[conn]; cnt > 0 {
			if !exclusive || n.mode == modeExclusive {
				n.holders[conn]++
				return true
			}
			if len(n.holders) == 1 {
				n.mode = modeExclusive
				n.holders[conn]++
				return true
			}
		} else if !exclusive && n.mode == modeShared {
			n.holders[conn]++
			return true
		}
		if !waitUntil(n.cond, deadline) {
			return false
		}
	}
}

func (n *node) release(conn Connection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	cnt, ok := n.holders[conn]
	if !ok || cnt == 0 {
		return xerr.New(xerr.LockStateError, "release of a lock not held by this connection")
	}
	cnt--
	if cnt == 0 {
		delete(n.holders, conn)
		if len(n.holders) == 0 {
			n.mode = modeNone
			n.cond.Broadcast()
		}
	} else {
		n.holders[conn] = cnt
	}
	return nil
}

// Manager is the lock table for one database, keyed by catalog object ID.
type Manager struct {
	mu    sync.Mutex
	nodes map[uint32]*node
}

// New creates an empty lock table.
func New() *Manager {
	return &Manager{nodes: make(map[uint32]*node)}
}

func (m *Manager) nodeFor(id uint32) *node {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	if n == nil {
		n = newNode()
		m.nodes[id] = n
	}
	return n
}

// LockReadDoc acquires a shared read lock on docID and on every ancestor
// in ancestorIDs (ordered nearest-parent first), matching
// lockReadDoc(doc) = lockRead(doc.id) ∧ lockRead(doc.parent.id) recursively
// to the root.
func (m *Manager) LockReadDoc(conn Connection, docID uint32, ancestorIDs []uint32) {
	m.lockAncestorsShared(conn, ancestorIDs)
	m.nodeFor(docID).acquire(conn, false)
}

// LockReadCol acquires a shared read lock on colID and every ancestor.
func (m *Manager) LockReadCol(conn Connection, colID uint32, ancestorIDs []uint32) {
	m.lockAncestorsShared(conn, ancestorIDs)
	m.nodeFor(colID).acquire(conn, false)
}

// LockWriteDoc acquires an exclusive lock on docID while holding every
// ancestor in shared mode only, per §4.5's note that a subtree writer
// must not preclude readers elsewhere in the tree. Ancestors are locked
// in the order given (nearest parent first, i.e. leaf to root) before the
// document itself (shared locks never conflict with each other, so the
// order among ancestors is immaterial; only descendant-while-holding-
// ancestor-exclusive is forbidden, which this method does not do).
func (m *Manager) LockWriteDoc(conn Connection, docID uint32, ancestorIDs []uint32) {
	m.lockAncestorsShared(conn, ancestorIDs)
	m.nodeFor(docID).acquire(conn, true)
}

// LockWriteCol acquires an exclusive lock on colID while holding every
// ancestor in shared mode.
func (m *Manager) LockWriteCol(conn Connection, colID uint32, ancestorIDs []uint32) {
	m.lockAncestorsShared(conn, ancestorIDs)
	m.nodeFor(colID).acquire(conn, true)
}

func (m *Manager) lockAncestorsShared(conn Connection, ancestorIDs []uint32) {
	for _, id := range ancestorIDs {
		m.nodeFor(id).acquire(conn, false)
	}
}

// Unlock releases the lock conn holds on id. Releasing a lock never held
// by conn is a programming error (LockStateError).
func (m *Manager) Unlock(conn Connection, id uint32) error {
	return m.nodeFor(id).release(conn)
}

// UnlockChain releases id and each of ancestorIDs in order, mirroring the
// reverse of acquisition (§4.5 "Unlock mirrors acquisition in reverse
// order"). It releases every lock it can and returns the first error
// encountered, if any.
func (m *Manager) UnlockChain(conn Connection, id uint32, ancestorIDs []uint32) error {
	var firstErr error
	if err := m.Unlock(conn, id); err != nil && firstErr == nil {
		firstErr = err
	}
	for i := len(ancestorIDs) - 1; i >= 0; i-- {
		if err := m.Unlock(conn, ancestorIDs[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TryLockWriteDoc attempts LockWriteDoc, giving up with Timeout if the
// exclusive lock (or any ancestor shared lock) cannot be acquired within
// timeout. Ancestors successfully locked before a timeout are released
// before returning.
func (m *Manager) TryLockWriteDoc(conn Connection, docID uint32, ancestorIDs []uint32, timeout time.Duration) error {
	deadline := deadlineFrom(timeout)
	locked := make([]uint32, 0, len(ancestorIDs))
	for _, id := range ancestorIDs {
		if !m.nodeFor(id).tryAcquire(conn, false, deadline) {
			for i := len(locked) - 1; i >= 0; i-- {
				m.Unlock(conn, locked[i])
			}
			return xerr.New(xerr.Timeout, "timed out acquiring ancestor read locks")
		}
		locked = append(locked, id)
	}
	if !m.nodeFor(docID).tryAcquire(conn, true, deadline) {
		for i := len(locked) - 1; i >= 0; i-- {
			m.Unlock(conn, locked[i])
		}
		return xerr.New(xerr.Timeout, "timed out acquiring write lock")
	}
	return nil
}
