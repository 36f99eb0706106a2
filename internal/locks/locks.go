// Package locks serializes mutating operations per token: at most one
// operation per token id may be in flight at a time.
package locks

import (
	"errors"
	"sync"
)

// ErrBusy reports that the token already has an in-flight operation.
// Callers retry later; acquisition never queues, because confirmation
// latency is unbounded and queued waiters would pile up.
var ErrBusy = errors.New("token has an operation in progress")

// MintSentinel is the lock id mints contend on. Token ids are positive, so
// zero never collides with a real token. Serializing mints keeps token id
// assignment strictly sequential.
const MintSentinel int64 = 0

// Lease is proof of holding a token's lock. The fence id makes Release a
// no-op for stale leases.
type Lease struct {
	tokenID int64
	fence   uint64
}

func (l Lease) TokenID() int64 { return l.tokenID }

type Manager struct {
	mu    sync.Mutex
	held  map[int64]uint64
	fence uint64
}

func NewManager() *Manager {
	return &Manager{held: make(map[int64]uint64)}
}

// Acquire takes the lock for tokenID, failing fast with ErrBusy if it is
// already held.
func (m *Manager) Acquire(tokenID int64) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[tokenID]; ok {
		return Lease{}, ErrBusy
	}
	m.fence++
	m.held[tokenID] = m.fence
	return Lease{tokenID: tokenID, fence: m.fence}, nil
}

// Release frees the lock held by lease. Releasing a lease that no longer
// holds the lock does nothing.
func (m *Manager) Release(l Lease) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fence, ok := m.held[l.tokenID]; ok && fence == l.fence {
		delete(m.held, l.tokenID)
	}
}

// Held reports whether tokenID currently has an in-flight operation.
func (m *Manager) Held(tokenID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[tokenID]
	return ok
}
