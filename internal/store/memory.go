package store

import (
	"sync"
	"time"
)

// StateStore tracks OAuth state values issued to browsers. Each state is accepted
// once and only within its TTL.
type StateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	issued map[string]time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		ttl:    ttl,
		now:    time.Now,
		issued: make(map[string]time.Time),
	}
}

// Put records a freshly issued state.
func (m *StateStore) Put(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.issued[state] = m.now()
}

// Consume reports whether state was issued and is still fresh, and forgets it.
func (m *StateStore) Consume(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.issued[state]
	if !ok {
		return false
	}
	delete(m.issued, state)
	return m.now().Sub(at) <= m.ttl
}

func (m *StateStore) sweepLocked() {
	now := m.now()
	for st, at := range m.issued {
		if now.Sub(at) > m.ttl {
			delete(m.issued, st)
		}
	}
}
