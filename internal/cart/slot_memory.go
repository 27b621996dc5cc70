package cart

import (
	"context"
	"sync"
	"time"
)

// MemorySlots keeps slots in process memory. Carts survive provider eviction
// but not a restart. Slots written with a positive ttl expire like the redis
// and SQL backends; PurgeExpired reclaims them.
type MemorySlots struct {
	key string
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	slots map[string]memoryEntry
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemorySlots returns an empty in-memory slot store. A zero ttl keeps
// slots until the process exits.
func NewMemorySlots(key string, ttl time.Duration) *MemorySlots {
	if key == "" {
		key = DefaultSlotKey
	}
	return &MemorySlots{key: key, ttl: ttl, now: time.Now, slots: make(map[string]memoryEntry)}
}

func (m *MemorySlots) Slot(sessionID string) Slot {
	return memorySlot{store: m, id: sessionID + "/" + m.key}
}

// PurgeExpired deletes slots whose expiry has passed.
func (m *MemorySlots) PurgeExpired(_ context.Context) (int64, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for id, entry := range m.slots {
		if entry.expired(now) {
			delete(m.slots, id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of slots held, expired ones included.
func (m *MemorySlots) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

type memorySlot struct {
	store *MemorySlots
	id    string
}

func (s memorySlot) Read(_ context.Context) ([]byte, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	entry, ok := s.store.slots[s.id]
	if !ok || entry.expired(s.store.now()) {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), entry.payload...), nil
}

func (s memorySlot) Write(_ context.Context, payload []byte) error {
	entry := memoryEntry{payload: append([]byte(nil), payload...)}
	if s.store.ttl > 0 {
		entry.expiresAt = s.store.now().Add(s.store.ttl)
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.slots[s.id] = entry
	return nil
}
