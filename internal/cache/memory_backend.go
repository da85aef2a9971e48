package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend used when Redis is unavailable and
// in tests. Entries are immutable; writers replace them wholesale.
type MemoryBackend struct {
	entries sync.Map // string -> *memoryEntry
	now     func() time.Time
}

// NewMemoryBackend returns a backend driven by now (time.Now when nil).
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{now: now}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	e := v.(*memoryEntry)
	if !m.now().Before(e.expiresAt) {
		m.entries.CompareAndDelete(key, e)
		return nil, ErrMiss
	}
	return e.value, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.entries.Store(key, &memoryEntry{value: buf, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryBackend) Del(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}
