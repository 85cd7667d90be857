package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps windows in process memory. Counters are not shared
// between instances.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]memoryWindow), now: time.Now}
}

func (m *MemoryStore) IncrementWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if key == "" || window <= 0 {
		return 0, 0, fmt.Errorf("invalid rate window payload")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// заодно чистим истекшие окна
		for k, old := range m.windows {
			if !now.Before(old.resetAt) {
				delete(m.windows, k)
			}
		}
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count++
	m.windows[key] = w
	return w.count, w.resetAt.Sub(now), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
