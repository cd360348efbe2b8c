package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL expiry and an optional LRU
// bound. Expired entries are removed lazily by the read that observes them
// or in bulk by PurgeExpired.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxEntries int
	clock      Clock
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMaxEntries bounds the store; the least recently used entry is evicted
// when the bound is exceeded. Zero means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(m *MemoryStore) { m.maxEntries = n }
}

// WithMemoryClock sets the clock used for expiry checks
func WithMemoryClock(c Clock) MemoryOption {
	return func(m *MemoryStore) { m.clock = c }
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		items: make(map[string]*list.Element),
		lru:   list.New(),
		clock: SystemClock{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Get implements Reader
func (m *MemoryStore) Get(_ context.Context, key, version string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	ent := el.Value.(*Entry)
	if ent.Expired(m.clock.Now()) {
		m.remove(el)
		return nil, ErrNotFound
	}
	if !ent.Valid(m.clock.Now(), version) {
		return nil, ErrNotFound
	}

	m.lru.MoveToFront(el)
	cp := *ent
	return &cp, nil
}

// Set implements Writer. A zero InsertedAt is stamped with the store clock.
func (m *MemoryStore) Set(_ context.Context, entry *Entry) error {
	cp := *entry
	if cp.InsertedAt.IsZero() {
		cp.InsertedAt = m.clock.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[cp.Key]; ok {
		el.Value = &cp
		m.lru.MoveToFront(el)
		return nil
	}

	m.items[cp.Key] = m.lru.PushFront(&cp)
	if m.maxEntries > 0 && m.lru.Len() > m.maxEntries {
		if oldest := m.lru.Back(); oldest != nil {
			m.remove(oldest)
		}
	}
	return nil
}

// Delete implements Invalidator
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
	return nil
}

// DeleteMatching implements Invalidator
func (m *MemoryStore) DeleteMatching(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, el := range m.items {
		if strings.Contains(key, pattern) {
			m.remove(el)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Invalidator
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.lru.Init()
	return nil
}

// Len implements Sizer. Expired entries not yet purged are counted.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

// PurgeExpired removes all expired entries and returns how many were removed
func (m *MemoryStore) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for _, el := range m.items {
		if el.Value.(*Entry).Expired(now) {
			m.remove(el)
			removed++
		}
	}
	return removed
}

// StartJanitor purges expired entries every interval until ctx is done. A
// non-positive interval starts nothing and expired entries are only dropped
// on read.
func (m *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.PurgeExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// remove drops an element (caller must hold lock)
func (m *MemoryStore) remove(el *list.Element) {
	m.lru.Remove(el)
	delete(m.items, el.Value.(*Entry).Key)
}
