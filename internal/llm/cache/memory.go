package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const defaultMaxEntries = 1024

// MemoryStore is an in-process LRU store with expiry.
type MemoryStore struct {
	mu         sync.Mutex
	ll         *list.List
	items      map[string]*list.Element
	maxEntries int
	ttl        time.Duration
	closed     bool
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates a store holding at most maxEntries values.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryStore{
		ll:         list.New(),
		items:      make(map[string]*list.Element),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStorageClosed
	}
	el, ok := s.items[key]
	if !ok {
		return nil, ErrMiss
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.ll.Remove(el)
		delete(s.items, key)
		return nil, ErrMiss
	}
	s.ll.MoveToFront(el)

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	if el, ok := s.items[key]; ok {
		el.Value = &memoryEntry{key: key, value: stored, expiresAt: expiresAt}
		s.ll.MoveToFront(el)
		return nil
	}

	s.items[key] = s.ll.PushFront(&memoryEntry{key: key, value: stored, expiresAt: expiresAt})
	for s.ll.Len() > s.maxEntries {
		oldest := s.ll.Back()
		s.ll.Remove(oldest)
		delete(s.items, oldest.Value.(*memoryEntry).key)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = make(map[string]*list.Element)
	s.ll.Init()
	return nil
}
