package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a size-bounded in-process cache. The least recently used
// entry is evicted once capacity is reached.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
	now      func() time.Time
}

// NewMemoryStore creates a memory store holding at most capacity entries
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	el, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.removeElement(el)
		s.mu.Unlock()
		return false, nil
	}
	s.order.MoveToFront(el)
	data := entry.data
	s.mu.Unlock()

	if err := decode(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Store. A non-positive ttl never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.data = data
		entry.expiresAt = expiresAt
		s.order.MoveToFront(el)
		return nil
	}

	s.entries[key] = s.order.PushFront(&memoryEntry{key: key, data: data, expiresAt: expiresAt})
	for s.order.Len() > s.capacity {
		s.removeElement(s.order.Back())
	}
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.entries[key]; ok {
		s.removeElement(el)
	}
	return nil
}

// DeleteByPrefix implements Store
func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, el := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.removeElement(el)
		}
	}
	return nil
}

// Clear implements Store
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order.Init()
	s.entries = make(map[string]*list.Element)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.order.Remove(el)
	delete(s.entries, el.Value.(*memoryEntry).key)
}
