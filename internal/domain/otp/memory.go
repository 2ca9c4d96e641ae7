package otp

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

type memoryItem struct {
	entry    Entry
	deadline time.Time
}

// MemoryStore is a process-local Store. Expired items are dropped on read.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return nil, ErrNoEntry
	}
	if !s.now().Before(it.deadline) {
		delete(s.items, key)
		return nil, ErrNoEntry
	}
	e := it.entry
	return &e, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{entry: *e, deadline: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) IncrAttempts(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return 0, ErrNoEntry
	}
	if !s.now().Before(it.deadline) {
		delete(s.items, key)
		return 0, ErrNoEntry
	}
	it.entry.Attempts++
	s.items[key] = it
	return it.entry.Attempts, nil
}
