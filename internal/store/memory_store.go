package store

import (
	"bytes"
	"sync"
)

// MemoryStore keeps values in memory for the life of the process.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{m: map[string][]byte{}} }

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	s.m[key] = bytes.Clone(value)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// discardStore persists nothing.
type discardStore struct{}

func (discardStore) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (discardStore) Set(string, []byte) error         { return nil }
func (discardStore) Remove(string) error              { return nil }
func (discardStore) Close() error                     { return nil }
