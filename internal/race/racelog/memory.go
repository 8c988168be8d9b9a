package racelog

import (
	"slices"
	"sync"
)

// MemoryStore keeps the persisted log in process memory.
//
// It stands in for disk storage in tests and lets several detector instances
// in one process share a log.
type MemoryStore struct {
	mu    sync.Mutex
	pairs []RacePair
	count int
	saved bool
	err   error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load() ([]RacePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return slices.Clone(s.pairs), nil
}

// Save implements Store.
func (s *MemoryStore) Save(pairs []RacePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.pairs = slices.Clone(pairs)
	s.saved = true
	return nil
}

// SaveCount implements Store.
func (s *MemoryStore) SaveCount(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.count = n
	return nil
}

// Count returns the last saved count.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Saved reports whether Save has succeeded at least once.
func (s *MemoryStore) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// FailWith makes every subsequent call return err (nil restores normal
// operation).
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
