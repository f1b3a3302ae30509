package token

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps credentials in an in-memory map. It is used by tests
// and by ephemeral deployments where credentials should not survive a
// restart.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs: make(map[string]*Record),
	}
}

// Save persists the record, replacing any credential for the same subject.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.Subject == "" {
		return fmt.Errorf("record subject cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Subject] = rec.Clone()
	return nil
}

// Load returns the stored credential for the subject.
func (s *MemoryStore) Load(ctx context.Context, subject string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[subject]
	if !ok {
		return nil, fmt.Errorf("%w: no credential for subject", ErrNotConnected)
	}
	return rec.Clone(), nil
}

// Delete removes the credential for the subject.
func (s *MemoryStore) Delete(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, subject)
	return nil
}

// Close is a no-op for in-memory storage.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored credentials.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

var _ Store = (*MemoryStore)(nil)
