package journal

import (
	"context"
	"sync"

	"github.com/zenyourself/reflection-core/internal/model"
)

// Store persists journal entries. Persist must be idempotent by entry ID:
// appending the same entry twice is a no-op, never a duplicate.
type Store interface {
	Persist(ctx context.Context, entry *model.JournalEntry) error
	List(ctx context.Context, userID string, limit int) ([]model.JournalEntry, error)
}

// MemoryStore is an in-memory journal store used in tests and when no NATS
// deployment is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*model.JournalEntry
	ordered []*model.JournalEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*model.JournalEntry),
	}
}

// Persist appends an entry, ignoring duplicates by ID.
func (s *MemoryStore) Persist(ctx context.Context, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return nil
	}
	cp := *entry
	s.byID[cp.ID] = &cp
	s.ordered = append(s.ordered, &cp)
	return nil
}

// List returns the newest entries for a user, most recent first.
func (s *MemoryStore) List(ctx context.Context, userID string, limit int) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.JournalEntry
	for i := len(s.ordered) - 1; i >= 0; i-- {
		e := s.ordered[i]
		if e.UserID != userID {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}
