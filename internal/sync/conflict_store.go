package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ConflictStore holds conflicts surfaced under the manual strategy until they
// are resolved. It is owned by the caller and shared by the engine and the
// resolution entrypoint; implementations must be safe for concurrent use.
type ConflictStore interface {
	Put(ctx context.Context, c *ConflictItem) error
	GetAll(ctx context.Context) ([]*ConflictItem, error)
	Get(ctx context.Context, id string) (*ConflictItem, error)
	// Resolve removes the conflict and returns it
	Resolve(ctx context.Context, id string) (*ConflictItem, error)
}

// MemoryConflictStore is a process-local ConflictStore
type MemoryConflictStore struct {
	mu        sync.Mutex
	conflicts map[string]*ConflictItem
}

// NewMemoryConflictStore creates an empty store
func NewMemoryConflictStore() *MemoryConflictStore {
	return &MemoryConflictStore{conflicts: make(map[string]*ConflictItem)}
}

// Put stores c, replacing any pending conflict for the same item
func (s *MemoryConflictStore) Put(_ context.Context, c *ConflictItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.conflicts {
		if existing.ItemID == c.ItemID && id != c.ID {
			delete(s.conflicts, id)
		}
	}
	s.conflicts[c.ID] = c
	return nil
}

// GetAll returns the pending conflicts ordered by name
func (s *MemoryConflictStore) GetAll(_ context.Context) ([]*ConflictItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ConflictItem, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryConflictStore) Get(_ context.Context, id string) (*ConflictItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conflicts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}
	return c, nil
}

func (s *MemoryConflictStore) Resolve(_ context.Context, id string) (*ConflictItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conflicts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConflictNotFound, id)
	}
	delete(s.conflicts, id)
	return c, nil
}
