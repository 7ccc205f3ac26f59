package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/claims/claims"
)

// MemoryStore keeps claims in process memory
type MemoryStore struct {
	claims map[string]*claims.Claim
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims: make(map[string]*claims.Claim),
	}
}

// Create stores a new claim with version 1
func (s *MemoryStore) Create(_ context.Context, c *claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.claims[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, c.ID)
	}

	now := time.Now().UTC()
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	s.claims[c.ID] = c.Clone()
	return nil
}

// Get returns a copy of the claim
func (s *MemoryStore) Get(_ context.Context, id string) (*claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.claims[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Clone(), nil
}

// Update runs fn under the store lock
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*claims.Claim) error) (*claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.claims[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now().UTC()

	s.claims[id] = next
	return next.Clone(), nil
}

// List returns claims newest first
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*claims.Claim, error) {
	s.mu.RLock()
	out := make([]*claims.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return page(out, filter), nil
}

func sortNewestFirst(list []*claims.Claim) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}

func page(list []*claims.Claim, filter Filter) []*claims.Claim {
	if filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return []*claims.Claim{}
		}
		list = list[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(list) {
		list = list[:filter.Limit]
	}
	return list
}
