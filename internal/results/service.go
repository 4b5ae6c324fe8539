package results

import (
	"context"
	"strings"
	"sync"
	"time"

	"soundoff.org/internal/ids"
)

// Store defines the resource store consumed by the guard and the HTTP layer.
// Reads are guard-facing; writes carry an expected revision so the store can
// reject a mutation that raced another writer.
type Store interface {
	GetResult(ctx context.Context, id string) (Result, error)
	GetCompetition(ctx context.Context, id string) (Competition, error)
	HasResult(ctx context.Context, competitionID, ownerID string) (bool, error)

	CreateResult(ctx context.Context, r Result) (Result, error)
	UpdateResult(ctx context.Context, r Result, expectedRevision int64) (Result, error)
	DeleteResult(ctx context.Context, id string, expectedRevision int64) error
}

// InMemory implements Store with in-process concurrency safety.
// NOTE: production deployments use the Postgres store; this backs tests and
// local runs without a database.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]*Result
	comps map[string]Competition
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		items: make(map[string]*Result),
		comps: make(map[string]Competition),
	}
}

// PutCompetition registers or replaces a competition record.
func (s *InMemory) PutCompetition(c Competition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comps[c.ID] = c
}

// Put inserts a result as-is, bypassing validation. Test seeding helper.
func (s *InMemory) Put(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.items[r.ID] = &cp
}

func (s *InMemory) GetResult(ctx context.Context, id string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	return *r, nil
}

func (s *InMemory) GetCompetition(ctx context.Context, id string) (Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comps[id]
	if !ok {
		return Competition{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) HasResult(ctx context.Context, competitionID, ownerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.CompetitionID == competitionID && r.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) CreateResult(ctx context.Context, r Result) (Result, error) {
	if strings.TrimSpace(r.CompetitionID) == "" || strings.TrimSpace(r.OwnerID) == "" {
		return Result{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.CompetitionID == r.CompetitionID && existing.OwnerID == r.OwnerID {
			return Result{}, ErrDuplicate
		}
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.Revision = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := r
	s.items[r.ID] = &cp
	return r, nil
}

func (s *InMemory) UpdateResult(ctx context.Context, r Result, expectedRevision int64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[r.ID]
	if !ok {
		return Result{}, ErrNotFound
	}
	if existing.Revision != expectedRevision {
		return Result{}, ErrRevisionConflict
	}
	existing.Category = r.Category
	existing.Placement = r.Placement
	existing.Score = r.Score
	existing.Notes = r.Notes
	existing.Verified = r.Verified
	existing.Revision++
	existing.UpdatedAt = time.Now().UTC()
	return *existing, nil
}

func (s *InMemory) DeleteResult(ctx context.Context, id string, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if existing.Revision != expectedRevision {
		return ErrRevisionConflict
	}
	delete(s.items, id)
	return nil
}
