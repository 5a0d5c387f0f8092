package lockout

import (
	"context"
	"sync"
	"time"

	"authd/models"
)

// MemoryStore holds lockout rows in a mutexed map. The mutex gives the same
// per-principal atomicity the SQL store gets from row locking.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*models.LockoutState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.LockoutState)}
}

func (s *MemoryStore) Fail(_ context.Context, principalID string, p Policy, now time.Time) (models.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[principalID]
	if !ok {
		rec = &models.LockoutState{PrincipalID: principalID, CreatedAt: now}
		s.rows[principalID] = rec
	}
	advance(rec, p, now)
	rec.UpdatedAt = now
	return *rec, nil
}

func (s *MemoryStore) Get(_ context.Context, principalID string) (*models.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[principalID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Reset(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, principalID)
	return nil
}

func (s *MemoryStore) ClearLock(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.rows[principalID]; ok {
		rec.LockedUntil = nil
		rec.FailedAttempts = 0
	}
	return nil
}

func (s *MemoryStore) ListLocked(_ context.Context, now time.Time) ([]models.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LockoutState
	for _, rec := range s.rows {
		if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
			out = append(out, *rec)
		}
	}
	return out, nil
}
