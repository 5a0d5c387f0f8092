package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"authd/models"
)

// MemoryStore keeps sessions in a mutexed map; single-process deployments
// and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.Session)}
}

func (s *MemoryStore) Insert(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.rows[sess.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.rows[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Touch(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.LastSeenAt = at
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.rows[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Revoked = true
	return nil
}

func (s *MemoryStore) ActiveByPrincipal(_ context.Context, principalID string, now time.Time) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Session
	for _, sess := range s.rows {
		if sess.PrincipalID == principalID && sess.Active(now) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, principalID string, now time.Time) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.rows {
		if sess.PrincipalID == principalID && sess.Active(now) {
			sess.Revoked = true
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}
