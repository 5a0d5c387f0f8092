// Package revocation is the token blacklist consulted on every authenticated
// request. The store is deliberately volatile-tolerant: if revocation records
// are lost on a crash, every outstanding token still dies at its natural
// expiry, so the blast radius is bounded by the access-token lifetime. That
// trade-off is what allows the UNLOGGED Postgres table, the Redis backend and
// the in-process map to share one contract.
package revocation

import (
	"context"
	"sync"
	"time"

	"authd/pkg/tokens"
)

// Store answers "has this token been revoked?" in O(1) per lookup.
type Store interface {
	// Record inserts a revocation entry. Inserting the same JTI twice is a
	// no-op, not an error: double logout must not fail.
	Record(ctx context.Context, jti, principalID string, kind tokens.Kind, expiresAt time.Time) error
	// IsRevoked reports whether jti has been revoked. Absence means "not
	// revoked"; it is never an error.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// PurgeExpired deletes entries whose expiry has passed and returns how
	// many were removed. Safe to run concurrently with reads and writes, and
	// safe to run redundantly from multiple processes.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type memoryEntry struct {
	principalID string
	kind        tokens.Kind
	expiresAt   time.Time
	revokedAt   time.Time
}

// MemoryStore keeps the blacklist in an in-process map. Correct only for
// single-process deployments; multi-process deployments need the shared
// Postgres or Redis backend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Record(_ context.Context, jti, principalID string, kind tokens.Kind, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jti]; exists {
		return nil
	}
	s.entries[jti] = memoryEntry{
		principalID: principalID,
		kind:        kind,
		expiresAt:   expiresAt,
		revokedAt:   time.Now(),
	}
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for jti, e := range s.entries {
		if e.expiresAt.Before(now) {
			delete(s.entries, jti)
			removed++
		}
	}
	return removed, nil
}
