// Package sessions tracks active login sessions per principal, enforces the
// concurrency cap by FIFO eviction, and feeds bulk revocation with the JTIs
// of the tokens it evicts.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"authd/models"
)

// ErrNotFound is returned for lookups of unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store persists session rows.
type Store interface {
	Insert(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Revoke(ctx context.Context, sessionID string) error
	// ActiveByPrincipal returns non-revoked, non-expired sessions for the
	// principal ordered by IssuedAt ascending (oldest first).
	ActiveByPrincipal(ctx context.Context, principalID string, now time.Time) ([]models.Session, error)
	// RevokeAll revokes every active session for the principal and returns
	// the revoked rows.
	RevokeAll(ctx context.Context, principalID string, now time.Time) ([]models.Session, error)
}

// Registry is the session bookkeeping used by the auth service.
type Registry struct {
	store Store
	now   func() time.Time
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// WithClock overrides the registry clock. Used by tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Open records a new session for principalID. sessionID may be empty, in
// which case a fresh UUID is assigned. When the active count has reached
// maxConcurrent (0 = unlimited) the oldest active sessions are revoked first.
// The cap is soft: two concurrent opens at the boundary may overshoot by one,
// and the next open reconciles back down.
func (r *Registry) Open(ctx context.Context, principalID, sessionID, jti string, absoluteTTL time.Duration, maxConcurrent int) (*models.Session, error) {
	now := r.now()
	if maxConcurrent > 0 {
		active, err := r.store.ActiveByPrincipal(ctx, principalID, now)
		if err != nil {
			return nil, err
		}
		// evict oldest until one slot is free
		for i := 0; len(active)-i >= maxConcurrent && i < len(active); i++ {
			if err := r.store.Revoke(ctx, active[i].ID); err != nil {
				return nil, err
			}
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &models.Session{
		ID:          sessionID,
		PrincipalID: principalID,
		JTI:         jti,
		IssuedAt:    now,
		LastSeenAt:  now,
		ExpiresAt:   now.Add(absoluteTTL),
	}
	if err := r.store.Insert(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Touch updates the idle-timeout clock for the session.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.store.Touch(ctx, sessionID, r.now())
}

// IsValid reports whether the session exists, is not revoked, is inside its
// absolute lifetime, and has been seen within idleTimeout (0 disables the
// idle check).
func (r *Registry) IsValid(ctx context.Context, sessionID string, idleTimeout time.Duration) (bool, error) {
	sess, err := r.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := r.now()
	if !sess.Active(now) {
		return false, nil
	}
	if idleTimeout > 0 && now.Sub(sess.LastSeenAt) > idleTimeout {
		return false, nil
	}
	return true, nil
}

// Revoke marks one session revoked. Revoking an unknown or already-revoked
// session is a no-op.
func (r *Registry) Revoke(ctx context.Context, sessionID string) error {
	err := r.store.Revoke(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeAll revokes every active session for the principal and returns the
// affected rows so their JTIs can be recorded in the revocation store.
func (r *Registry) RevokeAll(ctx context.Context, principalID string) ([]models.Session, error) {
	return r.store.RevokeAll(ctx, principalID, r.now())
}

// List returns the currently active sessions for the principal, oldest first.
func (r *Registry) List(ctx context.Context, principalID string) ([]models.Session, error) {
	return r.store.ActiveByPrincipal(ctx, principalID, r.now())
}
