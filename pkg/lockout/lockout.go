// Package lockout implements the per-principal failed-login state machine:
// Open -> Open while failures stay under the threshold, Open -> Locked at the
// threshold, Locked -> Open lazily once the lock expires. A successful login
// forgives everything, including the progressive-backoff tier.
package lockout

import (
	"context"
	"time"

	"authd/models"
)

// Type selects how consecutive lockouts escalate.
type Type string

const (
	TypeFixed       Type = "fixed"
	TypeProgressive Type = "progressive"
)

// tierCap bounds progressive escalation to base * 2^6.
const tierCap = 6

// Policy is the slice of the security policy the tracker needs.
type Policy struct {
	MaxAttempts  int
	BaseDuration time.Duration
	Type         Type
}

// DefaultPolicy is the fail-closed fallback used when no policy resolves.
// Unlimited attempts would be the dangerous direction.
var DefaultPolicy = Policy{MaxAttempts: 5, BaseDuration: 15 * time.Minute, Type: TypeFixed}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.BaseDuration <= 0 {
		p.BaseDuration = DefaultPolicy.BaseDuration
	}
	if p.Type != TypeProgressive {
		p.Type = TypeFixed
	}
	return p
}

// State of a principal as seen by callers.
type State string

const (
	Open   State = "open"
	Locked State = "locked"
)

// Status is the evaluated lock state for a principal.
type Status struct {
	State       State
	Failures    int
	LockedUntil time.Time // zero unless State == Locked
}

// Store persists lockout rows. Fail must apply the whole failed-attempt
// transition atomically per principal: two concurrent failures may not both
// read a sub-threshold counter and race past the lock.
type Store interface {
	Fail(ctx context.Context, principalID string, p Policy, now time.Time) (models.LockoutState, error)
	Get(ctx context.Context, principalID string) (*models.LockoutState, error)
	Reset(ctx context.Context, principalID string) error
	ClearLock(ctx context.Context, principalID string) error
	ListLocked(ctx context.Context, now time.Time) ([]models.LockoutState, error)
}

// advance applies one failed attempt to rec. Callers must hold whatever
// exclusivity their store provides for the row.
func advance(rec *models.LockoutState, p Policy, now time.Time) {
	p = p.normalized()
	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		// already locked; further failures do not extend the lock
		return
	}
	rec.FailedAttempts++
	if rec.FailedAttempts < p.MaxAttempts {
		return
	}
	dur := p.BaseDuration
	if p.Type == TypeProgressive {
		tier := rec.LockoutTier
		if tier > tierCap {
			tier = tierCap
		}
		dur = p.BaseDuration * (1 << tier)
		rec.LockoutTier++
	}
	until := now.Add(dur)
	rec.LockedUntil = &until
	// counter and lock are mutually exclusive phases
	rec.FailedAttempts = 0
}

// Tracker evaluates lockout state over a Store.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// WithClock overrides the tracker clock. Used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// OnFailure registers one failed attempt under p and returns the resulting
// status.
func (t *Tracker) OnFailure(ctx context.Context, principalID string, p Policy) (Status, error) {
	rec, err := t.store.Fail(ctx, principalID, p, t.now())
	if err != nil {
		return Status{}, err
	}
	return t.evaluate(&rec), nil
}

// OnSuccess clears all failure history for the principal, tier included.
func (t *Tracker) OnSuccess(ctx context.Context, principalID string) error {
	return t.store.Reset(ctx, principalID)
}

// Check returns the current status. A lock whose deadline has passed reads as
// Open; no background timer unwinds locks.
func (t *Tracker) Check(ctx context.Context, principalID string) (Status, error) {
	rec, err := t.store.Get(ctx, principalID)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{State: Open}, nil
	}
	return t.evaluate(rec), nil
}

// Unlock lifts an active lock without touching the escalation tier; the admin
// surface uses it.
func (t *Tracker) Unlock(ctx context.Context, principalID string) error {
	return t.store.ClearLock(ctx, principalID)
}

// ListLocked returns principals currently locked out.
func (t *Tracker) ListLocked(ctx context.Context) ([]models.LockoutState, error) {
	return t.store.ListLocked(ctx, t.now())
}

func (t *Tracker) evaluate(rec *models.LockoutState) Status {
	if rec.LockedUntil != nil && t.now().Before(*rec.LockedUntil) {
		return Status{State: Locked, LockedUntil: *rec.LockedUntil}
	}
	return Status{State: Open, Failures: rec.FailedAttempts}
}
