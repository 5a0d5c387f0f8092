package models

import "time"

// Session represents one login session. JTI is the unique id of the refresh
// token the session was opened with; access tokens reference the session by
// ID via their "sid" claim.
type Session struct {
	ID          string `gorm:"primaryKey;size:64"`
	PrincipalID string `gorm:"size:255;index;not null"`
	JTI         string `gorm:"size:64;uniqueIndex;not null"`
	IssuedAt    time.Time
	LastSeenAt  time.Time
	ExpiresAt   time.Time `gorm:"index;not null"` // absolute cap, independent of idle timeout
	Revoked     bool      `gorm:"not null;default:false"`
}

// Active reports whether the session is neither revoked nor past its
// absolute expiry. Idle-timeout evaluation needs the policy and lives in the
// session registry.
func (s *Session) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
