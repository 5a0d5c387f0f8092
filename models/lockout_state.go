package models

import "time"

// LockoutState tracks failed-login counters per principal. The counter and an
// active lock are mutually exclusive phases: whenever LockedUntil is newly set
// the counter resets to zero. LockoutTier counts consecutive lockout episodes
// and drives progressive backoff.
type LockoutState struct {
	PrincipalID    string `gorm:"primaryKey;size:255"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FailedAttempts int        `gorm:"not null;default:0"`
	LockedUntil    *time.Time `gorm:"index"`
	LockoutTier    int        `gorm:"not null;default:0"`
}
