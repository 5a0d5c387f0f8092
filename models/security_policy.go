package models

import "time"

// Lockout type values for SecurityPolicy.LockoutType.
const (
	LockoutFixed       = "fixed"
	LockoutProgressive = "progressive"
)

// SecurityPolicy holds the password, lockout and session rules applied to a
// tenant. A row with TenantID = NULL is the system default; a tenant row, when
// present and active, replaces the default wholly (no field-by-field merge).
type SecurityPolicy struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	TenantID  *string `gorm:"size:64;uniqueIndex"`
	Active    bool    `gorm:"not null;default:true"`

	PasswordMinLength    int  `gorm:"not null;default:8"`
	PasswordRequireMixed bool `gorm:"not null;default:false"`
	PasswordExpiryDays   int  `gorm:"not null;default:0"` // 0 = never
	PasswordHistoryCount int  `gorm:"not null;default:0"`

	LockoutMaxAttempts     int    `gorm:"not null;default:5"`
	LockoutDurationMinutes int    `gorm:"not null;default:15"`
	LockoutType            string `gorm:"size:16;not null;default:fixed"`

	SessionTimeoutMinutes       int `gorm:"not null;default:30"` // idle
	SessionMaxConcurrent        int `gorm:"not null;default:0"`  // 0 = unlimited
	SessionAbsoluteTimeoutHours int `gorm:"not null;default:12"`
}

// IdleTimeout returns the session idle timeout as a duration (0 = disabled).
func (p *SecurityPolicy) IdleTimeout() time.Duration {
	return time.Duration(p.SessionTimeoutMinutes) * time.Minute
}

// AbsoluteTimeout returns the hard session lifetime cap.
func (p *SecurityPolicy) AbsoluteTimeout() time.Duration {
	return time.Duration(p.SessionAbsoluteTimeoutHours) * time.Hour
}

// LockoutDuration returns the base lockout duration.
func (p *SecurityPolicy) LockoutDuration() time.Duration {
	return time.Duration(p.LockoutDurationMinutes) * time.Minute
}
