package models

import (
	"time"
)

// User model
type User struct {
	ID             uint `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time `gorm:"index"`
	Username       string     `gorm:"size:255;not null;unique"`
	HashedPassword []byte     `gorm:"not null"`
	// TenantID selects the security policy applied to this user; nil means
	// the system-default policy applies.
	TenantID *string `gorm:"size:64;index"`
	Role     string  `gorm:"size:32;not null;default:user"`
}
