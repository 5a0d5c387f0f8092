package models

import "time"

// RevokedToken is a blacklist entry for an issued token, keyed by its JTI.
// Rows are garbage once wall-clock time passes ExpiresAt: the token would fail
// its own expiry check anyway, so the purge job deletes them. The table is
// converted to UNLOGGED on Postgres; losing the blacklist on a crash only
// re-opens revoked tokens until their natural expiry.
type RevokedToken struct {
	JTI         string    `gorm:"primaryKey;size:64"`
	PrincipalID string    `gorm:"size:255;index;not null"`
	Kind        string    `gorm:"size:16;not null"`
	ExpiresAt   time.Time `gorm:"index;not null"`
	RevokedAt   time.Time `gorm:"not null"`
}
