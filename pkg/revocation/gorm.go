package revocation

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"authd/models"
	"authd/pkg/tokens"
)

// GormStore persists the blacklist in the revoked_tokens table. Point lookups
// hit the primary key; bulk deletes scan the expires_at index.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// MakeUnlogged converts the table to UNLOGGED on Postgres, trading crash
// durability for write latency. Losing the table on a storage-engine restart
// is acceptable (see package comment); a failure here is logged, not fatal,
// so the store also works on engines without UNLOGGED support.
func (s *GormStore) MakeUnlogged() {
	if err := s.db.Exec(`ALTER TABLE revoked_tokens SET UNLOGGED`).Error; err != nil {
		log.Printf("[REVOCATION] could not set revoked_tokens UNLOGGED (continuing logged): %v", err)
	}
}

func (s *GormStore) Record(ctx context.Context, jti, principalID string, kind tokens.Kind, expiresAt time.Time) error {
	rec := models.RevokedToken{
		JTI:         jti,
		PrincipalID: principalID,
		Kind:        string(kind),
		ExpiresAt:   expiresAt,
		RevokedAt:   time.Now(),
	}
	// ON CONFLICT DO NOTHING keeps double logout a no-op at the storage layer
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(&rec).Error
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var rec models.RevokedToken
	err := s.db.WithContext(ctx).Select("jti").Where("jti = ?", jti).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}
