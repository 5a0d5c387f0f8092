package sessions

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"authd/models"
)

// GormStore persists sessions in Postgres. Point lookups hit the primary key;
// per-principal scans use the principal_id index.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, sess *models.Session) error {
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *GormStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("last_seen_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Revoke(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ActiveByPrincipal(ctx context.Context, principalID string, now time.Time) ([]models.Session, error) {
	var rows []models.Session
	err := s.db.WithContext(ctx).
		Where("principal_id = ? AND revoked = false AND expires_at > ?", principalID, now).
		Order("issued_at asc").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) RevokeAll(ctx context.Context, principalID string, now time.Time) ([]models.Session, error) {
	var rows []models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("principal_id = ? AND revoked = false AND expires_at > ?", principalID, now).
			Order("issued_at asc").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
			rows[i].Revoked = true
		}
		return tx.Model(&models.Session{}).Where("id IN ?", ids).Update("revoked", true).Error
	})
	return rows, err
}
