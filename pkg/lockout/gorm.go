package lockout

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"authd/models"
)

// GormStore persists lockout rows in Postgres. Fail runs inside a transaction
// holding a row lock (SELECT ... FOR UPDATE), which linearizes concurrent
// failed attempts per principal without any application-level locking.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Fail(ctx context.Context, principalID string, p Policy, now time.Time) (models.LockoutState, error) {
	var rec models.LockoutState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("principal_id = ?", principalID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = models.LockoutState{PrincipalID: principalID}
			// a concurrent first failure may win the insert race; fall back
			// to re-reading under the lock
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("principal_id = ?", principalID).
				First(&rec).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		advance(&rec, p, now)
		return tx.Save(&rec).Error
	})
	return rec, err
}

func (s *GormStore) Get(ctx context.Context, principalID string) (*models.LockoutState, error) {
	var rec models.LockoutState
	err := s.db.WithContext(ctx).Where("principal_id = ?", principalID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Reset(ctx context.Context, principalID string) error {
	return s.db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Delete(&models.LockoutState{}).Error
}

func (s *GormStore) ClearLock(ctx context.Context, principalID string) error {
	return s.db.WithContext(ctx).Model(&models.LockoutState{}).
		Where("principal_id = ?", principalID).
		Updates(map[string]interface{}{"locked_until": nil, "failed_attempts": 0}).Error
}

func (s *GormStore) ListLocked(ctx context.Context, now time.Time) ([]models.LockoutState, error) {
	var rows []models.LockoutState
	err := s.db.WithContext(ctx).
		Where("locked_until IS NOT NULL AND locked_until > ?", now).
		Order("locked_until asc").
		Find(&rows).Error
	return rows, err
}
