package policy

import (
	"context"

	"gorm.io/gorm"

	"authd/models"
)

// GormStore loads policies from the security_policies table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListActive(ctx context.Context) ([]models.SecurityPolicy, error) {
	var rows []models.SecurityPolicy
	err := s.db.WithContext(ctx).Where("active = true").Find(&rows).Error
	return rows, err
}

// MemoryStore serves a fixed policy set; tests and single-binary setups.
type MemoryStore struct {
	Policies []models.SecurityPolicy
}

func (s *MemoryStore) ListActive(context.Context) ([]models.SecurityPolicy, error) {
	return s.Policies, nil
}
