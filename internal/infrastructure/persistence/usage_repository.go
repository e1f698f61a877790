package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"gorm.io/gorm"
)

// GormUsageRepository implements point.UsageRepository using GORM
type GormUsageRepository struct {
	db *gorm.DB
}

// NewGormUsageRepository creates a new GORM-based usage repository
func NewGormUsageRepository(db *gorm.DB) *GormUsageRepository {
	return &GormUsageRepository{db: db}
}

// Save creates or updates a usage transaction together with its details
func (r *GormUsageRepository) Save(ctx context.Context, usage *point.Usage) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(usage).Error
}

// FindByKey returns the usage with the given key, details included
func (r *GormUsageRepository) FindByKey(ctx context.Context, key valueobject.PointKey) (*point.Usage, error) {
	var usage point.Usage
	err := r.db.WithContext(ctx).
		Preload("Details").
		Where("key = ?", key).
		First(&usage).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &usage, nil
}

// FindByMember returns all usages for a member with details, oldest first
func (r *GormUsageRepository) FindByMember(ctx context.Context, memberID uuid.UUID) ([]*point.Usage, error) {
	var usages []*point.Usage
	err := r.db.WithContext(ctx).
		Preload("Details").
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&usages).Error
	if err != nil {
		return nil, err
	}
	return usages, nil
}

var _ point.UsageRepository = (*GormUsageRepository)(nil)
