package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccumulationRepository implements point.AccumulationRepository using GORM
type GormAccumulationRepository struct {
	db *gorm.DB
}

// NewGormAccumulationRepository creates a new GORM-based accumulation repository
func NewGormAccumulationRepository(db *gorm.DB) *GormAccumulationRepository {
	return &GormAccumulationRepository{db: db}
}

// Save creates or updates an accumulation lot
func (r *GormAccumulationRepository) Save(ctx context.Context, lot *point.Accumulation) error {
	return r.db.WithContext(ctx).Save(lot).Error
}

// SaveWithLock updates an existing lot with an optimistic version check.
// The domain model has already incremented the version, so the stored row
// must still carry the previous one; zero rows affected means another
// transaction got there first.
func (r *GormAccumulationRepository) SaveWithLock(ctx context.Context, lot *point.Accumulation) error {
	result := r.db.WithContext(ctx).
		Model(&point.Accumulation{}).
		Where("id = ? AND version = ?", lot.ID, lot.Version-1).
		Updates(map[string]interface{}{
			"remaining":      lot.Remaining,
			"expired_amount": lot.ExpiredAmount,
			"cancelled_at":   lot.CancelledAt,
			"version":        lot.Version,
			"updated_at":     lot.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByKey returns the lot with the given key
func (r *GormAccumulationRepository) FindByKey(ctx context.Context, key valueobject.PointKey) (*point.Accumulation, error) {
	var lot point.Accumulation
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&lot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

// FindByMember returns all lots for a member, oldest first
func (r *GormAccumulationRepository) FindByMember(ctx context.Context, memberID uuid.UUID) ([]*point.Accumulation, error) {
	var lots []*point.Accumulation
	err := r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("created_at ASC").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// FindByMemberPaged returns a page of a member's lots with the total count
func (r *GormAccumulationRepository) FindByMemberPaged(ctx context.Context, memberID uuid.UUID, filter shared.Filter) ([]*point.Accumulation, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&point.Accumulation{}).
		Where("member_id = ?", memberID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	// Only known columns may be used for ordering
	order := "created_at ASC"
	switch filter.OrderBy {
	case "created_at", "expire_at", "amount", "remaining":
		dir := "ASC"
		if filter.OrderDir == "desc" {
			dir = "DESC"
		}
		order = filter.OrderBy + " " + dir
	}

	var lots []*point.Accumulation
	err = r.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order(order).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&lots).Error
	if err != nil {
		return nil, 0, err
	}
	return lots, total, nil
}

// FindAvailableForUpdate returns a member's available lots in draw order,
// locking the rows for the enclosing transaction. Manual grants come first,
// then earliest expiry, then creation order.
func (r *GormAccumulationRepository) FindAvailableForUpdate(ctx context.Context, memberID uuid.UUID, now time.Time) ([]*point.Accumulation, error) {
	var lots []*point.Accumulation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("member_id = ? AND remaining > 0 AND expire_at > ? AND cancelled_at IS NULL", memberID, now).
		Order("manual DESC, expire_at ASC, created_at ASC").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// FindExpired returns lots past expiry that still carry a remainder and have
// not been cancelled, oldest expiry first
func (r *GormAccumulationRepository) FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*point.Accumulation, error) {
	var lots []*point.Accumulation
	query := r.db.WithContext(ctx).
		Where("remaining > 0 AND expire_at <= ? AND cancelled_at IS NULL", asOf).
		Order("expire_at ASC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

var _ point.AccumulationRepository = (*GormAccumulationRepository)(nil)
