package point

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// Usage represents one point-usage transaction. The amounts drawn from
// individual lots are recorded as UsageDetails created atomically with the
// usage; detail amounts always sum exactly to Amount.
type Usage struct {
	shared.BaseEntity
	Key         valueobject.PointKey `gorm:"uniqueIndex"`
	MemberID    uuid.UUID            `gorm:"index"`
	OrderID     string               `gorm:"index"` // order/usage correlation identifier
	Amount      valueobject.Money
	CancelledAt *time.Time
	Details     []UsageDetail `gorm:"foreignKey:UsageID"`
}

// UsageDetail links a usage transaction to one accumulation lot it drew from
type UsageDetail struct {
	shared.BaseEntity
	UsageID         uuid.UUID `gorm:"index"`
	AccumulationKey valueobject.PointKey
	Amount          valueobject.Money
}

// NewUsage creates a usage transaction from a completed allocation plan
func NewUsage(memberID uuid.UUID, orderID string, amount valueobject.Money, allocations []Allocation) (*Usage, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Member ID is required")
	}
	if orderID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order ID is required")
	}
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	usage := &Usage{
		BaseEntity: shared.NewBaseEntity(),
		Key:        valueobject.NewPointKey(),
		MemberID:   memberID,
		OrderID:    orderID,
		Amount:     amount,
	}

	total := valueobject.ZeroMoney()
	for _, alloc := range allocations {
		usage.Details = append(usage.Details, UsageDetail{
			BaseEntity:      shared.NewBaseEntity(),
			UsageID:         usage.ID,
			AccumulationKey: alloc.Lot.Key,
			Amount:          alloc.Amount,
		})
		total = total.Add(alloc.Amount)
	}
	if !total.Equals(amount) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Allocation amounts must sum to the usage amount")
	}

	return usage, nil
}

// IsCancelled returns true if the usage has been cancelled
func (u *Usage) IsCancelled() bool {
	return u.CancelledAt != nil
}

// Cancel marks the usage as cancelled
func (u *Usage) Cancel() error {
	if u.IsCancelled() {
		return shared.ErrCannotCancelUsage
	}
	now := time.Now()
	u.CancelledAt = &now
	u.UpdatedAt = now
	return nil
}
