package point

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// MemberBalance is the per-member cached balance aggregate: a fast-read
// projection of the accumulation/usage ledger, never the source of truth.
// It is mutated only through the named operations below, driven by balance
// events, and can be rebuilt from scratch by reconciliation. The operations
// do not validate cross-field invariants (available <= total); the ledger
// write that precedes each event carries that responsibility, and a stale
// projection is repaired by the next reconciliation.
type MemberBalance struct {
	MemberID  uuid.UUID `gorm:"primaryKey"`
	Total     valueobject.Money
	Available valueobject.Money
	Expired   valueobject.Money
	UpdatedAt time.Time
}

// NewMemberBalance creates an empty balance for a member
func NewMemberBalance(memberID uuid.UUID) (*MemberBalance, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Member ID is required")
	}
	return &MemberBalance{
		MemberID:  memberID,
		Total:     valueobject.ZeroMoney(),
		Available: valueobject.ZeroMoney(),
		Expired:   valueobject.ZeroMoney(),
		UpdatedAt: time.Now(),
	}, nil
}

// AddBalance increases total and available (point accumulation)
func (b *MemberBalance) AddBalance(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	b.Total = b.Total.Add(amount)
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// SubtractBalance decreases available (point usage)
func (b *MemberBalance) SubtractBalance(amount valueobject.Money) error {
	available, err := b.Available.Subtract(amount)
	if err != nil {
		return err
	}
	b.Available = available
	b.UpdatedAt = time.Now()
	return nil
}

// RestoreBalance increases available (usage cancellation)
func (b *MemberBalance) RestoreBalance(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	b.Available = b.Available.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}

// CancelAccumulation decreases total and available (accumulation
// cancellation; legal only for lots with no draws, enforced upstream)
func (b *MemberBalance) CancelAccumulation(amount valueobject.Money) error {
	total, err := b.Total.Subtract(amount)
	if err != nil {
		return err
	}
	available, err := b.Available.Subtract(amount)
	if err != nil {
		return err
	}
	b.Total = total
	b.Available = available
	b.UpdatedAt = time.Now()
	return nil
}

// ApplyLot folds one accumulation lot into the balance during a rebuild.
// Cancelled lots are skipped; a remainder counts as available while the lot
// is live and as expired once past its expiry date, swept or not.
func (b *MemberBalance) ApplyLot(lot *Accumulation, now time.Time) {
	if lot.IsCancelled() {
		return
	}
	b.Total = b.Total.Add(lot.Amount)
	b.Expired = b.Expired.Add(lot.ExpiredAmount)
	if lot.IsExpired(now) {
		b.Expired = b.Expired.Add(lot.Remaining)
	} else {
		b.Available = b.Available.Add(lot.Remaining)
	}
	b.UpdatedAt = now
}

// ExpireBalance decreases available and increases expired
func (b *MemberBalance) ExpireBalance(amount valueobject.Money) error {
	available, err := b.Available.Subtract(amount)
	if err != nil {
		return err
	}
	b.Available = available
	b.Expired = b.Expired.Add(amount)
	b.UpdatedAt = time.Now()
	return nil
}
