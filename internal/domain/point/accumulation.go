package point

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// Accumulation represents one grant of points: an accumulation lot with an
// independent remaining balance and expiration date. Lots are the ledger of
// record for earned points; usage draws reduce Remaining until the lot is
// fully consumed.
type Accumulation struct {
	shared.BaseAggregateRoot
	Key           valueobject.PointKey `gorm:"uniqueIndex"`
	MemberID      uuid.UUID            `gorm:"index"`
	Amount        valueobject.Money    // granted amount, fixed at creation
	Remaining     valueobject.Money    // available amount, <= Amount
	Manual        bool                 // manually granted lots are drawn first
	ExpireAt      time.Time
	ExpiredAmount valueobject.Money // remainder written off after expiry
	CancelledAt   *time.Time
}

var _ shared.AggregateRoot = (*Accumulation)(nil)

// NewAccumulation creates a new accumulation lot
func NewAccumulation(memberID uuid.UUID, amount valueobject.Money, manual bool, expireAt time.Time) (*Accumulation, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Member ID is required")
	}
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}
	return &Accumulation{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Key:               valueobject.NewPointKey(),
		MemberID:          memberID,
		Amount:            amount,
		Remaining:         amount,
		Manual:            manual,
		ExpireAt:          expireAt,
		ExpiredAmount:     valueobject.ZeroMoney(),
	}, nil
}

// UsedAmount returns the portion of the grant already drawn
func (a *Accumulation) UsedAmount() valueobject.Money {
	used, err := a.Amount.Subtract(a.Remaining.Add(a.ExpiredAmount))
	if err != nil {
		// Remaining + ExpiredAmount <= Amount is a structural invariant
		panic("accumulation remaining exceeds granted amount: " + a.Key.String())
	}
	return used
}

// IsExpired returns true if the lot has expired at the given time
func (a *Accumulation) IsExpired(now time.Time) bool {
	return !a.ExpireAt.After(now)
}

// IsCancelled returns true if the lot has been cancelled
func (a *Accumulation) IsCancelled() bool {
	return a.CancelledAt != nil
}

// IsAvailable returns true if the lot can be drawn from
func (a *Accumulation) IsAvailable(now time.Time) bool {
	return a.Remaining.IsPositive() && !a.IsExpired(now) && !a.IsCancelled()
}

// Draw reduces the remaining amount by the given draw.
// Fails with ErrInsufficientPoint when the draw exceeds Remaining; the
// selector guards this with min(), so a failure here means the candidate
// set changed between planning and commit.
func (a *Accumulation) Draw(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	if amount.GreaterThan(a.Remaining) {
		return shared.ErrInsufficientPoint
	}
	remaining, err := a.Remaining.Subtract(amount)
	if err != nil {
		return err
	}
	a.Remaining = remaining
	a.IncrementVersion()
	a.UpdatedAt = time.Now()
	return nil
}

// Restore returns a previously drawn amount to the lot (usage cancellation).
// The restored remaining amount can never exceed the granted amount.
func (a *Accumulation) Restore(amount valueobject.Money) error {
	if !amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	restored := a.Remaining.Add(amount)
	if restored.Add(a.ExpiredAmount).GreaterThan(a.Amount) {
		return shared.ErrCannotCancelDetail
	}
	a.Remaining = restored
	a.IncrementVersion()
	a.UpdatedAt = time.Now()
	return nil
}

// Cancel marks the lot as cancelled. A lot may be cancelled only while
// untouched by any usage; afterwards it is excluded from selection.
func (a *Accumulation) Cancel() error {
	if a.IsCancelled() {
		return shared.ErrCannotCancelAccumulation
	}
	if a.UsedAmount().IsPositive() {
		return shared.ErrCannotCancelAccumulation
	}
	now := time.Now()
	a.CancelledAt = &now
	a.IncrementVersion()
	a.UpdatedAt = now
	return nil
}

// Expire writes off the remaining amount and returns the amount expired
func (a *Accumulation) Expire() valueobject.Money {
	expired := a.Remaining
	a.ExpiredAmount = a.ExpiredAmount.Add(expired)
	a.Remaining = valueobject.ZeroMoney()
	a.IncrementVersion()
	a.UpdatedAt = time.Now()
	return expired
}
