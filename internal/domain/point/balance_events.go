package point

import (
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// Aggregate type constant
const AggregateTypeMemberBalance = "MemberBalance"

// Balance event types. This is a closed set: every event the balance
// projection consumes is one of these five.
const (
	EventTypePointAccumulated      = "PointAccumulated"
	EventTypeAccumulationCancelled = "AccumulationCancelled"
	EventTypePointUsed             = "PointUsed"
	EventTypeUsageCancelled        = "UsageCancelled"
	EventTypePointExpired          = "PointExpired"
)

// BalanceEventTypes returns all balance event types
func BalanceEventTypes() []string {
	return []string{
		EventTypePointAccumulated,
		EventTypeAccumulationCancelled,
		EventTypePointUsed,
		EventTypeUsageCancelled,
		EventTypePointExpired,
	}
}

// BalanceEvent is a transient coordination signal constructed strictly
// after the corresponding ledger write commits. It carries everything the
// balance projection needs to apply the change; it is never persisted.
type BalanceEvent interface {
	shared.DomainEvent
	BalanceMemberID() uuid.UUID
	BalanceAmount() valueobject.Money
	BalancePointKey() valueobject.PointKey
}

// baseBalanceEvent provides the common balance event payload
type baseBalanceEvent struct {
	shared.BaseDomainEvent
	MemberID uuid.UUID            `json:"member_id"`
	Amount   valueobject.Money    `json:"amount"`
	PointKey valueobject.PointKey `json:"point_key"`
}

func newBaseBalanceEvent(eventType string, memberID uuid.UUID, amount valueobject.Money, key valueobject.PointKey) baseBalanceEvent {
	return baseBalanceEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeMemberBalance, memberID),
		MemberID:        memberID,
		Amount:          amount,
		PointKey:        key,
	}
}

// BalanceMemberID returns the member whose balance the event addresses
func (e *baseBalanceEvent) BalanceMemberID() uuid.UUID {
	return e.MemberID
}

// BalanceAmount returns the point amount the event carries
func (e *baseBalanceEvent) BalanceAmount() valueobject.Money {
	return e.Amount
}

// BalancePointKey returns the key of the originating lot or usage
func (e *baseBalanceEvent) BalancePointKey() valueobject.PointKey {
	return e.PointKey
}

// PointAccumulatedEvent is raised when an accumulation lot is created
type PointAccumulatedEvent struct {
	baseBalanceEvent
	Manual bool `json:"manual"`
}

// NewPointAccumulatedEvent creates a PointAccumulatedEvent from a committed lot
func NewPointAccumulatedEvent(lot *Accumulation) *PointAccumulatedEvent {
	return &PointAccumulatedEvent{
		baseBalanceEvent: newBaseBalanceEvent(EventTypePointAccumulated, lot.MemberID, lot.Amount, lot.Key),
		Manual:           lot.Manual,
	}
}

// AccumulationCancelledEvent is raised when an untouched lot is cancelled
type AccumulationCancelledEvent struct {
	baseBalanceEvent
}

// NewAccumulationCancelledEvent creates an AccumulationCancelledEvent
func NewAccumulationCancelledEvent(lot *Accumulation) *AccumulationCancelledEvent {
	return &AccumulationCancelledEvent{
		baseBalanceEvent: newBaseBalanceEvent(EventTypeAccumulationCancelled, lot.MemberID, lot.Amount, lot.Key),
	}
}

// PointUsedEvent is raised when a usage transaction commits
type PointUsedEvent struct {
	baseBalanceEvent
	OrderID string `json:"order_id"`
}

// NewPointUsedEvent creates a PointUsedEvent from a committed usage
func NewPointUsedEvent(usage *Usage) *PointUsedEvent {
	return &PointUsedEvent{
		baseBalanceEvent: newBaseBalanceEvent(EventTypePointUsed, usage.MemberID, usage.Amount, usage.Key),
		OrderID:          usage.OrderID,
	}
}

// UsageCancelledEvent is raised when a usage transaction is cancelled
type UsageCancelledEvent struct {
	baseBalanceEvent
}

// NewUsageCancelledEvent creates a UsageCancelledEvent
func NewUsageCancelledEvent(usage *Usage) *UsageCancelledEvent {
	return &UsageCancelledEvent{
		baseBalanceEvent: newBaseBalanceEvent(EventTypeUsageCancelled, usage.MemberID, usage.Amount, usage.Key),
	}
}

// PointExpiredEvent is raised when an expired lot's remainder is written off
type PointExpiredEvent struct {
	baseBalanceEvent
}

// NewPointExpiredEvent creates a PointExpiredEvent carrying the expired remainder
func NewPointExpiredEvent(lot *Accumulation, expired valueobject.Money) *PointExpiredEvent {
	return &PointExpiredEvent{
		baseBalanceEvent: newBaseBalanceEvent(EventTypePointExpired, lot.MemberID, expired, lot.Key),
	}
}

// ApplyBalanceEvent applies a balance event to the member balance
// projection. The closed event set is matched explicitly here, in the one
// place events are consumed, rather than dispatched through the events
// themselves.
func ApplyBalanceEvent(balance *MemberBalance, event BalanceEvent) error {
	switch event.EventType() {
	case EventTypePointAccumulated:
		return balance.AddBalance(event.BalanceAmount())
	case EventTypeAccumulationCancelled:
		return balance.CancelAccumulation(event.BalanceAmount())
	case EventTypePointUsed:
		return balance.SubtractBalance(event.BalanceAmount())
	case EventTypeUsageCancelled:
		return balance.RestoreBalance(event.BalanceAmount())
	case EventTypePointExpired:
		return balance.ExpireBalance(event.BalanceAmount())
	default:
		return shared.NewDomainError("UNKNOWN_EVENT", "Unknown balance event type: "+event.EventType())
	}
}
