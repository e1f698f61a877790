package point

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
)

// ReconciliationStatus is the lifecycle state of a reconciliation request
type ReconciliationStatus string

const (
	// ReconciliationPending means the request was emitted but not yet processed
	ReconciliationPending ReconciliationStatus = "pending"
	// ReconciliationApplied means the balance was recomputed and the cache overwritten
	ReconciliationApplied ReconciliationStatus = "applied"
)

// ReconciliationRequest asks for a member's cached balance to be recomputed
// from the ledger of record. It is created only when applying a balance
// event to the cache fails; processing is idempotent, so at-least-once
// delivery needs no deduplication.
type ReconciliationRequest struct {
	ID         uuid.UUID
	MemberID   uuid.UUID
	EventType  string
	Reason     string
	Status     ReconciliationStatus
	OccurredAt time.Time
	AppliedAt  *time.Time
}

// NewReconciliationRequest creates a pending reconciliation request for a
// member whose balance cache could not apply the given event.
func NewReconciliationRequest(memberID uuid.UUID, eventType string, cause error) (*ReconciliationRequest, error) {
	if memberID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Member ID is required")
	}
	if eventType == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Event type is required")
	}
	reason := eventType
	if cause != nil {
		reason = fmt.Sprintf("%s: %s", eventType, cause.Error())
	}
	return &ReconciliationRequest{
		ID:         uuid.New(),
		MemberID:   memberID,
		EventType:  eventType,
		Reason:     reason,
		Status:     ReconciliationPending,
		OccurredAt: time.Now(),
	}, nil
}

// MarkApplied transitions the request to the applied state
func (r *ReconciliationRequest) MarkApplied() {
	now := time.Now()
	r.Status = ReconciliationApplied
	r.AppliedAt = &now
}

// IsPending returns true while the request awaits processing
func (r *ReconciliationRequest) IsPending() bool {
	return r.Status == ReconciliationPending
}
