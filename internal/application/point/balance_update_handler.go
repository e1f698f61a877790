package point

import (
	"context"
	"errors"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BalanceUpdateHandler is the single consumer of balance events. It applies
// each event to the addressed member's cached balance. When the cache
// cannot apply the event for any reason, the failure is absorbed: a
// ReconciliationRequest is enqueued to rebuild the balance out-of-band, and
// the handler reports success so the failure never travels back toward the
// caller whose ledger write already committed.
type BalanceUpdateHandler struct {
	store  point.MemberBalanceStore
	queue  point.ReconciliationQueue
	logger *zap.Logger
}

// NewBalanceUpdateHandler creates a new balance update handler
func NewBalanceUpdateHandler(store point.MemberBalanceStore, queue point.ReconciliationQueue, logger *zap.Logger) *BalanceUpdateHandler {
	return &BalanceUpdateHandler{
		store:  store,
		queue:  queue,
		logger: logger,
	}
}

// EventTypes returns the balance event types this handler consumes
func (h *BalanceUpdateHandler) EventTypes() []string {
	return point.BalanceEventTypes()
}

// Handle applies a balance event to the member balance cache
func (h *BalanceUpdateHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	balanceEvent, ok := event.(point.BalanceEvent)
	if !ok {
		h.logger.Warn("ignoring non-balance event",
			zap.String("event_type", event.EventType()),
		)
		return nil
	}

	if err := h.apply(ctx, balanceEvent); err != nil {
		h.requestReconciliation(ctx, balanceEvent, err)
	}
	return nil
}

// apply loads (or creates) the cached balance and applies the event
func (h *BalanceUpdateHandler) apply(ctx context.Context, event point.BalanceEvent) error {
	balance, err := h.store.Find(ctx, event.BalanceMemberID())
	if err != nil {
		var derr *shared.DomainError
		if !errors.As(err, &derr) || derr.Code != shared.ErrNotFound.Code {
			return err
		}
		balance, err = point.NewMemberBalance(event.BalanceMemberID())
		if err != nil {
			return err
		}
	}

	if err := point.ApplyBalanceEvent(balance, event); err != nil {
		return err
	}
	return h.store.Save(ctx, balance)
}

// requestReconciliation converts a cache failure into a pending rebuild
func (h *BalanceUpdateHandler) requestReconciliation(ctx context.Context, event point.BalanceEvent, cause error) {
	h.logger.Warn("balance cache update failed, requesting reconciliation",
		zap.String("member_id", event.BalanceMemberID().String()),
		zap.String("event_type", event.EventType()),
		zap.Error(cause),
	)

	request, err := point.NewReconciliationRequest(event.BalanceMemberID(), event.EventType(), cause)
	if err != nil {
		h.logger.Error("failed to build reconciliation request", zap.Error(err))
		return
	}
	if err := h.queue.Enqueue(ctx, request); err != nil {
		// The next event for this member, or a manual rebuild, will repair
		// the cache; the ledger of record is unaffected either way.
		h.logger.Error("failed to enqueue reconciliation request",
			zap.String("member_id", request.MemberID.String()),
			zap.Error(err),
		)
	}
}

var _ shared.EventHandler = (*BalanceUpdateHandler)(nil)
