package point

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconciliationService rebuilds a member's cached balance from the ledger
// of record. Rebuilding is a pure function of the ledger state, so
// processing the same request any number of times converges to the same
// balance; at-least-once delivery needs no deduplication.
type ReconciliationService struct {
	scope   TransactionScope
	store   point.MemberBalanceStore
	metrics *telemetry.PointMetrics
	logger  *zap.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(scope TransactionScope, store point.MemberBalanceStore, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		scope:  scope,
		store:  store,
		logger: logger,
	}
}

// SetPointMetrics sets the business metrics collector
func (s *ReconciliationService) SetPointMetrics(pm *telemetry.PointMetrics) {
	s.metrics = pm
}

// Process recomputes the balance for a pending request and marks it applied
func (s *ReconciliationService) Process(ctx context.Context, request *point.ReconciliationRequest) error {
	if !request.IsPending() {
		return nil
	}

	if err := s.RebuildBalance(ctx, request.MemberID); err != nil {
		return err
	}

	request.MarkApplied()
	if s.metrics != nil {
		s.metrics.RecordReconciliation(ctx)
	}
	s.logger.Info("balance reconciled",
		zap.String("member_id", request.MemberID.String()),
		zap.String("trigger_event", request.EventType),
		zap.String("reason", request.Reason),
	)
	return nil
}

// RebuildBalance recomputes total/available/expired from the member's lots
// and usage records and atomically overwrites the cached balance.
//
//   - total: sum of granted amounts of non-cancelled lots
//   - expired: sum of remainders already written off plus remainders of
//     lots past expiry not yet swept
//   - available: sum of remainders of live, non-cancelled lots
func (s *ReconciliationService) RebuildBalance(ctx context.Context, memberID uuid.UUID) error {
	balance, err := point.NewMemberBalance(memberID)
	if err != nil {
		return err
	}

	err = s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		lots, err := repos.AccumulationRepo().FindByMember(ctx, memberID)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, lot := range lots {
			balance.ApplyLot(lot, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	balance.UpdatedAt = time.Now()
	return s.store.Save(ctx, balance)
}
