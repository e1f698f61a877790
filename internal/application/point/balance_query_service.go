package point

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BalanceQueryService serves balance reads from the cache. On a cache miss
// the balance is rebuilt from the ledger before answering, so a cold or
// flushed cache degrades to a slower read, never a wrong one.
type BalanceQueryService struct {
	store          point.MemberBalanceStore
	reconciliation *ReconciliationService
	logger         *zap.Logger
}

// NewBalanceQueryService creates a new balance query service
func NewBalanceQueryService(store point.MemberBalanceStore, reconciliation *ReconciliationService, logger *zap.Logger) *BalanceQueryService {
	return &BalanceQueryService{
		store:          store,
		reconciliation: reconciliation,
		logger:         logger,
	}
}

// GetBalance returns the member's balance, rebuilding it on a cache miss
func (s *BalanceQueryService) GetBalance(ctx context.Context, memberID uuid.UUID) (*BalanceResponse, error) {
	balance, err := s.store.Find(ctx, memberID)
	if err == nil {
		response := ToBalanceResponse(balance)
		return &response, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	s.logger.Debug("balance cache miss, rebuilding from ledger",
		zap.String("member_id", memberID.String()),
	)
	if err := s.reconciliation.RebuildBalance(ctx, memberID); err != nil {
		return nil, err
	}

	balance, err = s.store.Find(ctx, memberID)
	if err != nil {
		return nil, err
	}
	response := ToBalanceResponse(balance)
	return &response, nil
}
