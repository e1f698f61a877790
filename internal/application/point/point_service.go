package point

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PointService coordinates the loyalty-point operations. Each operation
// first mutates the ledger of record inside a transaction scope; only after
// the commit does it construct the corresponding balance event and hand it
// to the publisher. Cache freshness is therefore never on the caller's
// critical path: a failed cache update is absorbed downstream by the
// balance update handler.
type PointService struct {
	scope     TransactionScope
	selector  *point.AllocationSelector
	publisher shared.EventPublisher
	metrics   *telemetry.PointMetrics
	logger    *zap.Logger
}

// NewPointService creates a new PointService
func NewPointService(scope TransactionScope, publisher shared.EventPublisher, logger *zap.Logger) *PointService {
	return &PointService{
		scope:     scope,
		selector:  point.NewAllocationSelector(),
		publisher: publisher,
		logger:    logger,
	}
}

// SetPointMetrics sets the business metrics collector
func (s *PointService) SetPointMetrics(pm *telemetry.PointMetrics) {
	s.metrics = pm
}

// publish hands events to the event bus after a successful ledger commit.
// Publish errors are logged, never propagated: the ledger write stands.
func (s *PointService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish balance events", zap.Error(err))
	}
}

// Accumulate grants a new accumulation lot to a member
func (s *PointService) Accumulate(ctx context.Context, memberID uuid.UUID, amount valueobject.Money, manual bool, expireAt time.Time) (*AccumulationResponse, error) {
	lot, err := point.NewAccumulation(memberID, amount, manual, expireAt)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		return repos.AccumulationRepo().Save(ctx, lot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points accumulated",
		zap.String("member_id", memberID.String()),
		zap.String("point_key", lot.Key.String()),
		zap.Int64("amount", amount.Int64()),
		zap.Bool("manual", manual),
	)
	s.publish(ctx, point.NewPointAccumulatedEvent(lot))
	if s.metrics != nil {
		s.metrics.RecordAccumulation(ctx, amount.Int64(), manual)
	}

	response := ToAccumulationResponse(lot)
	return &response, nil
}

// Use consumes points for an order. The selector plans draws over the
// member's available lots while they are row-locked, then the draws, the
// usage and its details are committed atomically.
func (s *PointService) Use(ctx context.Context, memberID uuid.UUID, orderID string, amount valueobject.Money) (*UsageResponse, error) {
	if orderID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order ID is required")
	}
	if !amount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	var usage *point.Usage
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		now := time.Now()
		lots, err := repos.AccumulationRepo().FindAvailableForUpdate(ctx, memberID, now)
		if err != nil {
			return err
		}

		allocations, err := s.selector.SelectAt(amount, lots, now)
		if err != nil {
			return err
		}

		usage, err = point.NewUsage(memberID, orderID, amount, allocations)
		if err != nil {
			return err
		}

		for _, alloc := range allocations {
			if err := alloc.Lot.Draw(alloc.Amount); err != nil {
				return err
			}
			if err := repos.AccumulationRepo().SaveWithLock(ctx, alloc.Lot); err != nil {
				return err
			}
		}
		return repos.UsageRepo().Save(ctx, usage)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("points used",
		zap.String("member_id", memberID.String()),
		zap.String("usage_key", usage.Key.String()),
		zap.String("order_id", orderID),
		zap.Int64("amount", amount.Int64()),
		zap.Int("lots_drawn", len(usage.Details)),
	)
	s.publish(ctx, point.NewPointUsedEvent(usage))
	if s.metrics != nil {
		s.metrics.RecordUsage(ctx, amount.Int64())
	}

	response := ToUsageResponse(usage)
	return &response, nil
}

// CancelAccumulation cancels an untouched accumulation lot
func (s *PointService) CancelAccumulation(ctx context.Context, key valueobject.PointKey) (*AccumulationResponse, error) {
	var lot *point.Accumulation
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		lot, err = repos.AccumulationRepo().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if lot.IsExpired(time.Now()) {
			return shared.ErrPointExpired
		}
		if err := lot.Cancel(); err != nil {
			return err
		}
		return repos.AccumulationRepo().SaveWithLock(ctx, lot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("accumulation cancelled",
		zap.String("member_id", lot.MemberID.String()),
		zap.String("point_key", lot.Key.String()),
	)
	s.publish(ctx, point.NewAccumulationCancelledEvent(lot))
	if s.metrics != nil {
		s.metrics.RecordCancellation(ctx, "accumulation")
	}

	response := ToAccumulationResponse(lot)
	return &response, nil
}

// CancelUsage reverses a usage transaction, restoring each drawn lot
func (s *PointService) CancelUsage(ctx context.Context, key valueobject.PointKey) (*UsageResponse, error) {
	var usage *point.Usage
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		var err error
		usage, err = repos.UsageRepo().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		if err := usage.Cancel(); err != nil {
			return err
		}

		for _, detail := range usage.Details {
			lot, err := repos.AccumulationRepo().FindByKey(ctx, detail.AccumulationKey)
			if err != nil {
				return err
			}
			if err := lot.Restore(detail.Amount); err != nil {
				return err
			}
			if err := repos.AccumulationRepo().SaveWithLock(ctx, lot); err != nil {
				return err
			}
		}
		return repos.UsageRepo().Save(ctx, usage)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("usage cancelled",
		zap.String("member_id", usage.MemberID.String()),
		zap.String("usage_key", usage.Key.String()),
		zap.String("order_id", usage.OrderID),
	)
	s.publish(ctx, point.NewUsageCancelledEvent(usage))
	if s.metrics != nil {
		s.metrics.RecordCancellation(ctx, "usage")
	}

	response := ToUsageResponse(usage)
	return &response, nil
}

// ExpirePoints writes off the remainders of lots past expiry. Returns the
// number of lots expired. Intended to be driven by the expiration sweeper.
func (s *PointService) ExpirePoints(ctx context.Context, asOf time.Time, limit int) (int, error) {
	type expiredLot struct {
		lot    *point.Accumulation
		amount valueobject.Money
	}

	var expired []expiredLot
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		lots, err := repos.AccumulationRepo().FindExpired(ctx, asOf, limit)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			amount := lot.Expire()
			if !amount.IsPositive() {
				continue
			}
			if err := repos.AccumulationRepo().SaveWithLock(ctx, lot); err != nil {
				return err
			}
			expired = append(expired, expiredLot{lot: lot, amount: amount})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		s.logger.Info("points expired",
			zap.String("member_id", e.lot.MemberID.String()),
			zap.String("point_key", e.lot.Key.String()),
			zap.Int64("amount", e.amount.Int64()),
		)
		s.publish(ctx, point.NewPointExpiredEvent(e.lot, e.amount))
		if s.metrics != nil {
			s.metrics.RecordExpiry(ctx, e.amount.Int64())
		}
	}
	return len(expired), nil
}

// GetAccumulations returns a page of a member's lots
func (s *PointService) GetAccumulations(ctx context.Context, memberID uuid.UUID, filter shared.Filter) (*shared.Paginated[AccumulationResponse], error) {
	var page shared.Paginated[AccumulationResponse]
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		lots, total, err := repos.AccumulationRepo().FindByMemberPaged(ctx, memberID, filter)
		if err != nil {
			return err
		}
		responses := make([]AccumulationResponse, 0, len(lots))
		for _, lot := range lots {
			responses = append(responses, ToAccumulationResponse(lot))
		}
		page = shared.NewPaginated(responses, total, filter.Page, filter.Limit())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAccumulation returns one lot by its key
func (s *PointService) GetAccumulation(ctx context.Context, key valueobject.PointKey) (*AccumulationResponse, error) {
	var response AccumulationResponse
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		lot, err := repos.AccumulationRepo().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		response = ToAccumulationResponse(lot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// GetUsage returns one usage transaction by its key, details included
func (s *PointService) GetUsage(ctx context.Context, key valueobject.PointKey) (*UsageResponse, error) {
	var response UsageResponse
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		usage, err := repos.UsageRepo().FindByKey(ctx, key)
		if err != nil {
			return err
		}
		response = ToUsageResponse(usage)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// GetUsages returns all usage transactions of a member, oldest first
func (s *PointService) GetUsages(ctx context.Context, memberID uuid.UUID) ([]UsageResponse, error) {
	var responses []UsageResponse
	err := s.scope.Execute(ctx, func(repos LedgerRepositories) error {
		usages, err := repos.UsageRepo().FindByMember(ctx, memberID)
		if err != nil {
			return err
		}
		responses = make([]UsageResponse, 0, len(usages))
		for _, usage := range usages {
			responses = append(responses, ToUsageResponse(usage))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}
