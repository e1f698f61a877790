package point

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// fakeAccumulationRepo is an in-memory AccumulationRepository keyed by PointKey
type fakeAccumulationRepo struct {
	mu   sync.Mutex
	lots map[valueobject.PointKey]*point.Accumulation
}

func newFakeAccumulationRepo() *fakeAccumulationRepo {
	return &fakeAccumulationRepo{lots: make(map[valueobject.PointKey]*point.Accumulation)}
}

func (r *fakeAccumulationRepo) Save(_ context.Context, lot *point.Accumulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.Key] = lot
	return nil
}

func (r *fakeAccumulationRepo) SaveWithLock(_ context.Context, lot *point.Accumulation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lots[lot.Key]; !ok {
		return shared.ErrConcurrencyConflict
	}
	r.lots[lot.Key] = lot
	return nil
}

func (r *fakeAccumulationRepo) FindByKey(_ context.Context, key valueobject.PointKey) (*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.lots[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return lot, nil
}

func (r *fakeAccumulationRepo) FindByMember(_ context.Context, memberID uuid.UUID) ([]*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lots []*point.Accumulation
	for _, lot := range r.lots {
		if lot.MemberID == memberID {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].CreatedAt.Before(lots[j].CreatedAt) })
	return lots, nil
}

func (r *fakeAccumulationRepo) FindByMemberPaged(ctx context.Context, memberID uuid.UUID, filter shared.Filter) ([]*point.Accumulation, int64, error) {
	lots, err := r.FindByMember(ctx, memberID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(lots))
	offset := filter.Offset()
	if offset > len(lots) {
		offset = len(lots)
	}
	end := offset + filter.Limit()
	if end > len(lots) {
		end = len(lots)
	}
	return lots[offset:end], total, nil
}

func (r *fakeAccumulationRepo) FindAvailableForUpdate(ctx context.Context, memberID uuid.UUID, now time.Time) ([]*point.Accumulation, error) {
	lots, err := r.FindByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	var available []*point.Accumulation
	for _, lot := range lots {
		if lot.IsAvailable(now) {
			available = append(available, lot)
		}
	}
	return available, nil
}

func (r *fakeAccumulationRepo) FindExpired(_ context.Context, asOf time.Time, limit int) ([]*point.Accumulation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*point.Accumulation
	for _, lot := range r.lots {
		if lot.IsExpired(asOf) && !lot.IsCancelled() && lot.Remaining.IsPositive() {
			expired = append(expired, lot)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpireAt.Before(expired[j].ExpireAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// fakeUsageRepo is an in-memory UsageRepository keyed by PointKey
type fakeUsageRepo struct {
	mu     sync.Mutex
	usages map[valueobject.PointKey]*point.Usage
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{usages: make(map[valueobject.PointKey]*point.Usage)}
}

func (r *fakeUsageRepo) Save(_ context.Context, usage *point.Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usages[usage.Key] = usage
	return nil
}

func (r *fakeUsageRepo) FindByKey(_ context.Context, key valueobject.PointKey) (*point.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	usage, ok := r.usages[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return usage, nil
}

func (r *fakeUsageRepo) FindByMember(_ context.Context, memberID uuid.UUID) ([]*point.Usage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var usages []*point.Usage
	for _, usage := range r.usages {
		if usage.MemberID == memberID {
			usages = append(usages, usage)
		}
	}
	sort.Slice(usages, func(i, j int) bool { return usages[i].CreatedAt.Before(usages[j].CreatedAt) })
	return usages, nil
}

// fakeBalanceStore is an in-memory MemberBalanceStore with failure injection
type fakeBalanceStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]*point.MemberBalance
	findErr  error
	saveErr  error
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{balances: make(map[uuid.UUID]*point.MemberBalance)}
}

func (s *fakeBalanceStore) Find(_ context.Context, memberID uuid.UUID) (*point.MemberBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	balance, ok := s.balances[memberID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *balance
	return &copied, nil
}

func (s *fakeBalanceStore) Save(_ context.Context, balance *point.MemberBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *balance
	s.balances[balance.MemberID] = &copied
	return nil
}

// fakeReconciliationQueue records enqueued requests
type fakeReconciliationQueue struct {
	mu       sync.Mutex
	requests []*point.ReconciliationRequest
}

func (q *fakeReconciliationQueue) Enqueue(_ context.Context, request *point.ReconciliationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, request)
	return nil
}

// capturingPublisher records published events
type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}
