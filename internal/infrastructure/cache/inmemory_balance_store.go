package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
)

// InMemoryBalanceStore implements MemberBalanceStore with a process-local
// map. Suitable for single-instance deployments and testing; balances are
// copied on read and write so callers never share mutable state.
type InMemoryBalanceStore struct {
	mu       sync.RWMutex
	balances map[uuid.UUID]point.MemberBalance
}

// NewInMemoryBalanceStore creates a new in-memory balance store
func NewInMemoryBalanceStore() *InMemoryBalanceStore {
	return &InMemoryBalanceStore{
		balances: make(map[uuid.UUID]point.MemberBalance),
	}
}

// Find returns the cached balance, or shared.ErrNotFound
func (s *InMemoryBalanceStore) Find(_ context.Context, memberID uuid.UUID) (*point.MemberBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[memberID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := balance
	return &copied, nil
}

// Save overwrites the cached balance
func (s *InMemoryBalanceStore) Save(_ context.Context, balance *point.MemberBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balance.MemberID] = *balance
	return nil
}

// Size returns the number of cached balances (for testing/monitoring)
func (s *InMemoryBalanceStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.balances)
}

var _ point.MemberBalanceStore = (*InMemoryBalanceStore)(nil)
