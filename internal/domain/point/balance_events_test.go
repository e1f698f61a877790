package point

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceEventConstruction(t *testing.T) {
	memberID := uuid.New()
	lot, err := NewAccumulation(memberID, valueobject.MustMoney(1000), false, time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("accumulated event carries lot key and amount", func(t *testing.T) {
		event := NewPointAccumulatedEvent(lot)

		assert.Equal(t, EventTypePointAccumulated, event.EventType())
		assert.Equal(t, memberID, event.BalanceMemberID())
		assert.Equal(t, int64(1000), event.BalanceAmount().Int64())
		assert.True(t, event.BalancePointKey().Equals(lot.Key))
		assert.NotEqual(t, uuid.Nil, event.EventID())
		assert.WithinDuration(t, time.Now(), event.OccurredAt(), time.Second)
	})

	t.Run("used event additionally carries the order correlation id", func(t *testing.T) {
		selector := NewAllocationSelector()
		allocations, err := selector.Select(valueobject.MustMoney(400), []*Accumulation{lot})
		require.NoError(t, err)
		usage, err := NewUsage(memberID, "O-1", valueobject.MustMoney(400), allocations)
		require.NoError(t, err)

		event := NewPointUsedEvent(usage)

		assert.Equal(t, EventTypePointUsed, event.EventType())
		assert.Equal(t, "O-1", event.OrderID)
		assert.Equal(t, int64(400), event.BalanceAmount().Int64())
		assert.True(t, event.BalancePointKey().Equals(usage.Key))
	})
}

func TestApplyBalanceEvent(t *testing.T) {
	memberID := uuid.New()

	newLotAndBalance := func(t *testing.T, amount int64) (*Accumulation, *MemberBalance) {
		lot, err := NewAccumulation(memberID, valueobject.MustMoney(amount), false, time.Now().Add(time.Hour))
		require.NoError(t, err)
		balance, err := NewMemberBalance(memberID)
		require.NoError(t, err)
		return lot, balance
	}

	t.Run("accumulated increases total and available", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 1000)

		require.NoError(t, ApplyBalanceEvent(balance, NewPointAccumulatedEvent(lot)))

		assert.Equal(t, int64(1000), balance.Total.Int64())
		assert.Equal(t, int64(1000), balance.Available.Int64())
	})

	t.Run("used decreases available only", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 1000)
		require.NoError(t, ApplyBalanceEvent(balance, NewPointAccumulatedEvent(lot)))
		allocations, err := NewAllocationSelector().Select(valueobject.MustMoney(400), []*Accumulation{lot})
		require.NoError(t, err)
		usage, err := NewUsage(memberID, "O-1", valueobject.MustMoney(400), allocations)
		require.NoError(t, err)

		require.NoError(t, ApplyBalanceEvent(balance, NewPointUsedEvent(usage)))

		assert.Equal(t, int64(1000), balance.Total.Int64())
		assert.Equal(t, int64(600), balance.Available.Int64())
	})

	t.Run("usage cancelled restores available", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 1000)
		require.NoError(t, ApplyBalanceEvent(balance, NewPointAccumulatedEvent(lot)))
		allocations, err := NewAllocationSelector().Select(valueobject.MustMoney(250), []*Accumulation{lot})
		require.NoError(t, err)
		usage, err := NewUsage(memberID, "O-2", valueobject.MustMoney(250), allocations)
		require.NoError(t, err)
		require.NoError(t, ApplyBalanceEvent(balance, NewPointUsedEvent(usage)))

		require.NoError(t, ApplyBalanceEvent(balance, NewUsageCancelledEvent(usage)))

		assert.Equal(t, int64(1000), balance.Available.Int64())
	})

	t.Run("accumulation cancelled removes the grant entirely", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 500)
		require.NoError(t, ApplyBalanceEvent(balance, NewPointAccumulatedEvent(lot)))

		require.NoError(t, ApplyBalanceEvent(balance, NewAccumulationCancelledEvent(lot)))

		assert.True(t, balance.Total.IsZero())
		assert.True(t, balance.Available.IsZero())
	})

	t.Run("expired moves the remainder to expired", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 500)
		require.NoError(t, ApplyBalanceEvent(balance, NewPointAccumulatedEvent(lot)))

		require.NoError(t, ApplyBalanceEvent(balance, NewPointExpiredEvent(lot, valueobject.MustMoney(500))))

		assert.True(t, balance.Available.IsZero())
		assert.Equal(t, int64(500), balance.Expired.Int64())
	})

	t.Run("underflow surfaces as an error for reconciliation", func(t *testing.T) {
		lot, balance := newLotAndBalance(t, 100)
		allocations, err := NewAllocationSelector().Select(valueobject.MustMoney(100), []*Accumulation{lot})
		require.NoError(t, err)
		usage, err := NewUsage(memberID, "O-3", valueobject.MustMoney(100), allocations)
		require.NoError(t, err)

		// balance never saw the accumulation, so the usage cannot apply
		err = ApplyBalanceEvent(balance, NewPointUsedEvent(usage))

		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
	})
}
