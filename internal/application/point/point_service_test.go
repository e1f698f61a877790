package point

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
)

type serviceFixture struct {
	service   *PointService
	lots      *fakeAccumulationRepo
	usages    *fakeUsageRepo
	publisher *capturingPublisher
}

func newServiceFixture() *serviceFixture {
	lots := newFakeAccumulationRepo()
	usages := newFakeUsageRepo()
	publisher := &capturingPublisher{}
	scope := NewNoOpTransactionScope(lots, usages)
	return &serviceFixture{
		service:   NewPointService(scope, publisher, zap.NewNop()),
		lots:      lots,
		usages:    usages,
		publisher: publisher,
	}
}

func (f *serviceFixture) grant(t *testing.T, memberID uuid.UUID, amount int64, manual bool, expireAt time.Time) *AccumulationResponse {
	t.Helper()
	resp, err := f.service.Accumulate(context.Background(), memberID, valueobject.MustMoney(amount), manual, expireAt)
	require.NoError(t, err)
	return resp
}

func TestPointService_Accumulate(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()
	expireAt := time.Now().Add(365 * 24 * time.Hour)

	t.Run("grants a lot and publishes PointAccumulated", func(t *testing.T) {
		f := newServiceFixture()

		resp, err := f.service.Accumulate(ctx, memberID, valueobject.MustMoney(1000), false, expireAt)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), resp.Amount)
		assert.Equal(t, int64(1000), resp.Remaining)
		assert.Len(t, resp.Key, valueobject.PointKeyLength)

		key, err := valueobject.ParsePointKey(resp.Key)
		require.NoError(t, err)
		lot, err := f.lots.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, memberID, lot.MemberID)

		assert.Equal(t, []string{point.EventTypePointAccumulated}, f.publisher.eventTypes())
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.Accumulate(ctx, memberID, valueobject.ZeroMoney(), false, expireAt)
		assert.ErrorIs(t, err, shared.ErrInvalidAmount)
		assert.Empty(t, f.publisher.eventTypes())
	})
}

func TestPointService_Use(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()
	later := time.Now().Add(365 * 24 * time.Hour)
	sooner := time.Now().Add(30 * 24 * time.Hour)

	t.Run("draws from the earliest-expiring lot first", func(t *testing.T) {
		f := newServiceFixture()
		lateLot := f.grant(t, memberID, 500, false, later)
		soonLot := f.grant(t, memberID, 500, false, sooner)

		resp, err := f.service.Use(ctx, memberID, "O-1", valueobject.MustMoney(600))
		require.NoError(t, err)
		assert.Equal(t, int64(600), resp.Amount)
		require.Len(t, resp.Details, 2)
		assert.Equal(t, soonLot.Key, resp.Details[0].AccumulationKey)
		assert.Equal(t, int64(500), resp.Details[0].Amount)
		assert.Equal(t, lateLot.Key, resp.Details[1].AccumulationKey)
		assert.Equal(t, int64(100), resp.Details[1].Amount)

		soonKey, _ := valueobject.ParsePointKey(soonLot.Key)
		lot, err := f.lots.FindByKey(ctx, soonKey)
		require.NoError(t, err)
		assert.True(t, lot.Remaining.IsZero())

		lateKey, _ := valueobject.ParsePointKey(lateLot.Key)
		lot, err = f.lots.FindByKey(ctx, lateKey)
		require.NoError(t, err)
		assert.Equal(t, int64(400), lot.Remaining.Int64())
	})

	t.Run("drawn manual lots take priority over expiry order", func(t *testing.T) {
		f := newServiceFixture()
		f.grant(t, memberID, 300, false, sooner)
		manualLot := f.grant(t, memberID, 300, true, later)

		resp, err := f.service.Use(ctx, memberID, "O-2", valueobject.MustMoney(200))
		require.NoError(t, err)
		require.Len(t, resp.Details, 1)
		assert.Equal(t, manualLot.Key, resp.Details[0].AccumulationKey)
	})

	t.Run("fails atomically when the balance is insufficient", func(t *testing.T) {
		f := newServiceFixture()
		lot := f.grant(t, memberID, 500, false, later)

		_, err := f.service.Use(ctx, memberID, "O-3", valueobject.MustMoney(600))
		assert.ErrorIs(t, err, shared.ErrInsufficientPoint)

		key, _ := valueobject.ParsePointKey(lot.Key)
		stored, err := f.lots.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(500), stored.Remaining.Int64())
		assert.Equal(t, []string{point.EventTypePointAccumulated}, f.publisher.eventTypes())
	})

	t.Run("publishes PointUsed carrying the order ID", func(t *testing.T) {
		f := newServiceFixture()
		f.grant(t, memberID, 500, false, later)

		_, err := f.service.Use(ctx, memberID, "O-4", valueobject.MustMoney(100))
		require.NoError(t, err)

		types := f.publisher.eventTypes()
		require.Len(t, types, 2)
		assert.Equal(t, point.EventTypePointUsed, types[1])
		used, ok := f.publisher.events[1].(*point.PointUsedEvent)
		require.True(t, ok)
		assert.Equal(t, "O-4", used.OrderID)
		assert.Equal(t, int64(100), used.BalanceAmount().Int64())
	})

	t.Run("requires an order ID", func(t *testing.T) {
		f := newServiceFixture()
		f.grant(t, memberID, 500, false, later)

		_, err := f.service.Use(ctx, memberID, "", valueobject.MustMoney(100))
		require.Error(t, err)
		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "INVALID_INPUT", derr.Code)
	})
}

func TestPointService_CancelAccumulation(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()
	later := time.Now().Add(365 * 24 * time.Hour)

	t.Run("cancels an untouched lot", func(t *testing.T) {
		f := newServiceFixture()
		lot := f.grant(t, memberID, 500, false, later)

		key, _ := valueobject.ParsePointKey(lot.Key)
		resp, err := f.service.CancelAccumulation(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, resp.CancelledAt)

		stored, err := f.lots.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.True(t, stored.IsCancelled())
		types := f.publisher.eventTypes()
		assert.Equal(t, point.EventTypeAccumulationCancelled, types[len(types)-1])
	})

	t.Run("refuses to cancel a partially used lot", func(t *testing.T) {
		f := newServiceFixture()
		lot := f.grant(t, memberID, 500, false, later)
		_, err := f.service.Use(ctx, memberID, "O-5", valueobject.MustMoney(100))
		require.NoError(t, err)

		key, _ := valueobject.ParsePointKey(lot.Key)
		_, err = f.service.CancelAccumulation(ctx, key)
		assert.ErrorIs(t, err, shared.ErrCannotCancelAccumulation)
	})

	t.Run("refuses to cancel an expired lot", func(t *testing.T) {
		f := newServiceFixture()
		lot := f.grant(t, memberID, 500, false, time.Now().Add(-time.Hour))

		key, _ := valueobject.ParsePointKey(lot.Key)
		_, err := f.service.CancelAccumulation(ctx, key)
		assert.ErrorIs(t, err, shared.ErrPointExpired)
	})

	t.Run("unknown key yields not found", func(t *testing.T) {
		f := newServiceFixture()

		_, err := f.service.CancelAccumulation(ctx, valueobject.NewPointKey())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestPointService_CancelUsage(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()
	later := time.Now().Add(365 * 24 * time.Hour)

	t.Run("restores every drawn lot", func(t *testing.T) {
		f := newServiceFixture()
		first := f.grant(t, memberID, 300, false, time.Now().Add(30*24*time.Hour))
		second := f.grant(t, memberID, 300, false, later)

		used, err := f.service.Use(ctx, memberID, "O-6", valueobject.MustMoney(400))
		require.NoError(t, err)

		usageKey, _ := valueobject.ParsePointKey(used.Key)
		resp, err := f.service.CancelUsage(ctx, usageKey)
		require.NoError(t, err)
		assert.NotNil(t, resp.CancelledAt)

		for _, created := range []*AccumulationResponse{first, second} {
			key, _ := valueobject.ParsePointKey(created.Key)
			lot, err := f.lots.FindByKey(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(300), lot.Remaining.Int64())
		}
		types := f.publisher.eventTypes()
		assert.Equal(t, point.EventTypeUsageCancelled, types[len(types)-1])
	})

	t.Run("refuses double cancellation", func(t *testing.T) {
		f := newServiceFixture()
		f.grant(t, memberID, 300, false, later)
		used, err := f.service.Use(ctx, memberID, "O-7", valueobject.MustMoney(100))
		require.NoError(t, err)

		usageKey, _ := valueobject.ParsePointKey(used.Key)
		_, err = f.service.CancelUsage(ctx, usageKey)
		require.NoError(t, err)
		_, err = f.service.CancelUsage(ctx, usageKey)
		assert.ErrorIs(t, err, shared.ErrCannotCancelUsage)
	})
}

func TestPointService_ExpirePoints(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()

	t.Run("writes off remainders and publishes PointExpired per lot", func(t *testing.T) {
		f := newServiceFixture()
		stale := f.grant(t, memberID, 500, false, time.Now().Add(-time.Hour))
		f.grant(t, memberID, 500, false, time.Now().Add(time.Hour))

		count, err := f.service.ExpirePoints(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		key, _ := valueobject.ParsePointKey(stale.Key)
		lot, err := f.lots.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.True(t, lot.Remaining.IsZero())
		assert.Equal(t, int64(500), lot.ExpiredAmount.Int64())

		types := f.publisher.eventTypes()
		assert.Equal(t, point.EventTypePointExpired, types[len(types)-1])
	})

	t.Run("sweeping twice expires nothing new", func(t *testing.T) {
		f := newServiceFixture()
		f.grant(t, memberID, 500, false, time.Now().Add(-time.Hour))

		count, err := f.service.ExpirePoints(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = f.service.ExpirePoints(ctx, time.Now(), 10)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

// counterValue sums the data points of a named int64 counter
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestPointService_Metrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	pm, err := telemetry.NewPointMetrics(telemetry.PointMetricsConfig{Meter: meter})
	require.NoError(t, err)

	f := newServiceFixture()
	f.service.SetPointMetrics(pm)

	memberID := uuid.New()
	later := time.Now().Add(24 * time.Hour)
	f.grant(t, memberID, 1000, false, later)
	_, err = f.service.Use(ctx, memberID, "order-1", valueobject.MustMoney(300))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), counterValue(t, rm, "loyalty_point_accumulated_total"))
	assert.Equal(t, int64(1000), counterValue(t, rm, "loyalty_point_accumulated_amount"))
	assert.Equal(t, int64(1), counterValue(t, rm, "loyalty_point_used_total"))
	assert.Equal(t, int64(300), counterValue(t, rm, "loyalty_point_used_amount"))
}

func TestPointService_GetAccumulations(t *testing.T) {
	ctx := context.Background()
	memberID := uuid.New()
	later := time.Now().Add(365 * 24 * time.Hour)

	f := newServiceFixture()
	for i := 0; i < 3; i++ {
		f.grant(t, memberID, 100, false, later)
	}

	page, err := f.service.GetAccumulations(ctx, memberID, shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.PageSize)
	assert.Equal(t, 2, page.TotalPages)
}
