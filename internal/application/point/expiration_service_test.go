package point

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

func TestExpirationSweeper_SweepOnce(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	memberID := uuid.New()

	f.grant(t, memberID, 500, false, time.Now().Add(-time.Hour))
	live := f.grant(t, memberID, 300, false, time.Now().Add(time.Hour))

	sweeper := NewExpirationSweeper(f.service, ExpirationSweeperConfig{
		CheckInterval: time.Hour,
		BatchSize:     10,
	}, zap.NewNop())

	sweeper.SweepOnce(ctx)

	key, err := valueobject.ParsePointKey(live.Key)
	require.NoError(t, err)
	lot, err := f.lots.FindByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(300), lot.Remaining.Int64())

	expired, err := f.lots.FindExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestExpirationSweeper_StartStop(t *testing.T) {
	f := newServiceFixture()
	sweeper := NewExpirationSweeper(f.service, ExpirationSweeperConfig{
		CheckInterval: time.Hour,
		BatchSize:     10,
	}, zap.NewNop())

	sweeper.Start(context.Background())
	sweeper.Start(context.Background()) // second start is a no-op
	sweeper.Stop()
	sweeper.Stop() // second stop is a no-op
}

func TestNewExpirationSweeper_Defaults(t *testing.T) {
	f := newServiceFixture()
	sweeper := NewExpirationSweeper(f.service, ExpirationSweeperConfig{}, zap.NewNop())
	assert.Equal(t, DefaultExpirationSweeperConfig().CheckInterval, sweeper.config.CheckInterval)
	assert.Equal(t, DefaultExpirationSweeperConfig().BatchSize, sweeper.config.BatchSize)
}
