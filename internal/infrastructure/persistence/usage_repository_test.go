package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/point"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func usageColumns() []string {
	return []string{
		"id", "created_at", "updated_at",
		"key", "member_id", "order_id", "amount", "cancelled_at",
	}
}

func usageDetailColumns() []string {
	return []string{
		"id", "created_at", "updated_at",
		"usage_id", "accumulation_key", "amount",
	}
}

func TestGormUsageRepository_FindByKey(t *testing.T) {
	t.Run("finds usage with details", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormUsageRepository(db)

		usageID := uuid.New()
		memberID := uuid.New()
		key, err := valueobject.ParsePointKey("11112222")
		require.NoError(t, err)
		now := time.Now()

		usageRows := sqlmock.NewRows(usageColumns()).
			AddRow(usageID, now, now, key.String(), memberID, "ORDER-42", 600, nil)

		detailRows := sqlmock.NewRows(usageDetailColumns()).
			AddRow(uuid.New(), now, now, usageID, "AAAA1111", 500).
			AddRow(uuid.New(), now, now, usageID, "BBBB2222", 100)

		mock.ExpectQuery(`SELECT \* FROM "usages" WHERE key = \$1`).
			WithArgs(key, 1).
			WillReturnRows(usageRows)
		mock.ExpectQuery(`SELECT \* FROM "usage_details" WHERE "usage_details"\."usage_id" = \$1`).
			WithArgs(usageID).
			WillReturnRows(detailRows)

		usage, err := repo.FindByKey(context.Background(), key)

		assert.NoError(t, err)
		require.NotNil(t, usage)
		assert.Equal(t, usageID, usage.ID)
		assert.Equal(t, "ORDER-42", usage.OrderID)
		assert.Equal(t, int64(600), usage.Amount.Int64())
		require.Len(t, usage.Details, 2)
		assert.Equal(t, "AAAA1111", usage.Details[0].AccumulationKey.String())
		assert.Equal(t, int64(100), usage.Details[1].Amount.Int64())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing usage", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormUsageRepository(db)

		key, err := valueobject.ParsePointKey("00009999")
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT \* FROM "usages" WHERE key = \$1`).
			WithArgs(key, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		usage, err := repo.FindByKey(context.Background(), key)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Nil(t, usage)
	})
}

func TestGormUsageRepository_FindByMember(t *testing.T) {
	t.Run("returns member usages with details", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewGormUsageRepository(db)

		memberID := uuid.New()
		usageID := uuid.New()
		now := time.Now()

		usageRows := sqlmock.NewRows(usageColumns()).
			AddRow(usageID, now, now, "CCCC3333", memberID, "ORDER-7", 300, nil)
		detailRows := sqlmock.NewRows(usageDetailColumns()).
			AddRow(uuid.New(), now, now, usageID, "DDDD4444", 300)

		mock.ExpectQuery(`SELECT \* FROM "usages" WHERE member_id = \$1 ORDER BY created_at ASC`).
			WithArgs(memberID).
			WillReturnRows(usageRows)
		mock.ExpectQuery(`SELECT \* FROM "usage_details" WHERE "usage_details"\."usage_id" = \$1`).
			WithArgs(usageID).
			WillReturnRows(detailRows)

		usages, err := repo.FindByMember(context.Background(), memberID)

		assert.NoError(t, err)
		require.Len(t, usages, 1)
		require.Len(t, usages[0].Details, 1)
		assert.Equal(t, int64(300), usages[0].Details[0].Amount.Int64())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormUsageRepository_InterfaceCompliance(t *testing.T) {
	t.Run("implements UsageRepository interface", func(t *testing.T) {
		db, _, mockDB := newMockDB(t)
		defer mockDB.Close()

		var _ point.UsageRepository = NewGormUsageRepository(db)
	})
}
