package persistence

import (
	"context"

	apppoint "github.com/loyalty/backend/internal/application/point"
	"github.com/loyalty/backend/internal/domain/point"
	"gorm.io/gorm"
)

// GormTransactionScope implements apppoint.TransactionScope using GORM
// transactions. All ledger repositories handed to the callback operate on
// the same transaction, so lot draws and usage records commit atomically.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a transaction scope over the given database
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction. The transaction is rolled
// back when fn returns an error or panics.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apppoint.LedgerRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerRepositories{tx: tx})
	})
}

// gormLedgerRepositories bundles the ledger repositories over one transaction
type gormLedgerRepositories struct {
	tx *gorm.DB

	accumulationRepo point.AccumulationRepository
	usageRepo        point.UsageRepository
}

func (r *gormLedgerRepositories) AccumulationRepo() point.AccumulationRepository {
	if r.accumulationRepo == nil {
		r.accumulationRepo = NewGormAccumulationRepository(r.tx)
	}
	return r.accumulationRepo
}

func (r *gormLedgerRepositories) UsageRepo() point.UsageRepository {
	if r.usageRepo == nil {
		r.usageRepo = NewGormUsageRepository(r.tx)
	}
	return r.usageRepo
}

var _ apppoint.TransactionScope = (*GormTransactionScope)(nil)
var _ apppoint.LedgerRepositories = (*gormLedgerRepositories)(nil)
