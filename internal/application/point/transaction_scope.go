package point

import (
	"context"

	"github.com/loyalty/backend/internal/domain/point"
)

// TransactionScope provides transactional access to the ledger-of-record
// repositories. Everything executed within one scope commits or rolls back
// atomically; the balance cache is deliberately outside the scope, since it
// is updated after commit with weaker guarantees.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos LedgerRepositories) error) error
}

// LedgerRepositories provides access to the ledger repositories within a
// transaction. All repositories returned share the same underlying
// database transaction.
type LedgerRepositories interface {
	// AccumulationRepo returns the accumulation lot repository scoped to the current transaction
	AccumulationRepo() point.AccumulationRepository
	// UsageRepo returns the usage repository scoped to the current transaction
	UsageRepo() point.UsageRepository
}

// NoOpTransactionScope runs functions without real transactions. Useful for
// tests and for in-memory repository implementations.
type NoOpTransactionScope struct {
	accumulationRepo point.AccumulationRepository
	usageRepo        point.UsageRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories
func NewNoOpTransactionScope(accumulationRepo point.AccumulationRepository, usageRepo point.UsageRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		accumulationRepo: accumulationRepo,
		usageRepo:        usageRepo,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos LedgerRepositories) error) error {
	return fn(s)
}

// AccumulationRepo returns the accumulation repository
func (s *NoOpTransactionScope) AccumulationRepo() point.AccumulationRepository {
	return s.accumulationRepo
}

// UsageRepo returns the usage repository
func (s *NoOpTransactionScope) UsageRepo() point.UsageRepository {
	return s.usageRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ LedgerRepositories = (*NoOpTransactionScope)(nil)
