package point

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// AccumulationRepository persists accumulation lots (ledger of record)
type AccumulationRepository interface {
	// Save creates or updates a lot
	Save(ctx context.Context, lot *Accumulation) error
	// SaveWithLock updates an existing lot only if its stored version
	// matches the version the mutation started from, returning
	// shared.ErrConcurrencyConflict otherwise
	SaveWithLock(ctx context.Context, lot *Accumulation) error
	// FindByKey returns the lot with the given key
	FindByKey(ctx context.Context, key valueobject.PointKey) (*Accumulation, error)
	// FindByMember returns all lots for a member, oldest first
	FindByMember(ctx context.Context, memberID uuid.UUID) ([]*Accumulation, error)
	// FindByMemberPaged returns a page of a member's lots
	FindByMemberPaged(ctx context.Context, memberID uuid.UUID, filter shared.Filter) ([]*Accumulation, int64, error)
	// FindAvailableForUpdate returns a member's available lots with a
	// row-level lock held for the enclosing transaction, serializing
	// concurrent draws against the same member
	FindAvailableForUpdate(ctx context.Context, memberID uuid.UUID, now time.Time) ([]*Accumulation, error)
	// FindExpired returns lots past expiry that still have a remainder
	FindExpired(ctx context.Context, asOf time.Time, limit int) ([]*Accumulation, error)
}

// UsageRepository persists usage transactions and their details
type UsageRepository interface {
	// Save creates or updates a usage with its details
	Save(ctx context.Context, usage *Usage) error
	// FindByKey returns the usage with the given key, details included
	FindByKey(ctx context.Context, key valueobject.PointKey) (*Usage, error)
	// FindByMember returns all usages for a member, details included
	FindByMember(ctx context.Context, memberID uuid.UUID) ([]*Usage, error)
}

// MemberBalanceStore is the balance cache: the fast-read projection kept
// eventually consistent with the ledger. Implementations are best-effort;
// a failed Save or Find routes into reconciliation, never back to the
// caller of the originating operation.
type MemberBalanceStore interface {
	// Find returns the cached balance, or shared.ErrNotFound
	Find(ctx context.Context, memberID uuid.UUID) (*MemberBalance, error)
	// Save overwrites the cached balance
	Save(ctx context.Context, balance *MemberBalance) error
}

// ReconciliationQueue hands reconciliation requests to the asynchronous
// rebuild processor with at-least-once delivery
type ReconciliationQueue interface {
	// Enqueue submits a pending request for processing
	Enqueue(ctx context.Context, request *ReconciliationRequest) error
}
