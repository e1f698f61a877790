package point

import (
	"sort"
	"time"

	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/domain/shared/valueobject"
)

// Allocation is one planned draw: a lot and the amount to take from it
type Allocation struct {
	Lot    *Accumulation
	Amount valueobject.Money
}

// AllocationSelector plans which accumulation lots satisfy a usage request.
// It is a pure planning step: it never mutates the candidate lots, and the
// caller must re-run or re-validate the plan if the candidate set may have
// changed between planning and commit.
//
// Priority order is fixed: manually granted lots first, then earliest
// expiration, then creation order. The walk draws min(remaining, lot
// remaining) from each lot until the request is covered; if the candidates
// cannot cover it the whole selection fails, no partial plan is returned.
type AllocationSelector struct{}

// NewAllocationSelector creates a new allocation selector
func NewAllocationSelector() *AllocationSelector {
	return &AllocationSelector{}
}

// Select plans draws covering usageAmount from the candidate lots.
// Identical inputs always produce an identical ordered plan.
func (s *AllocationSelector) Select(usageAmount valueobject.Money, candidates []*Accumulation) ([]Allocation, error) {
	return s.SelectAt(usageAmount, candidates, time.Now())
}

// SelectAt is Select with an explicit reference time for expiry checks
func (s *AllocationSelector) SelectAt(usageAmount valueobject.Money, candidates []*Accumulation, now time.Time) ([]Allocation, error) {
	if !usageAmount.IsPositive() {
		return nil, shared.ErrInvalidAmount
	}

	available := make([]*Accumulation, 0, len(candidates))
	for _, lot := range candidates {
		if lot.IsAvailable(now) {
			available = append(available, lot)
		}
	}

	sorted := make([]*Accumulation, len(available))
	copy(sorted, available)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Manual != sorted[j].Manual {
			return sorted[i].Manual
		}
		if !sorted[i].ExpireAt.Equal(sorted[j].ExpireAt) {
			return sorted[i].ExpireAt.Before(sorted[j].ExpireAt)
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	allocations := make([]Allocation, 0, len(sorted))
	remaining := usageAmount
	for _, lot := range sorted {
		if remaining.IsZero() {
			break
		}
		draw := remaining.Min(lot.Remaining)
		allocations = append(allocations, Allocation{Lot: lot, Amount: draw})

		var err error
		remaining, err = remaining.Subtract(draw)
		if err != nil {
			return nil, err
		}
	}

	if remaining.IsPositive() {
		return nil, shared.ErrInsufficientPoint
	}
	return allocations, nil
}
