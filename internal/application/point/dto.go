package point

import (
	"time"

	"github.com/loyalty/backend/internal/domain/point"
)

// AccumulationResponse is the API representation of an accumulation lot
type AccumulationResponse struct {
	Key         string     `json:"key"`
	MemberID    string     `json:"member_id"`
	Amount      int64      `json:"amount"`
	Remaining   int64      `json:"remaining"`
	Manual      bool       `json:"manual"`
	ExpireAt    time.Time  `json:"expire_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToAccumulationResponse converts a lot entity to its API representation
func ToAccumulationResponse(lot *point.Accumulation) AccumulationResponse {
	return AccumulationResponse{
		Key:         lot.Key.String(),
		MemberID:    lot.MemberID.String(),
		Amount:      lot.Amount.Int64(),
		Remaining:   lot.Remaining.Int64(),
		Manual:      lot.Manual,
		ExpireAt:    lot.ExpireAt,
		CancelledAt: lot.CancelledAt,
		CreatedAt:   lot.CreatedAt,
	}
}

// UsageDetailResponse is one lot draw within a usage
type UsageDetailResponse struct {
	AccumulationKey string `json:"accumulation_key"`
	Amount          int64  `json:"amount"`
}

// UsageResponse is the API representation of a usage transaction
type UsageResponse struct {
	Key         string                `json:"key"`
	MemberID    string                `json:"member_id"`
	OrderID     string                `json:"order_id"`
	Amount      int64                 `json:"amount"`
	CancelledAt *time.Time            `json:"cancelled_at,omitempty"`
	Details     []UsageDetailResponse `json:"details"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ToUsageResponse converts a usage entity to its API representation
func ToUsageResponse(usage *point.Usage) UsageResponse {
	details := make([]UsageDetailResponse, 0, len(usage.Details))
	for _, d := range usage.Details {
		details = append(details, UsageDetailResponse{
			AccumulationKey: d.AccumulationKey.String(),
			Amount:          d.Amount.Int64(),
		})
	}
	return UsageResponse{
		Key:         usage.Key.String(),
		MemberID:    usage.MemberID.String(),
		OrderID:     usage.OrderID,
		Amount:      usage.Amount.Int64(),
		CancelledAt: usage.CancelledAt,
		Details:     details,
		CreatedAt:   usage.CreatedAt,
	}
}

// BalanceResponse is the API representation of a member's cached balance
type BalanceResponse struct {
	MemberID  string    `json:"member_id"`
	Total     int64     `json:"total"`
	Available int64     `json:"available"`
	Expired   int64     `json:"expired"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToBalanceResponse converts a balance aggregate to its API representation
func ToBalanceResponse(balance *point.MemberBalance) BalanceResponse {
	return BalanceResponse{
		MemberID:  balance.MemberID.String(),
		Total:     balance.Total.Int64(),
		Available: balance.Available.Int64(),
		Expired:   balance.Expired.Int64(),
		UpdatedAt: balance.UpdatedAt,
	}
}
