package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Money is a value object representing a non-negative point amount.
// Amounts are normalized to integer granularity by truncation on construction.
// It is immutable - all operations return new Money instances.
type Money struct {
	amount decimal.Decimal
}

// NewMoney creates a new Money from a decimal value.
// Fractional digits are truncated, never rounded up.
// Returns ErrInvalidAmount when the value is negative.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, shared.ErrInvalidAmount
	}
	return Money{amount: amount.Truncate(0)}, nil
}

// NewMoneyFromInt creates Money from an int64 value
func NewMoneyFromInt(amount int64) (Money, error) {
	return NewMoney(decimal.NewFromInt(amount))
}

// NewMoneyFromString creates Money from a string representation
func NewMoneyFromString(amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount string: %w", err)
	}
	return NewMoney(d)
}

// MustMoney creates Money from an int64 and panics on a negative value.
// Intended for literals in tests and defaults.
func MustMoney(amount int64) Money {
	m, err := NewMoneyFromInt(amount)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero-value Money
func ZeroMoney() Money {
	return Money{amount: decimal.Zero}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// Add returns a new Money with the sum of both amounts
func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Subtract returns a new Money with the difference.
// Returns ErrInvalidAmount when the result would be negative; Money never
// holds a negative value, so callers must pre-validate sufficiency.
func (m Money) Subtract(other Money) (Money, error) {
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, shared.ErrInvalidAmount
	}
	return Money{amount: result}, nil
}

// Min returns the smaller of the two Money values
func (m Money) Min(other Money) Money {
	if m.amount.LessThan(other.amount) {
		return m
	}
	return other
}

// Equals returns true if both Money values are numerically equal
func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

// GreaterThan returns true if this Money is greater than the other
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// GreaterThanOrEqual returns true if this Money is greater than or equal to the other
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.amount.GreaterThanOrEqual(other.amount)
}

// LessThan returns true if this Money is less than the other
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// LessThanOrEqual returns true if this Money is less than or equal to the other
func (m Money) LessThanOrEqual(other Money) bool {
	return m.amount.LessThanOrEqual(other.amount)
}

// String returns a string representation of the Money
func (m Money) String() string {
	return m.amount.StringFixed(0)
}

// Int64 returns the amount as an int64
func (m Money) Int64() int64 {
	return m.amount.IntPart()
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.amount.IntPart())
}

// UnmarshalJSON implements json.Unmarshaler.
// Negative values are rejected so deserialized Money keeps the
// non-negativity invariant.
func (m *Money) UnmarshalJSON(data []byte) error {
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer for database storage
func (m Money) Value() (driver.Value, error) {
	return m.amount.String(), nil
}

// Scan implements sql.Scanner for database retrieval
func (m *Money) Scan(value any) error {
	if value == nil {
		m.amount = decimal.Zero
		return nil
	}

	var d decimal.Decimal
	var err error
	switch v := value.(type) {
	case string:
		d, err = decimal.NewFromString(v)
	case []byte:
		d, err = decimal.NewFromString(string(v))
	case int64:
		d = decimal.NewFromInt(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
	if err != nil {
		return fmt.Errorf("invalid decimal value: %w", err)
	}

	parsed, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
