package valueobject

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
)

// PointKeyLength is the number of characters in a point key
const PointKeyLength = 8

// PointKey is an opaque identifier for an accumulation lot or usage
// transaction. It is assigned once at creation and never reassigned.
//
// Keys are derived from a random 128-bit source truncated to eight
// uppercase hex characters. Uniqueness is probabilistic; the persistence
// layer carries a unique index as a backstop against the residual
// collision risk.
type PointKey struct {
	value string
}

// NewPointKey generates a fresh point key
func NewPointKey() PointKey {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return PointKey{value: strings.ToUpper(raw[:PointKeyLength])}
}

// ParsePointKey validates and wraps an existing key value
func ParsePointKey(value string) (PointKey, error) {
	if len(value) != PointKeyLength {
		return PointKey{}, shared.NewDomainError("INVALID_INPUT",
			fmt.Sprintf("Point key must be %d characters", PointKeyLength))
	}
	for _, r := range value {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return PointKey{}, shared.NewDomainError("INVALID_INPUT",
				"Point key must contain only uppercase letters and digits")
		}
	}
	return PointKey{value: value}, nil
}

// String returns the key value
func (k PointKey) String() string {
	return k.value
}

// IsZero returns true if the key has not been assigned
func (k PointKey) IsZero() bool {
	return k.value == ""
}

// Equals returns true if both keys hold the same value
func (k PointKey) Equals(other PointKey) bool {
	return k.value == other.value
}

// MarshalJSON implements json.Marshaler
func (k PointKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (k *PointKey) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParsePointKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer for database storage
func (k PointKey) Value() (driver.Value, error) {
	return k.value, nil
}

// Scan implements sql.Scanner for database retrieval
func (k *PointKey) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		k.value = ""
		return nil
	case string:
		k.value = v
		return nil
	case []byte:
		k.value = string(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into PointKey", value)
	}
}
