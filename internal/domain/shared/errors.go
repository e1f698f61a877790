package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound                 = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists            = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput             = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict      = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidAmount            = NewDomainError("INVALID_AMOUNT", "Amount must not be negative")
	ErrInsufficientPoint        = NewDomainError("INSUFFICIENT_POINT", "Insufficient points available")
	ErrPointExpired             = NewDomainError("POINT_EXPIRED", "Point accumulation has expired")
	ErrCannotCancelAccumulation = NewDomainError("CANNOT_CANCEL_ACCUMULATION", "Accumulation cannot be cancelled")
	ErrCannotCancelUsage        = NewDomainError("CANNOT_CANCEL_USAGE", "Usage cannot be cancelled")
	ErrCannotCancelDetail       = NewDomainError("CANNOT_CANCEL_DETAIL", "Usage detail cannot be cancelled")
)
