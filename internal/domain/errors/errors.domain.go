// internal/domain/errors/errors.domain.go
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Standard Sentinel Errors
// The transport layer maps these to HTTP status codes.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("concurrent modification detected")
	ErrUnauthorized      = errors.New("unauthorized access")
	ErrInvalidInput      = errors.New("invalid input arguments")
)

// ValidationError is a malformed or missing request field. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ServiceabilityError means a pincode or payment mode is outside courier coverage.
type ServiceabilityError struct {
	Pincode string
	Role    string // pickup | delivery
	Reason  string
}

func (e *ServiceabilityError) Error() string {
	return fmt.Sprintf("%s pincode %s is not serviceable: %s", e.Role, e.Pincode, e.Reason)
}

// CourierProviderError wraps a failed or ambiguous courier response.
type CourierProviderError struct {
	Op        string
	Retryable bool
	Remark    string
	Err       error
}

func (e *CourierProviderError) Error() string {
	var b strings.Builder
	b.WriteString("courier ")
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Remark != "" {
		b.WriteString(": ")
		b.WriteString(e.Remark)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CourierProviderError) Unwrap() error { return e.Err }

// InsufficientBalanceError blocks a wallet debit. Amounts let the caller self-correct.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// Shortfall is the amount the merchant must add before retrying.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

// NonCriticalSideEffectError is only ever logged.
type NonCriticalSideEffectError struct {
	Effect string
	Err    error
}

func (e *NonCriticalSideEffectError) Error() string {
	return fmt.Sprintf("side effect %s failed: %v", e.Effect, e.Err)
}

func (e *NonCriticalSideEffectError) Unwrap() error { return e.Err }

func SideEffect(effect string, err error) error {
	if err == nil {
		return nil
	}
	return &NonCriticalSideEffectError{Effect: effect, Err: err}
}

func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}
