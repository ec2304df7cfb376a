/**
 * @description
 * Typed error values for the settlement-service. Callers branch on kind with
 * errors.Is / errors.As instead of matching message strings.
 */

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input to return or violation processing.
	// Recoverable: surfaced to the caller for correction.
	ErrValidation = errors.New("validation failed")

	// ErrNotReady is returned when a refund is requested while the hold is
	// still HOLDING.
	ErrNotReady = errors.New("deposit hold is not ready for refund")

	// ErrAlreadyRefunded is returned on a second refund attempt for a hold.
	ErrAlreadyRefunded = errors.New("refund already processed for this deposit hold")

	// ErrImmutableAfterRefund is returned when a violation mutation targets
	// a hold that has already been refunded.
	ErrImmutableAfterRefund = errors.New("deposit hold is refunded and immutable")

	// ErrInvalidSignature marks a gateway callback whose signature did not
	// verify. The payment is marked FAILED and never applied.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrNotFound covers missing contracts, holds, violations and payments.
	ErrNotFound = errors.New("not found")
)

// ValidationError wraps ErrValidation with the offending field and detail.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, detail string) error {
	return &ValidationError{Field: field, Detail: detail}
}

// UnknownEnumError is raised at the storage boundary when a persisted enum
// value has no canonical in-memory representation. Never silently defaulted.
type UnknownEnumError struct {
	Kind  string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}
