package database

import (
	"errors"
	"fmt"
)

// Set of error variables for block production and storage.
var (
	ErrNotFound          = errors.New("block not found")
	ErrInvalidDifficulty = errors.New("difficulty out of range")
	ErrNonceExhausted    = errors.New("nonce space exhausted")
)

// ValidationKind identifies which consensus rule a block violated.
type ValidationKind string

// Set of consensus rules a block can violate.
const (
	KindHashMismatch ValidationKind = "hash mismatch"
	KindProofOfWork  ValidationKind = "proof of work deficiency"
	KindLinkage      ValidationKind = "linkage break"
	KindSequence     ValidationKind = "sequence break"
	KindDifficulty   ValidationKind = "difficulty out of range"
)

// ValidationError is returned when a block fails validation. A validation
// failure is an expected outcome so callers are required to branch on it.
type ValidationError struct {
	Number uint64
	Kind   ValidationKind
	Detail string
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	return fmt.Sprintf("block %d: %s: %s", ve.Number, ve.Kind, ve.Detail)
}

// newValidationError constructs a validation error with a formatted detail.
func newValidationError(number uint64, kind ValidationKind, format string, args ...any) error {
	return &ValidationError{
		Number: number,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// IsValidationError checks if an error of type ValidationError exists.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GetValidationError returns a copy of the ValidationError pointer.
func GetValidationError(err error) *ValidationError {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	return ve
}
