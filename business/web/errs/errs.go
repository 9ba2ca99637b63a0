// Package errs provides the error types returned to clients of the node's
// http services.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (t *Trusted) Error() string {
	return t.Err.Error()
}

// Unwrap returns the wrapped error.
func (t *Trusted) Unwrap() error {
	return t.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var t *Trusted
	return errors.As(err, &t)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var t *Trusted
	if !errors.As(err, &t) {
		return nil
	}
	return t
}

// =============================================================================

// statuses maps the errors the blockchain packages expect callers to handle.
var statuses = []struct {
	target error
	status int
}{
	{database.ErrInvalidHash, http.StatusBadRequest},
	{database.ErrNotFound, http.StatusNotFound},
	{state.ErrNotCanonical, http.StatusForbidden},
	{worker.ErrMiningBusy, http.StatusConflict},
	{worker.ErrShutdown, http.StatusServiceUnavailable},
	{context.Canceled, http.StatusRequestTimeout},
}

// Classify turns an error from the blockchain packages into a Trusted error
// when the client can act on it. Any other error is wrapped with the message
// and will be reported as an internal error.
func Classify(err error, format string, args ...any) error {
	for _, s := range statuses {
		if errors.Is(err, s.target) {
			return NewTrusted(err, s.status)
		}
	}

	if database.IsValidationError(err) {
		return NewTrusted(err, http.StatusConflict)
	}

	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
