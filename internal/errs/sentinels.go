// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across transport/retry/service layers.
var (
	// ErrNotFound indicates the backend has no record for the supplied signal.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the bearer credential was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTimeout indicates a single attempt ran out of its time budget.
	ErrTimeout = errors.New("attempt timed out")

	// ErrExhausted indicates every allowed attempt failed with a retryable error.
	ErrExhausted = errors.New("attempts exhausted")

	// ErrNoReferrer indicates the platform exposes no referrer token for this install.
	ErrNoReferrer = errors.New("no referrer token")

	// ErrMalformed indicates a request or payload that cannot be interpreted.
	ErrMalformed = errors.New("malformed")

	// ErrAlreadyResolved indicates attribution already ran for this install.
	ErrAlreadyResolved = errors.New("already resolved")
)

// StatusError carries a non-2xx response status from the link-matching backend.
// gRPC status codes are mapped onto the equivalent HTTP status by the transport.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend status %d", e.Code)
	}
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) and errors.Is(err, ErrUnauthorized) match status errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == 404
	case ErrUnauthorized:
		return e.Code == 401 || e.Code == 403
	}
	return false
}

// IsTerminal reports whether err is a client-class (4xx) backend error that must not be retried.
func IsTerminal(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500
	}
	return false
}
