package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry response classification.
var (
	// ErrNotFound indicates the resource does not exist on the service
	// the request was routed to. For ensure flows this usually means
	// "create it"; for deletes it means "already gone".
	ErrNotFound = errors.New("registry: not found")

	// ErrConflict indicates the resource already exists. Idempotent
	// ensure flows treat this as success.
	ErrConflict = errors.New("registry: already exists")
)

// AuthError is a 401 or 403 from the registry. Auth failures are fatal:
// retrying with the same credentials cannot succeed, so callers should
// stop and surface the hint to an operator.
type AuthError struct {
	Status int
	Hint   string
	Body   string
}

func (e *AuthError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("registry: authentication failed (HTTP %d): %s", e.Status, e.Hint)
	}
	return fmt.Sprintf("registry: authentication failed (HTTP %d)", e.Status)
}

// TransientError is a retryable failure: a 5xx response, a transport
// error, or a timeout. Callers may retry with backoff.
type TransientError struct {
	Status int // zero when the request never completed
	Err    error
	Body   string
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry: transient failure: %v", e.Err)
	}
	return fmt.Sprintf("registry: transient failure (HTTP %d)", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is any other non-2xx response that does not fit the
// classified categories. It is treated as permanent.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry: request failed (HTTP %d)", e.Status)
}

// IsNotFound reports whether err represents a 404.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err represents a 409.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsAuth reports whether err is a fatal authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify maps a completed response to the error taxonomy. Returns nil
// for 2xx.
func classify(resp *Response, hint string) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return nil
	case resp.Status == 401 || resp.Status == 403:
		return &AuthError{Status: resp.Status, Hint: hint, Body: string(resp.Body)}
	case resp.Status == 404:
		return fmt.Errorf("%w (HTTP %d)", ErrNotFound, resp.Status)
	case resp.Status == 409:
		return fmt.Errorf("%w (HTTP %d)", ErrConflict, resp.Status)
	case resp.Status >= 500:
		return &TransientError{Status: resp.Status, Body: string(resp.Body)}
	default:
		return &APIError{Status: resp.Status, Body: string(resp.Body)}
	}
}
