package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a connection failure the way the sync driver cares
// about it: whether credentials are bad, the service is down, or the
// payload could not be understood.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth                // 401/403, bad or missing credentials
	KindNotFound            // 404
	KindRateLimited         // 429, the origin told us to back off
	KindUnavailable         // 5xx or transport-level failure
	KindMalformed           // response was not the JSON we expected
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ConnError is the typed transport error surfaced to the sync driver.
type ConnError struct {
	Kind       Kind
	StatusCode int
	Path       string
	Err        error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connection error (%s) on %q: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("connection error (%s) on %q: status %d", e.Kind, e.Path, e.StatusCode)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt can reasonably succeed.
func (e *ConnError) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindRateLimited || e.Kind == KindUnknown
}

// AsConnError extracts a ConnError from an error chain.
func AsConnError(err error) (*ConnError, bool) {
	var ce *ConnError
	ok := errors.As(err, &ce)
	return ce, ok
}

func kindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
