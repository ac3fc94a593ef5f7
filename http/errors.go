// Package http provides the outbound HTTP plumbing shared by the GitHub
// resolver and the artifact fetcher: a retrying transport, host-scoped
// authentication, bounded body reads and page iteration.
package http

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Standard sentinel errors for non-200 responses.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates invalid or missing authentication.
	ErrUnauthorized = errors.New("authentication failed")

	// ErrForbidden indicates the token lacks permission for the operation.
	ErrForbidden = errors.New("permission denied")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrBadRequest indicates the request was malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrServerError indicates a server-side error occurred.
	ErrServerError = errors.New("server error")

	// ErrBodyTooLarge indicates a response body exceeded its size cap.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError reports a response whose status code was not 200.
type StatusError struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code returned.
	StatusCode int

	// Message is the error message from the API, when it sent one.
	Message string

	// Err is the error reported by the client library, if any.
	Err error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Unwrap returns the sentinel matching the status code along with the
// underlying client error.
func (e *StatusError) Unwrap() []error {
	var errs []error
	if sentinel := sentinelForStatus(e.StatusCode); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func sentinelForStatus(code int) error {
	switch code {
	case 400:
		return ErrBadRequest
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 429:
		return ErrRateLimited
	default:
		if code >= 500 {
			return ErrServerError
		}
		return nil
	}
}

// SizeLimitError reports a body that exceeded the configured maximum.
type SizeLimitError struct {
	// URL is the requested URL.
	URL string

	// Limit is the maximum accepted size in bytes.
	Limit int64

	// Declared is the Content-Length announced by the server, or -1.
	Declared int64
}

// Error implements the error interface.
func (e *SizeLimitError) Error() string {
	if e.Declared > 0 {
		return fmt.Sprintf("response from %s declares %s, exceeding the %s limit",
			e.URL, humanize.IBytes(uint64(e.Declared)), humanize.IBytes(uint64(e.Limit)))
	}
	return fmt.Sprintf("response from %s exceeds the %s limit", e.URL, humanize.IBytes(uint64(e.Limit)))
}

// Unwrap returns ErrBodyTooLarge.
func (e *SizeLimitError) Unwrap() error {
	return ErrBodyTooLarge
}

// IsNotFound reports whether the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether the error indicates authentication failed.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRateLimited reports whether the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether the error is transient and worth retrying
// by whoever triggered the request.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 && statusErr.StatusCode < 600
	}

	return false
}
