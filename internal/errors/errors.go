package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the session and sync layers
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRefreshToken   = errors.New("no refresh token available")
	ErrSessionChanged   = errors.New("session changed during refresh")

	// Connectivity errors
	ErrOffline = errors.New("offline, cannot reach the server")

	// Outbox errors
	ErrQueueFull = errors.New("pending write queue is full")

	// Storage errors
	ErrNotFound = errors.New("not found")

	// Gateway errors
	ErrInvalidResponse = errors.New("invalid response from server")
)

// Kind classifies an error for retry and session-clearing decisions.
type Kind int

const (
	// KindTerminal errors are surfaced immediately with no state change (e.g. a 400).
	KindTerminal Kind = iota
	// KindUnauthorized errors mean the credential is invalid and the session must be cleared.
	KindUnauthorized
	// KindRetryable errors are network failures or 5xx responses.
	KindRetryable
	// KindOffline errors are raised locally without a network attempt.
	KindOffline
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRetryable:
		return "retryable"
	case KindOffline:
		return "offline"
	default:
		return "terminal"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is returned by gateways when the server answers with a non-2xx status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

func (e *StatusError) StatusCode() int {
	return e.Status
}

// NewStatusError builds a StatusError, defaulting the message to the status text.
func NewStatusError(status int, message string) *StatusError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &StatusError{Status: status, Message: message}
}

// Status returns the status code carried anywhere in err's chain.
func Status(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// Classify maps an error onto the taxonomy. A 401 is the only unauthorized
// signal; statusless errors and 5xx are retryable; everything else is terminal.
// Context cancellation is terminal so it is never retried.
func Classify(err error) Kind {
	if err == nil {
		return KindTerminal
	}
	if errors.Is(err, ErrOffline) {
		return KindOffline
	}
	if IsCancelled(err) || isLocal(err) {
		return KindTerminal
	}
	status, ok := Status(err)
	if !ok {
		return KindRetryable
	}
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status >= http.StatusInternalServerError:
		return KindRetryable
	default:
		return KindTerminal
	}
}

// isLocal reports errors raised by this module without any network attempt.
func isLocal(err error) bool {
	for _, target := range []error{ErrNotAuthenticated, ErrNoRefreshToken, ErrSessionChanged, ErrQueueFull, ErrNotFound, ErrInvalidResponse} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsUnauthorized reports whether err classifies as KindUnauthorized.
func IsUnauthorized(err error) bool {
	return Classify(err) == KindUnauthorized
}

// IsRetryable reports whether err classifies as KindRetryable.
func IsRetryable(err error) bool {
	return Classify(err) == KindRetryable
}

// IsCancelled reports whether err came from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers importing this package under the
// name "errors" keep access to it.
func New(text string) error {
	return errors.New(text)
}
