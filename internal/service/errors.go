// Package service provides the relay's business logic: ingestion,
// outbound send, reads, and scheduled message management.
package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrBotNotFound marks an unknown bot key. The task queue cannot tell
// transient from permanent failures, so this still consumes retry budget.
var ErrBotNotFound = errors.New("unknown bot key")

// ErrDuplicateMessage marks a redelivered inbound message caught by the
// idempotency check. Mapped to success at the queue boundary so the
// drop never consumes retry budget.
var ErrDuplicateMessage = errors.New("duplicate message")

// ErrNotOwned marks a conversation that does not belong to the caller.
var ErrNotOwned = errors.New("conversation does not belong to operator")

// ValidationError marks malformed or missing required input, surfaced to
// the caller synchronously as a 4xx.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RateLimitError marks a denied admission, surfaced as 429 with a
// retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", int(e.RetryAfter.Seconds()))
}

// AsRateLimit extracts a RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	ok := errors.As(err, &rl)
	return rl, ok
}
