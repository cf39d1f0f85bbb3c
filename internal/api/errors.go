package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrTokenExpired is returned when the API answers 401; the caller should
// run the session recovery chain and retry.
var ErrTokenExpired = errors.New("access token rejected by the API")

// RateLimitError is returned on 429. It is never retried automatically;
// honoring RetryAfter is the caller's decision.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// StatusError is any other non-success response. The body is logged, not
// carried here, so server internals never leak into user-facing errors.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}
