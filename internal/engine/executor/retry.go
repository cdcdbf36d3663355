package executor

import "strings"

// HandlerError is the shape a Handler can return to carry enough detail for
// the scheduler's retry classifier to work without parsing error strings
// from arbitrary wrapped errors. Handlers that don't need retry
// classification can still just return a plain error in Result.Err; the
// classifier falls back to message substring matching in that case.
type HandlerError struct {
	StatusCode int
	Category   string // e.g. "overloaded", "rate_limit"
	Message    string
	Cause      error
}

func (e *HandlerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "handler error"
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

var retryableStatusCodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	529: true,
}

var retryableCategories = map[string]bool{
	"overloaded": true,
	"rate_limit": true,
}

var retryableSubstrings = []string{
	"overloaded",
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"temporarily unavailable",
}

// IsRetryable classifies err per the engine's fixed retry policy: a
// HandlerError is retryable by status code or category; any other error is
// retryable only if its message contains one of a small set of known
// transient-failure phrases. This policy is intentionally not
// configurable per node — spec.md §4.E fixes it engine-wide so retry
// behavior is predictable across node types.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HandlerError); ok {
		if retryableStatusCodes[he.StatusCode] {
			return true
		}
		if retryableCategories[strings.ToLower(he.Category)] {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range retryableSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
