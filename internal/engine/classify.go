package engine

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory buckets upstream failures into operator-facing categories.
// The formatter shows these verbatim; it never re-derives them from raw
// error text.
type ErrorCategory string

const (
	ErrCredential   ErrorCategory = "credential_expired"
	ErrAlreadyState ErrorCategory = "already_in_state"
	ErrRateLimited  ErrorCategory = "rate_limited"
	ErrOther        ErrorCategory = "other"
)

// operatorMessages are the exact strings persisted to the execution log and
// surfaced to operators.
var operatorMessages = map[ErrorCategory]string{
	ErrCredential:   "Shopee session expired - refresh the store cookie and try again",
	ErrAlreadyState: "Campaign is already in the requested state",
	ErrRateLimited:  "Shopee API rate limit reached - will retry on the next cycle",
	ErrOther:        "Upstream request failed",
}

// Classify buckets an execution error. Context deadline errors count as
// rate limiting: a timed-out tick reports the same category operators see
// for upstream throttling.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrRateLimited
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cookie") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "not logged in") ||
		strings.Contains(msg, "login") ||
		strings.Contains(msg, "session expired") ||
		strings.Contains(msg, "status 401") ||
		strings.Contains(msg, "status 403"):
		return ErrCredential

	case strings.Contains(msg, "already paused") ||
		strings.Contains(msg, "already ongoing") ||
		strings.Contains(msg, "already active") ||
		strings.Contains(msg, "already in requested state") ||
		strings.Contains(msg, "same state") ||
		strings.Contains(msg, "duplicated operation"):
		return ErrAlreadyState

	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "status 429") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded"):
		return ErrRateLimited

	default:
		return ErrOther
	}
}

// OperatorMessage returns the persisted message for a category, with the raw
// error appended for the generic bucket so operators keep some signal.
func OperatorMessage(cat ErrorCategory, err error) string {
	msg, ok := operatorMessages[cat]
	if !ok {
		return operatorMessages[ErrOther]
	}
	if cat == ErrOther && err != nil {
		return msg + ": " + err.Error()
	}
	return msg
}
