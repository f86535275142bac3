package llm

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a provider failure for retry policy.
type Kind int

const (
	// KindTransport covers connection failures, malformed responses
	// and 5xx statuses. Retryable.
	KindTransport Kind = iota
	// KindTimeout is a per-request deadline expiry. Retryable.
	KindTimeout
	// KindRateLimited is HTTP 429. Retryable with the longer backoff
	// variant; RetryAfter carries the server's hint when present.
	KindRateLimited
	// KindPermanent covers the remaining 4xx statuses: bad request,
	// bad key, model not found. Retrying cannot help.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	StatusCode int // 0 when the failure happened before a response
	Message    string
	RetryAfter time.Duration // only for KindRateLimited, 0 when absent
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the call can succeed. Errors
// that are not *Error values (including context cancellation) are not
// retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind != KindPermanent
}

// IsRateLimited reports whether the provider asked the caller to slow
// down.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}

// classifyStatus maps a non-200 response onto an *Error.
func classifyStatus(status int, body string, retryAfter time.Duration) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, StatusCode: status, Message: body, RetryAfter: retryAfter}
	case status >= 500:
		return &Error{Kind: KindTransport, StatusCode: status, Message: body}
	case status == http.StatusRequestTimeout:
		return &Error{Kind: KindTimeout, StatusCode: status, Message: body}
	default:
		return &Error{Kind: KindPermanent, StatusCode: status, Message: body}
	}
}
