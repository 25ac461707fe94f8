package codex

import (
	"fmt"
	"time"
)

// RequestError is a failed backend request. Retryable reports whether
// the retry policy may re-attempt it.
type RequestError struct {
	StatusCode   int
	ProviderCode string
	UserMessage  string
	Retryable    bool
	RequestID    string
	RawError     string
}

func (e *RequestError) Error() string {
	msg := e.UserMessage
	if msg == "" {
		msg = "request failed"
	}
	if e.ProviderCode != "" {
		return fmt.Sprintf("%s (status %d, code %s)", msg, e.StatusCode, e.ProviderCode)
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

// NotSupportedError is returned for request paths or features the
// ChatGPT backend does not expose.
type NotSupportedError struct {
	Feature string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by the ChatGPT backend", e.Feature)
}

// AsRequestError maps the error to the wire taxonomy (status 400,
// code "not_supported").
func (e *NotSupportedError) AsRequestError() *RequestError {
	return &RequestError{
		StatusCode:   400,
		ProviderCode: "not_supported",
		UserMessage:  e.Error(),
	}
}

// AuthRequiredError means no usable credentials exist and the user has
// to log in again.
type AuthRequiredError struct {
	Reason string
}

func (e *AuthRequiredError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authentication required: %s (run 'oauth-codex login')", e.Reason)
	}
	return "authentication required (run 'oauth-codex login')"
}

// ValidationError reports a request parameter the backend would reject,
// surfaced when the client runs in "error" validation mode.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Message)
}

// RateLimitError is a 429 with its reset metadata. It is retryable;
// the retry policy honors RetryAfter when it exceeds the computed
// backoff.
type RateLimitError struct {
	Message       string
	RetryAfter    time.Duration
	PlanType      string
	PrimaryUsed   int
	SecondaryUsed int
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "rate limit exceeded"
}

// IsLongWait reports whether the reset is far enough out that waiting
// in-process makes no sense.
func (e *RateLimitError) IsLongWait() bool {
	return e.RetryAfter > 2*time.Minute
}
