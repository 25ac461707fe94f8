package codex

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy controls re-attempts for 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // full-jitter exponential base
	MaxBackoff  time.Duration // cap on the computed delay
}

// DefaultRetryPolicy matches the backend's guidance: two retries with a
// one second base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BackoffBase: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// retryableStatus reports whether a response status may be retried.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// backoff computes the delay before retry number attempt (0-based):
// base*2^attempt plus a uniform jitter of up to one base. A server
// supplied retryAfter wins when it is longer.
func (p RetryPolicy) backoff(attempt int, retryAfter time.Duration) time.Duration {
	base := p.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base*(1<<attempt) + time.Duration(rand.Int63n(int64(base)))
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// retryAfterHint extracts a server-requested wait from response
// headers. The codex backend reports resets in its own header; plain
// Retry-After is honored too.
func retryAfterHint(headers http.Header) time.Duration {
	for _, name := range []string{"X-Codex-Primary-Reset-After-Seconds", "Retry-After"} {
		if v := headers.Get(name); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

// usedPercent reads a rate-limit usage header as a whole percentage.
func usedPercent(headers http.Header, name string) int {
	v := headers.Get(name)
	if v == "" {
		return 0
	}
	pct, err := strconv.ParseFloat(v, 64)
	if err != nil || pct < 0 {
		return 0
	}
	return int(pct)
}
