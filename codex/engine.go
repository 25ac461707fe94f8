package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/samsaffron/oauth-codex/auth"
	"github.com/samsaffron/oauth-codex/credentials"
)

// DefaultBaseURL is the ChatGPT codex backend.
const DefaultBaseURL = "https://chatgpt.com/backend-api/codex"

// ValidationMode controls how the client treats parameters the backend
// does not support, and attempts to override protected headers.
type ValidationMode string

const (
	// ValidationModeWarn logs and drops the offending parameter.
	ValidationModeWarn ValidationMode = "warn"
	// ValidationModeError fails the request with a ValidationError.
	ValidationModeError ValidationMode = "error"
	// ValidationModeIgnore drops the offending parameter silently.
	ValidationModeIgnore ValidationMode = "ignore"
)

// Originator identifies this client to the backend.
const Originator = "codex_cli_go"

// RequestInfo describes an outgoing request to hooks.
type RequestInfo struct {
	RequestID string
	Method    string
	Path      string
	Attempt   int
}

// ResponseInfo describes a received response to hooks.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Header     http.Header
	Duration   time.Duration
}

// Hooks observe the request lifecycle. All fields are optional.
type Hooks struct {
	OnRequest     func(info RequestInfo)
	OnResponse    func(info ResponseInfo)
	OnStreamEvent func(event Event)
	OnRetry       func(attempt int, delay time.Duration, cause error)
}

// allowedPaths is the closed set of backend paths this client may
// call; everything else the hosted OpenAI API exposes does not exist
// on the ChatGPT backend.
var allowedPaths = map[string]bool{
	"/responses":              true,
	"/responses/input_tokens": true,
	"/models":                 true,
}

// protectedHeaders cannot be overridden by caller-supplied headers.
var protectedHeaders = map[string]bool{
	"authorization":     true,
	"chatgpt-account-id": true,
	"content-type":      true,
}

// engine is the authenticated HTTP pipeline under the client.
type engine struct {
	baseURL    string
	httpClient *http.Client
	store      credentials.TokenStore
	flow       *auth.Flow
	retry      RetryPolicy
	validation ValidationMode
	hooks      Hooks
	logf       func(format string, args ...any)
	sleep      func(d time.Duration)
	sessionID  string
	// login, when set, runs the interactive login flow for a request
	// made without stored credentials. Attempted at most once.
	login func(ctx context.Context) (*credentials.Credentials, error)

	mu         sync.Mutex
	creds      *credentials.Credentials
	loginTried bool
}

func (e *engine) warnf(format string, args ...any) {
	if e.logf != nil {
		e.logf(format, args...)
	}
}

// currentCredentials returns usable credentials, loading them from the
// store and refreshing once when expired. When none are stored and a
// login hook is configured, the login flow runs once before giving up.
// A failed refresh deletes the stored credentials: they cannot recover
// without a new login.
func (e *engine) currentCredentials(ctx context.Context) (*credentials.Credentials, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.creds == nil {
		creds, err := e.store.Load()
		if err != nil {
			return nil, err
		}
		e.creds = creds
	}
	if e.creds == nil && e.login != nil && !e.loginTried {
		e.loginTried = true
		creds, err := e.login(ctx)
		if err != nil {
			e.warnf("automatic login failed: %v", err)
		} else {
			if err := e.store.Save(creds); err != nil {
				e.warnf("failed to persist credentials after login: %v", err)
			}
			e.creds = creds
		}
	}
	if e.creds == nil {
		return nil, &AuthRequiredError{Reason: "no stored credentials"}
	}
	if e.creds.IsExpired(credentials.DefaultExpiryLeeway) {
		if err := e.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return e.creds, nil
}

// refreshLocked refreshes the current credentials. Callers hold e.mu.
func (e *engine) refreshLocked(ctx context.Context) error {
	refreshed, err := e.flow.Refresh(ctx, e.creds)
	if err != nil {
		e.warnf("token refresh failed, clearing credentials: %v", err)
		if delErr := e.store.Delete(); delErr != nil {
			e.warnf("failed to delete stale credentials: %v", delErr)
		}
		e.creds = nil
		return &AuthRequiredError{Reason: "token refresh failed"}
	}
	e.creds = refreshed
	if err := e.store.Save(refreshed); err != nil {
		e.warnf("failed to persist refreshed credentials: %v", err)
	}
	return nil
}

// forceRefresh refreshes regardless of recorded expiry, for servers
// that reject a token the clock still considers valid.
func (e *engine) forceRefresh(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.creds == nil {
		return &AuthRequiredError{Reason: "no stored credentials"}
	}
	return e.refreshLocked(ctx)
}

// applyExtraHeaders merges caller headers into the request, enforcing
// the protected set per validation mode.
func (e *engine) applyExtraHeaders(req *http.Request, extra map[string]string) error {
	for name, value := range extra {
		if protectedHeaders[strings.ToLower(name)] {
			switch e.validation {
			case ValidationModeError:
				return &ValidationError{Param: "extra_headers." + name, Message: "header is managed by the client and cannot be overridden"}
			case ValidationModeIgnore:
			default:
				e.warnf("dropping protected header override %q", name)
			}
			continue
		}
		req.Header.Set(name, value)
	}
	return nil
}

// do executes an authenticated request against path with retry and
// refresh handling. The caller owns the returned body.
func (e *engine) do(ctx context.Context, method, path string, payload []byte, extraHeaders map[string]string, streaming bool) (*http.Response, error) {
	if !allowedPaths[path] {
		return nil, &NotSupportedError{Feature: fmt.Sprintf("path %q", path)}
	}

	requestID := uuid.NewString()
	refreshed := false
	retries := 0

	for attempt := 0; ; attempt++ {
		creds, err := e.currentCredentials(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		if creds.AccountID != "" {
			req.Header.Set("ChatGPT-Account-ID", creds.AccountID)
		}
		req.Header.Set("OpenAI-Beta", "responses=experimental")
		req.Header.Set("originator", Originator)
		req.Header.Set("session_id", e.sessionID)
		if streaming {
			req.Header.Set("Accept", "text/event-stream")
		}
		if err := e.applyExtraHeaders(req, extraHeaders); err != nil {
			return nil, err
		}

		if e.hooks.OnRequest != nil {
			e.hooks.OnRequest(RequestInfo{RequestID: requestID, Method: method, Path: path, Attempt: attempt})
		}

		start := time.Now()
		resp, err := e.httpClient.Do(req)
		if err != nil {
			cause := &RequestError{
				UserMessage: fmt.Sprintf("request failed: %v", err),
				Retryable:   true,
				RequestID:   requestID,
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if retries < e.retry.MaxRetries {
				e.waitBeforeRetry(&retries, 0, cause)
				continue
			}
			return nil, cause
		}

		if e.hooks.OnResponse != nil {
			e.hooks.OnResponse(ResponseInfo{
				RequestID:  requestID,
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Duration:   time.Since(start),
			})
		}

		if resp.StatusCode == http.StatusUnauthorized {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			if !refreshed {
				refreshed = true
				if err := e.forceRefresh(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, &RequestError{
				StatusCode:   http.StatusUnauthorized,
				ProviderCode: "unauthorized",
				UserMessage:  "request rejected after token refresh",
				RequestID:    requestID,
				RawError:     string(body),
			}
		}

		if retryableStatus(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			cause := e.statusError(resp.StatusCode, body, resp.Header, requestID)
			if retries < e.retry.MaxRetries {
				e.waitBeforeRetry(&retries, retryAfterHint(resp.Header), cause)
				continue
			}
			return nil, cause
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			return nil, e.statusError(resp.StatusCode, body, resp.Header, requestID)
		}

		return resp, nil
	}
}

func (e *engine) waitBeforeRetry(retries *int, retryAfter time.Duration, cause error) {
	delay := e.retry.backoff(*retries, retryAfter)
	*retries++
	if e.hooks.OnRetry != nil {
		e.hooks.OnRetry(*retries, delay, cause)
	}
	e.warnf("retrying after %s: %v", delay, cause)
	e.sleep(delay)
}

// wirePlanType digs the plan type out of a 429 body without modelling
// the whole rate limit payload.
func wirePlanType(body []byte) string {
	return gjson.GetBytes(body, "error.plan_type").String()
}

// statusError maps a non-2xx response to the error taxonomy.
func (e *engine) statusError(status int, body []byte, headers http.Header, requestID string) error {
	var wire struct {
		Error  *wireError `json:"error"`
		Detail string     `json:"detail"`
	}
	_ = json.Unmarshal(body, &wire)

	if status == http.StatusTooManyRequests {
		msg := "rate limit exceeded"
		var planType string
		if wire.Error != nil && wire.Error.Message != "" {
			msg = wire.Error.Message
		}
		if wire.Error != nil {
			planType = wirePlanType(body)
		}
		return &RateLimitError{
			Message:       msg,
			RetryAfter:    retryAfterHint(headers),
			PlanType:      planType,
			PrimaryUsed:   usedPercent(headers, "X-Codex-Primary-Used-Percent"),
			SecondaryUsed: usedPercent(headers, "X-Codex-Secondary-Used-Percent"),
		}
	}

	reqErr := &RequestError{
		StatusCode: status,
		Retryable:  retryableStatus(status),
		RequestID:  requestID,
		RawError:   string(body),
	}
	switch {
	case wire.Error != nil:
		reqErr.ProviderCode = wire.Error.Code
		reqErr.UserMessage = wire.Error.Message
	case wire.Detail != "":
		reqErr.UserMessage = wire.Detail
	default:
		reqErr.UserMessage = fmt.Sprintf("request failed with status %d", status)
	}
	return reqErr
}
