package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/oauth-codex/auth"
	"github.com/samsaffron/oauth-codex/compat"
	"github.com/samsaffron/oauth-codex/credentials"
)

// StoreBehavior controls what happens to server-side storage requests,
// which the ChatGPT backend does not offer.
type StoreBehavior string

const (
	// StoreAutoDisable silently forces store:false upstream and serves
	// continuity from the local compat store. The default.
	StoreAutoDisable StoreBehavior = "auto_disable"
	// StoreError rejects requests that ask for server-side storage.
	StoreError StoreBehavior = "error"
	// StorePassthrough forwards the store flag unchanged. Continuity is
	// still local: the backend has no stored responses to continue from.
	StorePassthrough StoreBehavior = "passthrough"
)

// DefaultInstructions is used when the request has no instructions and
// no system message to derive them from.
const DefaultInstructions = "You are Codex, a helpful coding assistant."

// DefaultMaxToolRounds bounds the tool-calling loop.
const DefaultMaxToolRounds = 20

// Options configures a Client. The zero value works for every field.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Timeout        time.Duration // default 60s, ignored when HTTPClient is set
	MaxRetries     int           // default 2
	BackoffBase    time.Duration // default 1s
	MaxBackoff     time.Duration // default 30s
	MaxToolRounds  int           // default 20
	ValidationMode ValidationMode
	StoreBehavior  StoreBehavior
	CompatDir      string
	TokenStore     credentials.TokenStore
	Flow           *auth.Flow
	Hooks          Hooks
	// Logf receives warnings and retry notices. Nil means silent.
	Logf func(format string, args ...any)
	// OpenURL, when set, lets a request made without stored credentials
	// run the browser login flow once instead of failing immediately.
	OpenURL func(url string) error
}

// Client talks to the ChatGPT codex backend.
type Client struct {
	engine        *engine
	compat        *compat.Store
	storeBehavior StoreBehavior
	maxToolRounds int
}

// New builds a client. Credentials come from the token store; call
// Login when none are stored yet.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.TokenStore == nil {
		store, err := credentials.NewFileStore("")
		if err != nil {
			return nil, err
		}
		opts.TokenStore = store
	}
	if opts.Flow == nil {
		opts.Flow = auth.NewFlow()
	}
	if opts.ValidationMode == "" {
		opts.ValidationMode = ValidationModeWarn
	}
	if opts.StoreBehavior == "" {
		opts.StoreBehavior = StoreAutoDisable
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	retry := DefaultRetryPolicy()
	if opts.MaxRetries > 0 {
		retry.MaxRetries = opts.MaxRetries
	}
	if opts.BackoffBase > 0 {
		retry.BackoffBase = opts.BackoffBase
	}
	if opts.MaxBackoff > 0 {
		retry.MaxBackoff = opts.MaxBackoff
	}

	compatStore, err := compat.Open(opts.CompatDir)
	if err != nil {
		return nil, err
	}

	eng := &engine{
		baseURL:    opts.BaseURL,
		httpClient: opts.HTTPClient,
		store:      opts.TokenStore,
		flow:       opts.Flow,
		retry:      retry,
		validation: opts.ValidationMode,
		hooks:      opts.Hooks,
		logf:       opts.Logf,
		sleep:      time.Sleep,
		sessionID:  uuid.NewString(),
	}
	if opts.OpenURL != nil {
		eng.login = func(ctx context.Context) (*credentials.Credentials, error) {
			return opts.Flow.Login(ctx, opts.OpenURL)
		}
	}

	return &Client{
		engine:        eng,
		compat:        compatStore,
		storeBehavior: opts.StoreBehavior,
		maxToolRounds: opts.MaxToolRounds,
	}, nil
}

// Compat exposes the local compatibility store backing files, vector
// stores and response continuity.
func (c *Client) Compat() *compat.Store { return c.compat }

// Request is one completion request.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	Instructions string
	// PreviousResponseID continues a conversation recorded in the local
	// compat store. It is never forwarded upstream.
	PreviousResponseID string
	ExtraHeaders       map[string]string
	// Store asks for server-side storage, which the backend does not
	// offer; handled per the client's StoreBehavior.
	Store *bool
	// Temperature and TopP are not supported by the backend and are
	// handled per the client's validation mode.
	Temperature *float64
	TopP        *float64
	// MaxToolRounds overrides the client bound for Run.
	MaxToolRounds int
	// OutputSchema constrains the final answer to a JSON object matching
	// this schema. The schema root must be an object; the backend is
	// asked for strict structured output and the drained text is
	// validated against the schema before it is returned.
	OutputSchema map[string]any
}

// inputItem is one entry of the Responses input array.
type inputItem struct {
	Type      string `json:"type,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// validate applies the validation mode to unsupported parameters and
// returns the request with offending fields cleared.
func (c *Client) validate(req Request) (Request, error) {
	drop := func(param string) error {
		switch c.engine.validation {
		case ValidationModeError:
			return &ValidationError{Param: param, Message: "not supported by the ChatGPT backend"}
		case ValidationModeIgnore:
		default:
			c.engine.warnf("dropping unsupported parameter %q", param)
		}
		return nil
	}
	if req.Temperature != nil {
		if err := drop("temperature"); err != nil {
			return req, err
		}
		req.Temperature = nil
	}
	if req.TopP != nil {
		if err := drop("top_p"); err != nil {
			return req, err
		}
		req.TopP = nil
	}
	if req.Store != nil && *req.Store {
		if c.storeBehavior == StoreError {
			return req, &ValidationError{Param: "store", Message: "server-side storage is not available; use the local compat store"}
		}
		if c.storeBehavior == StoreAutoDisable {
			c.engine.warnf("store=true is not supported upstream, storing locally instead")
			req.Store = nil
		}
	}
	if req.OutputSchema != nil {
		if t, _ := req.OutputSchema["type"].(string); t != "object" {
			return req, &ValidationError{Param: "output_schema", Message: "schema root must be a JSON object"}
		}
	}
	return req, nil
}

// buildInput converts the request to wire input items, splicing the
// continuation chain when the request names a previous response.
func (c *Client) buildInput(req Request) (items []json.RawMessage, instructions string, err error) {
	instructions = req.Instructions

	if req.PreviousResponseID != "" {
		chain, err := c.compat.Continuation(req.PreviousResponseID)
		if err != nil {
			return nil, "", err
		}
		items = append(items, chain...)
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if instructions == "" {
				instructions = msg.Text()
				continue
			}
			items = appendItem(items, inputItem{Role: "developer", Content: msg.Text()})
		case RoleUser:
			items = appendItem(items, inputItem{Role: "user", Content: msg.Text()})
		case RoleAssistant:
			for _, part := range msg.Parts {
				switch part.Type {
				case PartText:
					if part.Text != "" {
						items = appendItem(items, inputItem{Role: "assistant", Content: part.Text})
					}
				case PartToolCall:
					items = appendItem(items, inputItem{
						Type:      "function_call",
						CallID:    part.ToolCall.ID,
						Name:      part.ToolCall.Name,
						Arguments: string(part.ToolCall.Arguments),
					})
				}
			}
		case RoleTool:
			var results []ToolResult
			for _, part := range msg.Parts {
				if part.Type == PartToolResult && part.ToolResult != nil {
					results = append(results, *part.ToolResult)
				}
			}
			resultItems, err := toolResultItems(results)
			if err != nil {
				return nil, "", err
			}
			for _, item := range resultItems {
				raw, err := json.Marshal(item)
				if err != nil {
					return nil, "", fmt.Errorf("encode tool result: %w", err)
				}
				items = append(items, raw)
			}
		}
	}

	if instructions == "" {
		instructions = DefaultInstructions
	}
	return items, instructions, nil
}

func appendItem(items []json.RawMessage, item inputItem) []json.RawMessage {
	raw, err := json.Marshal(item)
	if err != nil {
		// inputItem has only string fields; this cannot fail.
		panic(err)
	}
	return append(items, raw)
}

func (c *Client) buildPayload(req Request, stream bool) ([]byte, []json.RawMessage, error) {
	items, instructions, err := c.buildInput(req)
	if err != nil {
		return nil, nil, err
	}
	body := map[string]any{
		"model":        req.Model,
		"input":        items,
		"instructions": instructions,
		"store":        false,
		"stream":       stream,
	}
	if c.storeBehavior == StorePassthrough && req.Store != nil {
		body["store"] = *req.Store
	}
	if len(req.Tools) > 0 {
		body["tools"] = wireTools(req.Tools)
		body["tool_choice"] = "auto"
	}
	if req.OutputSchema != nil {
		body["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "output",
				"schema": strictSchema(req.OutputSchema),
				"strict": true,
			},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, items, nil
}

// Stream sends the request and returns a stream of normalized events.
// On completion the response is recorded in the compat store so a
// later request can continue from its id.
func (c *Client) Stream(ctx context.Context, req Request) (Stream, error) {
	req, err := c.validate(req)
	if err != nil {
		return nil, err
	}
	payload, items, err := c.buildPayload(req, true)
	if err != nil {
		return nil, err
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		resp, err := c.engine.do(ctx, http.MethodPost, "/responses", payload, req.ExtraHeaders, true)
		if err != nil {
			return err
		}

		observed := make(chan Event, 16)
		decodeErr := make(chan error, 1)
		go func() {
			defer close(observed)
			decodeErr <- decodeResponseStream(ctx, resp.Body, observed)
		}()

		for event := range observed {
			if c.engine.hooks.OnStreamEvent != nil {
				c.engine.hooks.OnStreamEvent(event)
			}
			if event.Type == EventDone && event.Response != nil {
				if err := c.compat.UpsertResponse(event.Response.ID, req.Model, req.PreviousResponseID, items, event.Response.Output); err != nil {
					c.engine.warnf("failed to record response continuity: %v", err)
				}
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return <-decodeErr
	}), nil
}

// Complete sends the request and drains the stream into a Response.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	stream, err := c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var response *Response
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		switch event.Type {
		case EventError:
			return nil, event.Err
		case EventDone:
			response = event.Response
		}
	}
	if response == nil {
		return nil, &RequestError{StatusCode: 502, UserMessage: "stream ended without a completed response", Retryable: true}
	}
	if req.OutputSchema != nil {
		if err := validateOutput(response.Text, req.OutputSchema); err != nil {
			return nil, err
		}
	}
	return response, nil
}

// TokenCount is the result of a token counting call.
type TokenCount struct {
	InputTokens int `json:"input_tokens"`
}

// CountTokens asks the backend how many input tokens the request
// would consume.
func (c *Client) CountTokens(ctx context.Context, req Request) (*TokenCount, error) {
	req, err := c.validate(req)
	if err != nil {
		return nil, err
	}
	items, instructions, err := c.buildInput(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]any{
		"model":        req.Model,
		"input":        items,
		"instructions": instructions,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.engine.do(ctx, http.MethodPost, "/responses/input_tokens", payload, req.ExtraHeaders, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var count TokenCount
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return nil, fmt.Errorf("decode token count: %w", err)
	}
	return &count, nil
}

// Model is one entry of the models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
}

// Models lists the models the account can use.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	resp, err := c.engine.do(ctx, http.MethodGet, "/models", nil, nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing struct {
		Data []Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}
	return listing.Data, nil
}

// IsAuthenticated reports whether stored credentials exist. It does
// not verify them against the provider.
func (c *Client) IsAuthenticated() bool {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if c.engine.creds != nil {
		return true
	}
	creds, err := c.engine.store.Load()
	if err != nil || creds == nil {
		return false
	}
	c.engine.creds = creds
	return true
}

// Credentials returns the currently loaded credentials, if any.
func (c *Client) Credentials() *credentials.Credentials {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if c.engine.creds == nil {
		creds, err := c.engine.store.Load()
		if err != nil {
			return nil
		}
		c.engine.creds = creds
	}
	return c.engine.creds
}

// RefreshIfNeeded refreshes the access token when it is expired or
// inside the expiry leeway.
func (c *Client) RefreshIfNeeded(ctx context.Context) error {
	_, err := c.engine.currentCredentials(ctx)
	return err
}

// Login runs the interactive browser flow and persists the resulting
// credentials.
func (c *Client) Login(ctx context.Context, openURL func(url string) error) error {
	creds, err := c.engine.flow.Login(ctx, openURL)
	if err != nil {
		return err
	}
	if err := c.engine.store.Save(creds); err != nil {
		return err
	}
	c.engine.mu.Lock()
	c.engine.creds = creds
	c.engine.mu.Unlock()
	return nil
}

// Logout deletes stored credentials.
func (c *Client) Logout() error {
	c.engine.mu.Lock()
	c.engine.creds = nil
	c.engine.mu.Unlock()
	return c.engine.store.Delete()
}
