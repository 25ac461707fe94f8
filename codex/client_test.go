package codex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/samsaffron/oauth-codex/compat"
)

func decodeInput(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	rawItems, ok := body["input"].([]any)
	if !ok {
		t.Fatalf("payload has no input array: %v", body)
	}
	items := make([]map[string]any, 0, len(rawItems))
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		if !ok {
			t.Fatalf("input item is not an object: %v", raw)
		}
		items = append(items, item)
	}
	return items
}

func TestInstructionsDerivedFromSystemMessage(t *testing.T) {
	var body map[string]any
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		json.Unmarshal(payload, &body)
		return textResponseSSE("resp_1", "ok")
	})
	env := newTestEnv(t, handler, Options{})

	stream, err := env.client.Stream(context.Background(), Request{
		Model: "gpt-5.2-codex",
		Messages: []Message{
			SystemText("You are a pirate."),
			UserText("ahoy"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	drainToResponse(t, stream)

	if body["instructions"] != "You are a pirate." {
		t.Errorf("instructions = %v", body["instructions"])
	}
	items := decodeInput(t, body)
	if len(items) != 1 || items[0]["role"] != "user" {
		t.Errorf("input = %v", items)
	}
}

func TestInstructionsDefault(t *testing.T) {
	var body map[string]any
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		json.Unmarshal(payload, &body)
		return textResponseSSE("resp_1", "ok")
	})
	env := newTestEnv(t, handler, Options{})

	stream, err := env.client.Stream(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("hello")},
	})
	if err != nil {
		t.Fatal(err)
	}
	drainToResponse(t, stream)

	if body["instructions"] != DefaultInstructions {
		t.Errorf("instructions = %v", body["instructions"])
	}
}

func TestContinuitySpliceAndSanitize(t *testing.T) {
	var bodies []map[string]any
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		var body map[string]any
		json.Unmarshal(payload, &body)
		bodies = append(bodies, body)
		return textResponseSSE("resp_"+string(rune('1'+len(bodies)-1)), "answer")
	})
	env := newTestEnv(t, handler, Options{})
	ctx := context.Background()

	stream, err := env.client.Stream(ctx, Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("first question")},
	})
	if err != nil {
		t.Fatal(err)
	}
	first := drainToResponse(t, stream)
	if first.ID != "resp_1" {
		t.Fatalf("first response id = %q", first.ID)
	}

	stream, err = env.client.Stream(ctx, Request{
		Model:              "gpt-5.2-codex",
		Messages:           []Message{UserText("follow up")},
		PreviousResponseID: "resp_1",
	})
	if err != nil {
		t.Fatal(err)
	}
	drainToResponse(t, stream)

	if len(bodies) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(bodies))
	}
	second := bodies[1]
	if _, present := second["previous_response_id"]; present {
		t.Error("previous_response_id must never be sent upstream")
	}

	items := decodeInput(t, second)
	if len(items) != 3 {
		t.Fatalf("expected spliced chain + new item, got %d items: %v", len(items), items)
	}
	// first question, then the first answer (sanitized), then the follow up
	if items[0]["role"] != "user" {
		t.Errorf("item 0 = %v", items[0])
	}
	if items[1]["role"] != "assistant" {
		t.Errorf("item 1 = %v", items[1])
	}
	if _, present := items[1]["id"]; present {
		t.Error("assistant output item should have its id stripped")
	}
	if _, present := items[1]["status"]; present {
		t.Error("assistant output item should have its status stripped")
	}
	if items[2]["role"] != "user" || items[2]["content"] != "follow up" {
		t.Errorf("item 2 = %v", items[2])
	}
}

func TestContinuityUnknownIDFails(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler(), Options{})

	_, err := env.client.Stream(context.Background(), Request{
		Model:              "gpt-5.2-codex",
		Messages:           []Message{UserText("hi")},
		PreviousResponseID: "resp_missing",
	})
	var contErr *compat.ContinuityError
	if !errors.As(err, &contErr) {
		t.Fatalf("expected ContinuityError, got %v", err)
	}
	if contErr.ResponseID != "resp_missing" {
		t.Errorf("response id = %q", contErr.ResponseID)
	}
}

func TestCountTokens(t *testing.T) {
	var path string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(map[string]int{"input_tokens": 42})
	})
	env := newTestEnv(t, handler, Options{})

	count, err := env.client.CountTokens(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("how many tokens")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != "/responses/input_tokens" {
		t.Errorf("path = %q", path)
	}
	if count.InputTokens != 42 {
		t.Errorf("input tokens = %d", count.InputTokens)
	}
}

func TestModels(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "gpt-5.2-codex"}, {"id": "gpt-5.1"}},
		})
	})
	env := newTestEnv(t, handler, Options{})

	models, err := env.client.Models(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0].ID != "gpt-5.2-codex" {
		t.Errorf("models = %+v", models)
	}
}

func TestCompleteDrainsStream(t *testing.T) {
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		return textResponseSSE("resp_1", "the answer")
	})
	env := newTestEnv(t, handler, Options{})

	resp, err := env.client.Complete(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("question")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "the answer" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOutputSchemaRequestsStructuredFormat(t *testing.T) {
	var body map[string]any
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		json.Unmarshal(payload, &body)
		return textResponseSSE("resp_1", `{"answer":"yes","confidence":0.9}`)
	})
	env := newTestEnv(t, handler, Options{})

	resp, err := env.client.Complete(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("structured please")},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":     map[string]any{"type": "string"},
				"confidence": map[string]any{"type": "number"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != `{"answer":"yes","confidence":0.9}` {
		t.Errorf("text = %q", resp.Text)
	}

	format, ok := body["text"].(map[string]any)["format"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no text.format: %v", body["text"])
	}
	if format["type"] != "json_schema" || format["strict"] != true {
		t.Errorf("format = %v", format)
	}
	schema, ok := format["schema"].(map[string]any)
	if !ok {
		t.Fatalf("format.schema missing: %v", format)
	}
	if schema["additionalProperties"] != false {
		t.Errorf("schema not strictified: %v", schema)
	}
	required, _ := schema["required"].([]any)
	if len(required) != 2 {
		t.Errorf("required = %v", required)
	}
}

func TestOutputSchemaRejectsNonObjectRoot(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler(), Options{})

	_, err := env.client.Stream(context.Background(), Request{
		Model:        "gpt-5.2-codex",
		Messages:     []Message{UserText("hi")},
		OutputSchema: map[string]any{"type": "array"},
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if valErr.Param != "output_schema" {
		t.Errorf("param = %q", valErr.Param)
	}
}

func TestOutputSchemaRejectsNonConformingResponse(t *testing.T) {
	handler := sseHandler(func(r *http.Request, payload []byte) string {
		return textResponseSSE("resp_1", `{"confidence":"high"}`)
	})
	env := newTestEnv(t, handler, Options{})

	_, err := env.client.Complete(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("structured please")},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confidence": map[string]any{"type": "number"},
			},
		},
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestToolResultWithoutCallIDRejected(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler(), Options{})

	_, err := env.client.Stream(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{ToolResultMessage("", "lookup", "result")},
	})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.ProviderCode != "invalid_tool_call_id" {
		t.Errorf("provider code = %q", reqErr.ProviderCode)
	}
}

func TestStoreErrorBehaviorRejectsStore(t *testing.T) {
	env := newTestEnv(t, http.NotFoundHandler(), Options{StoreBehavior: StoreError})

	wantStore := true
	_, err := env.client.Stream(context.Background(), Request{
		Model:    "gpt-5.2-codex",
		Messages: []Message{UserText("hi")},
		Store:    &wantStore,
	})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(valErr.Error(), "store") {
		t.Errorf("error = %v", valErr)
	}
}
