package compat

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/tidwall/gjson"
)

func raw(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}

func TestContinuationConcatenatesInputAndOutput(t *testing.T) {
	store := newTestStore(t)

	input := raw(`{"type":"message","role":"user","content":"hi"}`)
	output := raw(`{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hello"}]}`)
	if err := store.UpsertResponse("resp_1", "gpt-5.2-codex", "", input, output); err != nil {
		t.Fatal(err)
	}

	chain, err := store.Continuation("resp_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain = %d items", len(chain))
	}
	if gjson.GetBytes(chain[0], "role").String() != "user" {
		t.Errorf("first item = %s", chain[0])
	}
	if gjson.GetBytes(chain[1], "role").String() != "assistant" {
		t.Errorf("second item = %s", chain[1])
	}
}

func TestSanitizeStripsBookkeepingFields(t *testing.T) {
	store := newTestStore(t)

	output := raw(`{"type":"message","id":"msg_1","status":"completed","role":"assistant","content":[{"type":"output_text","text":"x"}]}`)
	if err := store.UpsertResponse("resp_1", "gpt-5.2-codex", "", nil, output); err != nil {
		t.Fatal(err)
	}

	chain, err := store.Continuation("resp_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 {
		t.Fatalf("chain = %d items", len(chain))
	}
	item := chain[0]
	if gjson.GetBytes(item, "id").Exists() {
		t.Errorf("id survived: %s", item)
	}
	if gjson.GetBytes(item, "status").Exists() {
		t.Errorf("status survived: %s", item)
	}
	if gjson.GetBytes(item, "role").String() != "assistant" {
		t.Errorf("role lost: %s", item)
	}
}

func TestSanitizeDropsReasoningItems(t *testing.T) {
	store := newTestStore(t)

	output := raw(
		`{"type":"reasoning","id":"rs_1","summary":[]}`,
		`{"type":"reasoning_summary","text":"thinking"}`,
		`{"type":"message","role":"assistant","content":[]}`,
	)
	if err := store.UpsertResponse("resp_1", "gpt-5.2-codex", "", nil, output); err != nil {
		t.Fatal(err)
	}

	chain, err := store.Continuation("resp_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chain) != 1 {
		t.Fatalf("reasoning items not dropped: %d items", len(chain))
	}
	if gjson.GetBytes(chain[0], "type").String() != "message" {
		t.Errorf("survivor = %s", chain[0])
	}
}

func TestUpsertReplacesAndKeepsCreatedAt(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertResponse("resp_1", "gpt-5.2-codex", "", raw(`{"a":1}`), nil); err != nil {
		t.Fatal(err)
	}
	first, err := store.Continuation("resp_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first = %d", len(first))
	}

	if err := store.UpsertResponse("resp_1", "gpt-5.2-codex", "", raw(`{"a":1}`, `{"b":2}`), nil); err != nil {
		t.Fatal(err)
	}
	second, err := store.Continuation("resp_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 {
		t.Errorf("upsert did not replace: %d items", len(second))
	}
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertResponse("", "gpt-5.2-codex", "", nil, nil); err == nil {
		t.Fatal("expected error for empty response id")
	}
}

func TestUpsertPersistsModelAndPreviousID(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertResponse("resp_2", "gpt-5.2-codex", "resp_1", raw(`{"a":1}`), nil); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertResponse("resp_3", "gpt-5.2-codex", "", nil, nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.responsesIndexPath())
	if err != nil {
		t.Fatal(err)
	}
	first := gjson.GetBytes(data, `data.#(id="resp_2")`)
	if first.Get("model").String() != "gpt-5.2-codex" {
		t.Errorf("model = %q", first.Get("model").String())
	}
	if first.Get("previous_response_id").String() != "resp_1" {
		t.Errorf("previous_response_id = %q", first.Get("previous_response_id").String())
	}
	root := gjson.GetBytes(data, `data.#(id="resp_3").previous_response_id`)
	if root.Type != gjson.Null {
		t.Errorf("first response in a chain should store null, got %s", root.Raw)
	}
}

func TestContinuationUnknownID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Continuation("resp_missing")
	var ce *ContinuityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ContinuityError, got %v", err)
	}
	if ce.ResponseID != "resp_missing" {
		t.Errorf("id = %q", ce.ResponseID)
	}
}
