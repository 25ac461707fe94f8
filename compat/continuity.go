package compat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ContinuityError reports a previous_response_id that is unknown to
// the local store.
type ContinuityError struct {
	ResponseID string
}

func (e *ContinuityError) Error() string {
	return fmt.Sprintf("no stored response %q to continue from", e.ResponseID)
}

// responseRecord is one stored response: the sanitized input that
// produced it plus its sanitized output.
type responseRecord struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	CreatedAt          int64             `json:"created_at"`
	Model              string            `json:"model"`
	PreviousResponseID *string           `json:"previous_response_id"`
	Input              []json.RawMessage `json:"input"`
	Output             []json.RawMessage `json:"output"`
}

func (s *Store) responsesIndexPath() string {
	return indexPath(s.dir, "responses")
}

// bookkeepingFields are backend-assigned fields that must not be sent
// back as input; the backend rejects items that carry them.
var bookkeepingFields = []string{"id", "status"}

// sanitizeItem strips bookkeeping fields from a raw item. Reasoning
// items are dropped entirely (nil return): their summaries cannot be
// replayed as input.
func sanitizeItem(raw json.RawMessage) json.RawMessage {
	itemType := gjson.GetBytes(raw, "type").String()
	if itemType == "reasoning" || itemType == "reasoning_summary" {
		return nil
	}
	out := []byte(raw)
	for _, field := range bookkeepingFields {
		if gjson.GetBytes(out, field).Exists() {
			cleaned, err := sjson.DeleteBytes(out, field)
			if err == nil {
				out = cleaned
			}
		}
	}
	return out
}

func sanitizeItems(items []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if cleaned := sanitizeItem(item); cleaned != nil {
			out = append(out, cleaned)
		}
	}
	return out
}

// UpsertResponse records a completed response so later requests can
// continue from it. Input should already include any spliced chain
// from the response this one continued; previousResponseID may be
// empty for the first response in a conversation.
func (s *Store) UpsertResponse(responseID, model, previousResponseID string, input, output []json.RawMessage) error {
	if responseID == "" {
		return fmt.Errorf("response id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[responseRecord](s.responsesIndexPath())
	if err != nil {
		return err
	}
	record := responseRecord{
		ID:        responseID,
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Model:     model,
		Input:     sanitizeItems(input),
		Output:    sanitizeItems(output),
	}
	if previousResponseID != "" {
		record.PreviousResponseID = &previousResponseID
	}
	replaced := false
	for i := range idx.Data {
		if idx.Data[i].ID == responseID {
			record.CreatedAt = idx.Data[i].CreatedAt
			idx.Data[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		idx.Data = append(idx.Data, record)
	}
	return writeIndex(s.responsesIndexPath(), idx)
}

// Continuation returns the input items that reproduce the conversation
// up to and including responseID, ready to splice before new items.
func (s *Store) Continuation(responseID string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[responseRecord](s.responsesIndexPath())
	if err != nil {
		return nil, err
	}
	for i := range idx.Data {
		if idx.Data[i].ID == responseID {
			items := make([]json.RawMessage, 0, len(idx.Data[i].Input)+len(idx.Data[i].Output))
			items = append(items, idx.Data[i].Input...)
			items = append(items, idx.Data[i].Output...)
			return items, nil
		}
	}
	return nil, &ContinuityError{ResponseID: responseID}
}
