package codex

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// eventStream adapts a producer function into the Stream interface.
// The producer writes events to the channel and returns; a non-nil
// return is delivered as a final EventError.
type eventStream struct {
	events chan Event
	cancel context.CancelFunc
}

func newEventStream(ctx context.Context, fn func(ctx context.Context, events chan<- Event) error) *eventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go func() {
		defer close(s.events)
		if err := fn(ctx, s.events); err != nil {
			select {
			case s.events <- Event{Type: EventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}

// sseRecord is one server-sent-events record: the event name plus its
// joined data payload.
type sseRecord struct {
	Event string
	Data  string
}

const doneSentinel = "[DONE]"

// scanSSE reads SSE records from r and invokes emit for each complete
// record. A literal "[DONE]" data payload ends the scan cleanly, as
// does EOF.
func scanSSE(r io.Reader, emit func(rec sseRecord) error) error {
	scanner := bufio.NewScanner(r)
	// Tool-call arguments can arrive in large data lines.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventName string
	var data []string
	flush := func() error {
		if len(data) == 0 && eventName == "" {
			return nil
		}
		rec := sseRecord{Event: eventName, Data: strings.Join(data, "\n")}
		eventName = ""
		data = data[:0]
		if rec.Data == doneSentinel {
			return io.EOF
		}
		return emit(rec)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment line, ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	// Flush a trailing record without a terminating blank line.
	if err := flush(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// pendingCall accumulates one tool call while its pieces stream in.
// A call without a call_id yet is tracked under its item id until the
// terminal response resolves the mapping.
type pendingCall struct {
	itemID    string
	callID    string
	name      string
	args      strings.Builder
	finalArgs string
	hasFinal  bool
	emitted   bool // finalized EventToolCall already sent
	needsID   bool // item finished before a call_id was known
}

func (c *pendingCall) arguments() json.RawMessage {
	args := c.finalArgs
	if !c.hasFinal {
		args = c.args.String()
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return json.RawMessage(args)
}

func (c *pendingCall) toolCall() *ToolCall {
	return &ToolCall{ID: c.callID, Name: c.name, Arguments: c.arguments()}
}

// toolCallState reconstructs tool calls from streamed item events.
type toolCallState struct {
	order []string // item ids, arrival order
	calls map[string]*pendingCall
}

func newToolCallState() *toolCallState {
	return &toolCallState{calls: make(map[string]*pendingCall)}
}

func (s *toolCallState) start(itemID, callID, name string) *pendingCall {
	if call, ok := s.calls[itemID]; ok {
		if callID != "" {
			call.callID = callID
		}
		if name != "" {
			call.name = name
		}
		return call
	}
	call := &pendingCall{itemID: itemID, callID: callID, name: name}
	s.calls[itemID] = call
	s.order = append(s.order, itemID)
	return call
}

func (s *toolCallState) appendArgs(itemID, delta string) {
	call, ok := s.calls[itemID]
	if !ok {
		call = s.start(itemID, "", "")
	}
	if !call.hasFinal {
		call.args.WriteString(delta)
	}
}

func (s *toolCallState) setFinalArgs(itemID, args string) {
	call, ok := s.calls[itemID]
	if !ok {
		call = s.start(itemID, "", "")
	}
	call.finalArgs = args
	call.hasFinal = true
}

// finish marks the item complete. It returns the finalized call when a
// call_id is known, or nil when finalization must wait for the
// terminal response to resolve the id.
func (s *toolCallState) finish(itemID, callID, name, args string) *pendingCall {
	call := s.start(itemID, callID, name)
	if args != "" {
		call.finalArgs = args
		call.hasFinal = true
	}
	if call.callID == "" {
		call.needsID = true
		return nil
	}
	return call
}

// resolve maps item ids to call ids using the terminal response output
// and returns, in arrival order, the calls that finished while their
// id was unknown. A finished call whose id is still unresolved is an
// error.
func (s *toolCallState) resolve(output []outputItem) ([]*pendingCall, error) {
	byItem := make(map[string]outputItem, len(output))
	for _, item := range output {
		if item.Type == "function_call" {
			byItem[item.ID] = item
		}
	}

	var deferred []*pendingCall
	for _, itemID := range s.order {
		call := s.calls[itemID]
		if call.callID == "" {
			if item, ok := byItem[itemID]; ok && item.CallID != "" {
				call.callID = item.CallID
				if call.name == "" {
					call.name = item.Name
				}
				if item.Arguments != "" {
					call.finalArgs = item.Arguments
					call.hasFinal = true
				}
			}
		}
		if call.emitted {
			continue
		}
		if call.callID == "" {
			if call.needsID {
				return nil, &RequestError{
					StatusCode:   502,
					ProviderCode: "tool_call_id_unresolved",
					UserMessage:  fmt.Sprintf("tool call item %s completed without a call id", itemID),
				}
			}
			// Never finished either; the response output is authoritative
			// that this item produced no call.
			continue
		}
		deferred = append(deferred, call)
	}
	return deferred, nil
}

// Wire shapes for the Responses SSE payloads.

type outputItem struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Content   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type streamPayload struct {
	Delta     string     `json:"delta"`
	Text      string     `json:"text"`
	ItemID    string     `json:"item_id"`
	Item      outputItem `json:"item"`
	Arguments string     `json:"arguments"`
	Response struct {
		ID     string            `json:"id"`
		Output []json.RawMessage `json:"output"`
		Usage  *wireUsage        `json:"usage"`
		Error  *wireError        `json:"error"`
	} `json:"response"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// decodeResponseStream turns the raw SSE body into normalized events.
// It owns body and closes it when done.
func decodeResponseStream(ctx context.Context, body io.ReadCloser, events chan<- Event) error {
	defer body.Close()

	state := newToolCallState()
	var text strings.Builder
	completed := false

	send := func(event Event) error {
		select {
		case events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := scanSSE(body, func(rec sseRecord) error {
		var payload streamPayload
		if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
			// Skip records we cannot parse rather than killing the stream.
			return nil
		}

		switch rec.Event {
		case "response.created":
			return send(Event{Type: EventStarted, Response: &Response{ID: payload.Response.ID}})

		case "response.output_text.delta":
			text.WriteString(payload.Delta)
			return send(Event{Type: EventTextDelta, Text: payload.Delta})

		case "response.output_item.added":
			if payload.Item.Type != "function_call" {
				return nil
			}
			call := state.start(payload.Item.ID, payload.Item.CallID, payload.Item.Name)
			return send(Event{Type: EventToolCallStarted, ToolCall: call.toolCall()})

		case "response.function_call_arguments.delta":
			state.appendArgs(payload.ItemID, payload.Delta)
			return send(Event{Type: EventToolCallDelta, Delta: payload.Delta})

		case "response.function_call_arguments.done":
			state.setFinalArgs(payload.ItemID, payload.Arguments)
			return nil

		case "response.output_item.done":
			if payload.Item.Type != "function_call" {
				return nil
			}
			call := state.finish(payload.Item.ID, payload.Item.CallID, payload.Item.Name, payload.Item.Arguments)
			if call == nil || call.emitted {
				return nil
			}
			call.emitted = true
			return send(Event{Type: EventToolCall, ToolCall: call.toolCall()})

		case "response.completed":
			var output []outputItem
			for _, raw := range payload.Response.Output {
				var item outputItem
				if err := json.Unmarshal(raw, &item); err == nil {
					output = append(output, item)
				}
			}
			deferred, err := state.resolve(output)
			if err != nil {
				return err
			}
			for _, call := range deferred {
				call.emitted = true
				if err := send(Event{Type: EventToolCall, ToolCall: call.toolCall()}); err != nil {
					return err
				}
			}

			response := &Response{
				ID:     payload.Response.ID,
				Text:   text.String(),
				Output: payload.Response.Output,
			}
			if payload.Response.Usage != nil {
				response.Usage = payload.Response.Usage.normalize()
				if err := send(Event{Type: EventUsage, Usage: &response.Usage}); err != nil {
					return err
				}
			}
			completed = true
			return send(Event{Type: EventDone, Response: response})

		case "response.failed":
			wire := payload.Response.Error
			if wire == nil {
				wire = &wireError{Message: "response failed"}
			}
			return &RequestError{
				StatusCode:   502,
				ProviderCode: wire.Code,
				UserMessage:  wire.Message,
				RawError:     rec.Data,
			}

		case "error":
			return &RequestError{
				StatusCode:   502,
				ProviderCode: payload.Code,
				UserMessage:  payload.Message,
				RawError:     rec.Data,
			}

		default:
			// Reasoning arrives under several event names
			// (response.reasoning.delta, response.reasoning_text.delta,
			// response.reasoning_summary_text.delta, and their .done
			// counterparts); map them all.
			if strings.HasPrefix(rec.Event, "response.reasoning") {
				switch {
				case strings.HasSuffix(rec.Event, ".delta"):
					return send(Event{Type: EventReasoningDelta, Text: payload.Delta})
				case strings.HasSuffix(rec.Event, ".done"):
					reasoning := payload.Text
					if reasoning == "" {
						reasoning = payload.Delta
					}
					return send(Event{Type: EventReasoningDone, Text: reasoning})
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !completed {
		return &RequestError{
			StatusCode:  502,
			UserMessage: "stream ended before response completed",
			Retryable:   true,
		}
	}
	return nil
}
