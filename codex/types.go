package codex

import (
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of content in a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is a single piece of message content.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// Message is a conversation turn.
type Message struct {
	Role  Role
	Parts []Part
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the outcome of executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// SystemText builds a system message with a single text part.
func SystemText(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{{Type: PartText, Text: text}}}
}

// UserText builds a user message with a single text part.
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

// AssistantText builds an assistant message with a single text part.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

// ToolResultMessage builds a tool message carrying one result.
func ToolResultMessage(id, name, content string) Message {
	return Message{Role: RoleTool, Parts: []Part{{
		Type:       PartToolResult,
		ToolResult: &ToolResult{ID: id, Name: name, Content: content},
	}}}
}

// ToolErrorMessage builds a tool message carrying a failed result.
func ToolErrorMessage(id, name, content string) Message {
	return Message{Role: RoleTool, Parts: []Part{{
		Type:       PartToolResult,
		ToolResult: &ToolResult{ID: id, Name: name, Content: content, IsError: true},
	}}}
}

// EventType identifies a normalized stream event.
type EventType string

const (
	// EventStarted announces that the backend accepted the request and
	// opened a response.
	EventStarted EventType = "response_started"
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventReasoningDelta carries a fragment of reasoning text.
	EventReasoningDelta EventType = "reasoning_delta"
	// EventReasoningDone marks a reasoning block complete, carrying its
	// full text when the backend supplies one.
	EventReasoningDone EventType = "reasoning_done"
	// EventToolCallStarted announces a tool call before its arguments
	// have streamed.
	EventToolCallStarted EventType = "tool_call_started"
	// EventToolCallDelta carries a fragment of tool-call arguments.
	EventToolCallDelta EventType = "tool_call_delta"
	// EventToolCall carries a finalized tool call with full arguments.
	EventToolCall EventType = "tool_call"
	// EventUsage carries normalized token usage.
	EventUsage EventType = "usage"
	// EventDone terminates a successful stream.
	EventDone EventType = "done"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// Event is a normalized stream event.
type Event struct {
	Type     EventType
	Text     string    // EventTextDelta, EventReasoningDelta, EventReasoningDone
	ToolCall *ToolCall // EventToolCallStarted, EventToolCall
	Delta    string    // EventToolCallDelta argument fragment
	Usage    *Usage    // EventUsage
	Response *Response // EventStarted (id only), EventDone
	Err      error     // EventError
}

// Response summarizes a completed response.
type Response struct {
	ID     string
	Text   string
	Output []json.RawMessage
	Usage  Usage
}

// Stream delivers normalized events. Recv returns io.EOF after the
// terminal event has been consumed.
type Stream interface {
	Recv() (Event, error)
	Close() error
}
