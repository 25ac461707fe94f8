package codex

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// RunResult is the outcome of a tool-calling run.
type RunResult struct {
	Text       string
	Usage      Usage
	Rounds     int
	ResponseID string
}

// Run drives the request through up to MaxToolRounds rounds of tool
// calling: stream a response, execute any requested tools, feed the
// results back, repeat until the model answers with text only. Tool
// failures are reported back to the model rather than aborting the
// run.
func (c *Client) Run(ctx context.Context, req Request, registry *Registry) (*RunResult, error) {
	maxRounds := req.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = c.maxToolRounds
	}
	if registry != nil && registry.Len() > 0 && len(req.Tools) == 0 {
		req.Tools = registry.Specs()
	}

	result := &RunResult{}
	var text strings.Builder

	// transcript mirrors the whole conversation so a round that yields
	// no response id can replay it instead of continuing by id.
	transcript := append([]Message(nil), req.Messages...)

	for round := 0; round < maxRounds; round++ {
		result.Rounds = round + 1

		stream, err := c.Stream(ctx, req)
		if err != nil {
			return nil, err
		}

		var toolCalls []ToolCall
		var responseID string
		err = drainStream(stream, func(event Event) {
			switch event.Type {
			case EventTextDelta:
				text.WriteString(event.Text)
			case EventToolCall:
				toolCalls = append(toolCalls, *event.ToolCall)
			case EventUsage:
				result.Usage.Add(*event.Usage)
			case EventDone:
				if event.Response != nil {
					responseID = event.Response.ID
				}
			}
		})
		stream.Close()
		if err != nil {
			return nil, err
		}
		result.ResponseID = responseID

		if len(toolCalls) == 0 {
			result.Text = text.String()
			if req.OutputSchema != nil {
				if err := validateOutput(result.Text, req.OutputSchema); err != nil {
					return nil, err
				}
			}
			return result, nil
		}
		if round == maxRounds-1 {
			return nil, fmt.Errorf("tool calling exceeded %d rounds", maxRounds)
		}

		results := executeToolCalls(ctx, registry, toolCalls)

		resultMsgs := make([]Message, 0, len(results))
		for _, res := range results {
			msg := ToolResultMessage(res.ID, res.Name, res.Content)
			if res.IsError {
				msg = ToolErrorMessage(res.ID, res.Name, res.Content)
			}
			resultMsgs = append(resultMsgs, msg)
		}
		transcript = append(transcript, assistantToolCalls(toolCalls))
		transcript = append(transcript, resultMsgs...)

		// Later rounds normally carry only the new tool results; the
		// recorded response chain supplies everything before them. A
		// round without a response id has no chain to continue, so the
		// whole transcript is replayed instead.
		next := req
		if responseID != "" {
			next.Messages = resultMsgs
		} else {
			next.Messages = transcript
		}
		next.PreviousResponseID = responseID
		req = next
	}
	return nil, fmt.Errorf("tool calling exceeded %d rounds", maxRounds)
}

// assistantToolCalls rebuilds the assistant turn that requested the
// calls, for rounds that replay the conversation in full.
func assistantToolCalls(calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, Part{Type: PartToolCall, ToolCall: &call})
	}
	return msg
}

func drainStream(stream Stream, visit func(Event)) error {
	for {
		event, err := stream.Recv()
		if err != nil {
			return nil // io.EOF: channel closed after terminal event
		}
		if event.Type == EventError {
			return event.Err
		}
		visit(event)
		if event.Type == EventDone {
			return nil
		}
	}
}

// executeToolCalls runs every call concurrently and returns results in
// call order.
func executeToolCalls(ctx context.Context, registry *Registry, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			results[i] = executeToolCall(ctx, registry, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func executeToolCall(ctx context.Context, registry *Registry, call ToolCall) ToolResult {
	result := ToolResult{ID: call.ID, Name: call.Name}

	var tool Tool
	if registry != nil {
		tool, _ = registry.Get(call.Name)
	}
	if tool == nil {
		result.IsError = true
		result.Content = serializeToolOutput(map[string]string{"error": fmt.Sprintf("unknown tool %q", call.Name)})
		return result
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		result.IsError = true
		result.Content = serializeToolOutput(map[string]string{"error": err.Error()})
		return result
	}
	result.Content = output.Content
	result.IsError = output.IsError
	return result
}
