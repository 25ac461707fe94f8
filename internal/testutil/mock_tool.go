package testutil

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/oauth-codex/codex"
)

// MockTool is a configurable tool for testing.
type MockTool struct {
	SpecData    codex.ToolSpec
	ExecuteFn   func(ctx context.Context, args json.RawMessage) (codex.ToolOutput, error)
	PreviewFn   func(args json.RawMessage) string
	Invocations []MockToolInvocation
}

// MockToolInvocation records a single tool invocation.
type MockToolInvocation struct {
	Args   json.RawMessage
	Output codex.ToolOutput
	Error  error
}

// Spec implements codex.Tool.
func (m *MockTool) Spec() codex.ToolSpec {
	return m.SpecData
}

// Execute implements codex.Tool.
func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (codex.ToolOutput, error) {
	if m.ExecuteFn == nil {
		m.Invocations = append(m.Invocations, MockToolInvocation{Args: args})
		return codex.ToolOutput{}, nil
	}
	output, err := m.ExecuteFn(ctx, args)
	m.Invocations = append(m.Invocations, MockToolInvocation{Args: args, Output: output, Error: err})
	return output, err
}

// Preview implements codex.Tool.
func (m *MockTool) Preview(args json.RawMessage) string {
	if m.PreviewFn == nil {
		return ""
	}
	return m.PreviewFn(args)
}

// NewMockTool creates a mock tool that returns a fixed result.
func NewMockTool(name, result string) *MockTool {
	return &MockTool{
		SpecData: codex.ToolSpec{
			Name:        name,
			Description: "Mock tool: " + name,
			Schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		ExecuteFn: func(ctx context.Context, args json.RawMessage) (codex.ToolOutput, error) {
			return codex.ToolOutput{Content: result}, nil
		},
	}
}
