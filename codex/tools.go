package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ToolSpec describes a tool to the model. Schema is a JSON schema for
// the arguments object.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolOutput is what a tool execution produced.
type ToolOutput struct {
	Content string
	IsError bool
}

// Tool is an executable capability offered to the model.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (ToolOutput, error)
	// Preview renders a short human-readable description of a call,
	// used by UIs before execution. May return "".
	Preview(args json.RawMessage) string
}

// Registry holds the tools available to a run.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(tool Tool) error {
	name := tool.Spec().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Specs returns the registered specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

func (r *Registry) Len() int { return len(r.order) }

// wireTools converts specs to the Responses API function-tool shape.
// Schemas pass through strictSchema because the backend requires
// strict mode for reliable argument generation.
func wireTools(specs []ToolSpec) []map[string]any {
	out := make([]map[string]any, 0, len(specs))
	for _, spec := range specs {
		schema := spec.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type":        "function",
			"name":        spec.Name,
			"description": spec.Description,
			"parameters":  strictSchema(schema),
			"strict":      true,
		})
	}
	return out
}

// strictSchema returns a copy of schema adjusted for strict mode:
// every object level lists all of its properties as required and
// forbids additional properties. Nested schemas under properties,
// items, $defs, anyOf and allOf are adjusted recursively.
func strictSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	if props, ok := out["properties"].(map[string]any); ok {
		newProps := make(map[string]any, len(props))
		required := make([]string, 0, len(props))
		for name, sub := range props {
			required = append(required, name)
			if subSchema, ok := sub.(map[string]any); ok {
				newProps[name] = strictSchema(subSchema)
			} else {
				newProps[name] = sub
			}
		}
		sort.Strings(required)
		out["properties"] = newProps
		out["required"] = required
		out["additionalProperties"] = false
	} else if t, ok := out["type"].(string); ok && t == "object" {
		if _, has := out["additionalProperties"]; !has {
			out["additionalProperties"] = false
		}
	}

	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = strictSchema(items)
	}
	if defs, ok := out["$defs"].(map[string]any); ok {
		newDefs := make(map[string]any, len(defs))
		for name, sub := range defs {
			if subSchema, ok := sub.(map[string]any); ok {
				newDefs[name] = strictSchema(subSchema)
			} else {
				newDefs[name] = sub
			}
		}
		out["$defs"] = newDefs
	}
	for _, key := range []string{"anyOf", "allOf", "oneOf"} {
		if variants, ok := out[key].([]any); ok {
			newVariants := make([]any, len(variants))
			for i, v := range variants {
				if subSchema, ok := v.(map[string]any); ok {
					newVariants[i] = strictSchema(subSchema)
				} else {
					newVariants[i] = v
				}
			}
			out[key] = newVariants
		}
	}
	return out
}

// serializeToolOutput flattens a tool result into the string the wire
// format wants: strings pass through, anything else is JSON encoded.
func serializeToolOutput(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// toolResultItems converts tool results to function_call_output input
// items. A result with a blank or whitespace-only call id cannot be
// attributed and is rejected.
func toolResultItems(results []ToolResult) ([]map[string]any, error) {
	items := make([]map[string]any, 0, len(results))
	for _, res := range results {
		if strings.TrimSpace(res.ID) == "" {
			return nil, &RequestError{
				StatusCode:   400,
				ProviderCode: "invalid_tool_call_id",
				UserMessage:  fmt.Sprintf("tool result for %q has no call id", res.Name),
			}
		}
		items = append(items, map[string]any{
			"type":    "function_call_output",
			"call_id": res.ID,
			"output":  serializeToolOutput(res.Content),
		})
	}
	return items, nil
}

// validateOutput parses text as JSON and checks it against the caller's
// output schema. The payload must be a JSON object.
func validateOutput(text string, schema map[string]any) error {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return &ValidationError{Param: "output", Message: fmt.Sprintf("response is not valid JSON: %v", err)}
	}
	if _, ok := value.(map[string]any); !ok {
		return &ValidationError{Param: "output", Message: "response is not a JSON object"}
	}
	return checkSchema(value, strictSchema(schema), "output")
}

// checkSchema structurally validates value against the strict schema
// subset this client emits: type checks, required properties, no
// additional properties, recursion through properties and items.
func checkSchema(value any, schema map[string]any, path string) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{Param: path, Message: fmt.Sprintf(format, args...)}
	}

	t, _ := schema["type"].(string)
	switch t {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fail("expected an object")
		}
		props, _ := schema["properties"].(map[string]any)
		if required, ok := schema["required"].([]string); ok {
			for _, name := range required {
				if _, present := obj[name]; !present {
					return fail("missing required property %q", name)
				}
			}
		}
		allowExtra, _ := schema["additionalProperties"].(bool)
		for name, sub := range obj {
			propSchema, known := props[name]
			if !known {
				if props != nil && !allowExtra {
					return fail("unexpected property %q", name)
				}
				continue
			}
			if subSchema, ok := propSchema.(map[string]any); ok {
				if err := checkSchema(sub, subSchema, path+"."+name); err != nil {
					return err
				}
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fail("expected an array")
		}
		if itemSchema, ok := schema["items"].(map[string]any); ok {
			for i, item := range arr {
				if err := checkSchema(item, itemSchema, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fail("expected a string")
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fail("expected a number")
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return fail("expected an integer")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail("expected a boolean")
		}
	}
	return nil
}
