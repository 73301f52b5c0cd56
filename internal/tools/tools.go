// Package tools defines the tools available to the assistant.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wren-assistant/wren/internal/reminder"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools in registration order.
type Registry struct {
	tools     map[string]*Tool
	order     []string
	scheduler *reminder.Scheduler
}

// NewRegistry creates a tool registry wired to the reminder scheduler.
func NewRegistry(sched *reminder.Scheduler) *Registry {
	r := &Registry{
		tools:     make(map[string]*Tool),
		scheduler: sched,
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool to the registry. Re-registering a name replaces
// the handler but keeps its original position.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Schemas returns all tool schemas in registration order, in the
// format presented to the model.
func (r *Registry) Schemas() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with raw JSON arguments. Every failure
// mode is rendered as result text, never an error: results flow back
// into the model-facing transcript, which can only carry text.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	tool := r.tools[name]
	if tool == nil {
		return fmt.Sprintf("Tool %s not found.", name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf("Error executing tool %s: invalid arguments: %v", name, err)
		}
	}

	if missing := missingRequired(tool.Parameters, args); missing != "" {
		return fmt.Sprintf("Error executing tool %s: missing required parameter %q", name, missing)
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}
	return result
}

// missingRequired checks the schema's required list against the bound
// arguments and returns the first absent parameter name.
func missingRequired(schema, args map[string]any) string {
	required, ok := schema["required"].([]string)
	if !ok {
		// Schemas built from parsed JSON carry []any instead.
		anyList, ok := schema["required"].([]any)
		if !ok {
			return ""
		}
		for _, v := range anyList {
			if name, ok := v.(string); ok {
				required = append(required, name)
			}
		}
	}

	for _, name := range required {
		if _, present := args[name]; !present {
			return name
		}
	}
	return ""
}
