// Package llm provides the model-completion capability consumed by the
// rest of Wren: a provider-neutral message model, a streaming tool-call
// accumulator, and an OpenAI-compatible HTTP client.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool invocation requested by the model.
// Arguments is the raw JSON argument text exactly as the provider sent
// it; parsing happens at execution time, not here.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the unified response from the provider.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	InputTokens  int
	OutputTokens int
}

// StreamCallback receives incremental content fragments during a
// streaming completion. Tool-call fragments are not delivered here;
// they are accumulated internally and returned complete on the final
// ChatResponse.
type StreamCallback func(token string)
