package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey indicates the provider was constructed without a
// usable credential. Callers render this as a fixed user-facing apology
// rather than a transport error.
var ErrMissingAPIKey = errors.New("llm: no API key configured")

// Client is the interface the orchestrator consumes.
type Client interface {
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// StreamComplete sends a streaming chat request. If callback is
	// non-nil, content tokens are streamed to it as they arrive. The
	// returned response carries the full concatenated content and any
	// accumulated tool calls in slot-index order.
	StreamComplete(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
