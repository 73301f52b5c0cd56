package store

import "time"

// Reminder statuses. A reminder transitions pending → completed exactly
// once, and only via the scheduler's fire path.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Session is a named conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one entry in a session's ordered log. Immutable once
// written. Assistant content may be empty when only tool calls
// occurred.
type Message struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      string           `json:"role"` // user or assistant
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// ToolCallRecord captures one executed tool call on an assistant
// message. Never persisted standalone.
type ToolCallRecord struct {
	Name   string `json:"name"`
	Args   string `json:"args"` // raw JSON argument text
	Result string `json:"result"`
}

// Reminder is a durable time-triggered alert.
type Reminder struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	FireAt    time.Time `json:"fire_at"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DailySummary is the once-per-day digest of a day's conversation.
type DailySummary struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"` // calendar day, YYYY-MM-DD
	Summary   string    `json:"summary"`
	KeyEvents []string  `json:"key_events"`
	CreatedAt time.Time `json:"created_at"`
}
