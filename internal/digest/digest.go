// Package digest generates the once-daily summary of a day's
// conversation. The job is idempotent: an existing summary row for the
// date makes it a no-op, so running it at startup and again at midnight
// never produces duplicates.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wren-assistant/wren/internal/llm"
	"github.com/wren-assistant/wren/internal/store"
)

// maxTranscriptBytes bounds the transcript sent to the model.
const maxTranscriptBytes = 8000

// Job summarizes one calendar day of messages into a DailySummary.
type Job struct {
	logger *slog.Logger
	store  *store.Store
	llm    llm.Client
	model  string
}

// New creates a digest job.
func New(logger *slog.Logger, st *store.Store, client llm.Client, model string) *Job {
	return &Job{
		logger: logger.With("component", "digest"),
		store:  st,
		llm:    client,
		model:  model,
	}
}

// RunForDate summarizes one date (YYYY-MM-DD). Failures are logged and
// swallowed; a missed digest is not retried within the same invocation.
// No-ops when a summary already exists or the date has no messages.
func (j *Job) RunForDate(ctx context.Context, date string) {
	existing, err := j.store.GetDailySummary(date)
	if err != nil {
		j.logger.Error("failed to check existing summary", "date", date, "error", err)
		return
	}
	if existing != nil {
		j.logger.Debug("summary already exists", "date", date)
		return
	}

	messages, err := j.store.MessagesOn(date)
	if err != nil {
		j.logger.Error("failed to load messages", "date", date, "error", err)
		return
	}
	if len(messages) == 0 {
		j.logger.Debug("no messages to summarize", "date", date)
		return
	}

	summary, keyEvents, err := j.summarize(ctx, messages)
	if err != nil {
		j.logger.Warn("summary generation failed", "date", date, "error", err)
		return
	}

	if _, err := j.store.SaveDailySummary(date, summary, keyEvents); err != nil {
		j.logger.Error("failed to save summary", "date", date, "error", err)
		return
	}

	j.logger.Info("daily summary created", "date", date, "messages", len(messages))
}

// digestResult is the JSON shape requested from the model.
type digestResult struct {
	Summary   string   `json:"summary"`
	KeyEvents []string `json:"key_events"`
}

func (j *Job) summarize(ctx context.Context, messages []*store.Message) (string, []string, error) {
	transcript := renderTranscript(messages, maxTranscriptBytes)

	resp, err := j.llm.Complete(ctx, j.model, []llm.Message{
		{Role: "system", Content: "You are a helpful assistant. Summarize the following chat logs and extract key events (facts/todos)."},
		{Role: "user", Content: fmt.Sprintf("Chat Logs:\n%s\n\nRespond with JSON only: {\"summary\": \"text\", \"key_events\": [\"event1\", \"event2\"]}", transcript)},
	}, nil)
	if err != nil {
		return "", nil, err
	}

	var result digestResult
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Message.Content)), &result); err != nil {
		return "", nil, fmt.Errorf("parse summary response: %w", err)
	}
	if result.Summary == "" {
		return "", nil, fmt.Errorf("empty summary in response")
	}

	return result.Summary, result.KeyEvents, nil
}

// renderTranscript flattens messages to "role: content" lines, keeping
// the most recent ones when the budget is exceeded.
func renderTranscript(messages []*store.Message, budget int) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	transcript := strings.Join(lines, "\n")
	for len(transcript) > budget && len(lines) > 1 {
		lines = lines[1:]
		transcript = strings.Join(lines, "\n")
	}
	return transcript
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models wrap JSON responses in despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
