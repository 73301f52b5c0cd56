// Package agent implements the conversation orchestrator: one chat
// turn combines context retrieval, the model call, tool execution, and
// log persistence. Model and tool failures never surface as errors to
// the caller; they are rendered into the assistant's text so the turn
// always completes and is always logged.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wren-assistant/wren/internal/llm"
	"github.com/wren-assistant/wren/internal/store"
	"github.com/wren-assistant/wren/internal/tools"
)

// apologyText is the fixed response when no model credential is
// configured.
const apologyText = "I'm sorry, but I haven't been configured with a valid API key yet."

const systemPersona = "You are Wren, a helpful desktop companion assistant. Be concise and warm."

// contextSummaries and contextMessages bound how much history is
// rendered into the system preamble each turn.
const (
	contextSummaries = 5
	contextMessages  = 20
)

// Agent orchestrates chat turns for all sessions.
type Agent struct {
	logger     *slog.Logger
	store      *store.Store
	llm        llm.Client
	registry   *tools.Registry
	model      string
	titleModel string

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-session turn serialization

	titleWG sync.WaitGroup
}

// New creates an agent. titleModel falls back to model when empty.
func New(logger *slog.Logger, st *store.Store, client llm.Client, registry *tools.Registry, model, titleModel string) *Agent {
	if titleModel == "" {
		titleModel = model
	}
	return &Agent{
		logger:     logger.With("component", "agent"),
		store:      st,
		llm:        client,
		registry:   registry,
		model:      model,
		titleModel: titleModel,
		locks:      make(map[string]*sync.Mutex),
	}
}

// StartSession ensures the session exists in the store.
func (a *Agent) StartSession(id string) error {
	return a.store.EnsureSession(id)
}

// Chat runs one blocking chat turn. The returned error covers storage
// failures only; model and tool failures are rendered into the
// assistant text.
func (a *Agent) Chat(ctx context.Context, sessionID, text string) (string, error) {
	unlock := a.lockSession(sessionID)
	defer unlock()

	if err := a.beginTurn(sessionID, text); err != nil {
		return "", err
	}

	messages, err := a.assembleContext(sessionID)
	if err != nil {
		return "", err
	}

	var records []store.ToolCallRecord
	var assistant string

	resp, err := a.llm.Complete(ctx, a.model, messages, a.registry.Schemas())
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		assistant = apologyText
	case err != nil:
		a.logger.Error("model call failed", "session", sessionID, "error", err)
		assistant = "Error communicating with LLM: " + err.Error()
	default:
		assistant = resp.Message.Content
		for _, tc := range resp.Message.ToolCalls {
			result := a.registry.Execute(ctx, tc.Name, tc.Arguments)
			records = append(records, store.ToolCallRecord{Name: tc.Name, Args: tc.Arguments, Result: result})
			assistant += fmt.Sprintf("\n[Tool %s executed: %s]", tc.Name, result)
		}
	}

	if err := a.endTurn(sessionID, assistant, records); err != nil {
		return "", err
	}

	return assistant, nil
}

// ChatStream runs one streaming chat turn, returning a finite, non
// restartable sequence of text fragments. Content fragments are
// forwarded as they arrive; tool calls accumulated during the stream
// execute after it completes, with start and result notices emitted
// inline. Cancelling ctx abandons delivery but the partial accumulated
// text is still persisted as the assistant message.
func (a *Agent) ChatStream(ctx context.Context, sessionID, text string) (<-chan string, error) {
	unlock := a.lockSession(sessionID)

	if err := a.beginTurn(sessionID, text); err != nil {
		unlock()
		return nil, err
	}

	messages, err := a.assembleContext(sessionID)
	if err != nil {
		unlock()
		return nil, err
	}

	out := make(chan string, 16)

	go func() {
		defer unlock()
		defer close(out)

		emit := func(fragment string) {
			if fragment == "" {
				return
			}
			select {
			case out <- fragment:
			case <-ctx.Done():
			}
		}

		var assistant strings.Builder
		resp, err := a.llm.StreamComplete(ctx, a.model, messages, a.registry.Schemas(), func(token string) {
			assistant.WriteString(token)
			emit(token)
		})

		var records []store.ToolCallRecord

		switch {
		case errors.Is(err, llm.ErrMissingAPIKey):
			assistant.WriteString(apologyText)
			emit(apologyText)
		case err != nil && ctx.Err() != nil:
			// Caller abandoned the stream; flush what we have.
			a.logger.Debug("stream abandoned", "session", sessionID, "partial_len", assistant.Len())
		case err != nil:
			a.logger.Error("model call failed", "session", sessionID, "error", err)
			notice := "Error communicating with LLM: " + err.Error()
			assistant.WriteString(notice)
			emit(notice)
		default:
			for _, tc := range resp.Message.ToolCalls {
				emit(fmt.Sprintf("\n[Tool %s executing...]", tc.Name))
				result := a.registry.Execute(ctx, tc.Name, tc.Arguments)
				records = append(records, store.ToolCallRecord{Name: tc.Name, Args: tc.Arguments, Result: result})
				notice := fmt.Sprintf("\n[Tool %s executed: %s]", tc.Name, result)
				assistant.WriteString(notice)
				emit(notice)
			}
		}

		if err := a.endTurn(sessionID, assistant.String(), records); err != nil {
			a.logger.Error("failed to persist assistant message", "session", sessionID, "error", err)
		}
	}()

	return out, nil
}

// beginTurn durably appends the user message before any model call, so
// the user turn survives a model failure.
func (a *Agent) beginTurn(sessionID, text string) error {
	if err := a.store.EnsureSession(sessionID); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if err := a.store.AppendMessage(&store.Message{
		SessionID: sessionID,
		Role:      "user",
		Content:   text,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	return nil
}

// endTurn persists exactly one assistant message for the turn and
// kicks off title generation when the session is young.
func (a *Agent) endTurn(sessionID, assistant string, records []store.ToolCallRecord) error {
	if err := a.store.AppendMessage(&store.Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   assistant,
		ToolCalls: records,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}

	a.maybeGenerateTitle(sessionID)
	return nil
}

// assembleContext renders the system preamble (recent daily summaries
// plus recent session history) and the current conversation for the
// model. The user message for this turn is already in the log.
func (a *Agent) assembleContext(sessionID string) ([]llm.Message, error) {
	summaries, err := a.store.RecentSummaries(contextSummaries)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}

	history, err := a.store.RecentMessages(sessionID, contextMessages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var b strings.Builder
	b.WriteString(systemPersona)
	b.WriteString("\n\n=== System Context ===\n")

	if len(summaries) > 0 {
		b.WriteString("--- Previous Days Summaries ---\n")
		for _, s := range summaries {
			fmt.Fprintf(&b, "Date: %s\nSummary: %s\nKey Events: %s\n\n",
				s.Date, s.Summary, strings.Join(s.KeyEvents, "; "))
		}
	}

	if len(history) > 1 {
		b.WriteString("--- Recent Chat History ---\n")
		// The final entry is this turn's user message; it is sent as
		// the conversation itself, not as history.
		for _, m := range history[:len(history)-1] {
			fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
		}
	}

	messages := []llm.Message{{Role: "system", Content: b.String()}}
	if len(history) > 0 {
		messages = append(messages, llm.Message{Role: "user", Content: history[len(history)-1].Content})
	}
	return messages, nil
}

// maybeGenerateTitle asynchronously requests a short session title
// after the second message lands. Failures are swallowed; titling never
// blocks or fails a chat turn.
func (a *Agent) maybeGenerateTitle(sessionID string) {
	count, err := a.store.MessageCount(sessionID)
	if err != nil || count != 2 {
		return
	}

	first, err := a.store.FirstUserMessage(sessionID)
	if err != nil || first == nil {
		return
	}

	a.titleWG.Add(1)
	go func() {
		defer a.titleWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := a.llm.Complete(ctx, a.titleModel, []llm.Message{
			{Role: "system", Content: "Generate a short title (3-5 words) for a conversation that starts with the following message. Reply with the title only."},
			{Role: "user", Content: first.Content},
		}, nil)
		if err != nil {
			a.logger.Debug("title generation failed", "session", sessionID, "error", err)
			return
		}

		title := strings.Trim(strings.TrimSpace(resp.Message.Content), `"`)
		if title == "" {
			return
		}
		if err := a.store.SetSessionTitle(sessionID, title); err != nil {
			a.logger.Debug("failed to store session title", "session", sessionID, "error", err)
			return
		}
		a.logger.Info("session titled", "session", sessionID, "title", title)
	}()
}

// lockSession serializes turns within one session so the
// user-then-assistant write order per turn is preserved. Turns across
// sessions proceed independently.
func (a *Agent) lockSession(id string) func() {
	a.mu.Lock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
