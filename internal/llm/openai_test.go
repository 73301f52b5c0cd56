package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestComplete_MissingAPIKey(t *testing.T) {
	for _, key := range []string{"", "YOUR_API_KEY_HERE"} {
		c := NewOpenAIClient(key, "http://unused.invalid", testLogger())

		_, err := c.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, nil)
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("key %q: expected ErrMissingAPIKey, got %v", key, err)
		}
	}
}

func TestComplete_NonStreaming(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if stream, _ := req["stream"].(bool); stream {
			t.Error("non-streaming request should have stream=false")
		}

		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"created": 1756500000,
			"choices": [{"message": {"role": "assistant", "content": "Hello there."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4}
		}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())

	resp, err := c.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if resp.Message.Content != "Hello there." {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if !resp.Done {
		t.Error("expected Done")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestComplete_NonStreamingToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v, want auto", req["tool_choice"])
		}

		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "set_reminder", "arguments": "{\"message\":\"tea\"}"}}
			]}, "finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 8}
		}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())

	tools := []map[string]any{{"type": "function"}}
	resp, err := c.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "remind me"}}, tools)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "set_reminder" || tc.ID != "call_1" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments != `{"message":"tea"}` {
		t.Errorf("Arguments = %q", tc.Arguments)
	}
}

func TestStreamComplete_ContentAndToolCalls(t *testing.T) {
	events := []string{
		`{"model":"gpt-4o-mini","choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"list_reminders"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"current_time"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":30,"completion_tokens":10}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if stream, _ := req["stream"].(bool); !stream {
			t.Error("streaming request should have stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())

	var tokens []string
	resp, err := c.StreamComplete(context.Background(), "gpt-4o-mini",
		[]Message{{Role: "user", Content: "hi"}}, nil,
		func(token string) { tokens = append(tokens, token) })
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	if got := strings.Join(tokens, ""); got != "Hello" {
		t.Errorf("streamed tokens = %q, want Hello", got)
	}
	if resp.Message.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Message.Content)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 10 {
		t.Errorf("tokens = %d/%d, want 30/10", resp.InputTokens, resp.OutputTokens)
	}

	// Tool calls come back in slot order regardless of delta arrival.
	if len(resp.Message.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Name != "current_time" {
		t.Errorf("slot 0 = %+v, want current_time", resp.Message.ToolCalls[0])
	}
	if resp.Message.ToolCalls[1].Name != "list_reminders" {
		t.Errorf("slot 1 = %+v, want list_reminders", resp.Message.ToolCalls[1])
	}
}

func TestStreamComplete_SkipsMalformedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": comment line\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ok"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())

	resp, err := c.StreamComplete(context.Background(), "gpt-4o-mini",
		[]Message{{Role: "user", Content: "hi"}}, nil, func(string) {})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Message.Content)
	}
}

func TestStreamComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())

	_, err := c.Complete(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q should mention status 429", err)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	c := NewOpenAIClient("test-key", server.URL, testLogger())
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	unconfigured := NewOpenAIClient("", server.URL, testLogger())
	if err := unconfigured.Ping(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}
