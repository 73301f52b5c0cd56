// Package api exposes the core over HTTP for the GUI/CLI layer: a chat
// endpoint (blocking and SSE streaming), reminder management, and a
// websocket alert feed.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/wren-assistant/wren/internal/buildinfo"
	"github.com/wren-assistant/wren/internal/store"
)

// Chatter is the chat-turn capability consumed by the server.
type Chatter interface {
	Chat(ctx context.Context, sessionID, text string) (string, error)
	ChatStream(ctx context.Context, sessionID, text string) (<-chan string, error)
}

// ReminderManager is the reminder management capability.
type ReminderManager interface {
	Schedule(message, fireTimeISO string) bool
	Update(id, message, fireTimeISO string) bool
	Delete(id string) bool
	List() ([]*store.Reminder, error)
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	chat      Chatter
	reminders ReminderManager
	alerts    *AlertHub
	logger    *slog.Logger
	server    *http.Server
}

// New creates the API server. The returned server's AlertHub should be
// wired into the scheduler's alert callback.
func New(address string, port int, chat Chatter, reminders ReminderManager, logger *slog.Logger) *Server {
	return &Server{
		address:   address,
		port:      port,
		chat:      chat,
		reminders: reminders,
		alerts:    NewAlertHub(logger),
		logger:    logger.With("component", "api"),
	}
}

// Alerts returns the hub broadcasting fired-reminder alerts to
// websocket subscribers.
func (s *Server) Alerts() *AlertHub {
	return s.alerts
}

// Handler returns the routed HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/reminders", s.handleListReminders)
	mux.HandleFunc("POST /api/reminders", s.handleCreateReminder)
	mux.HandleFunc("PUT /api/reminders/{id}", s.handleUpdateReminder)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.handleDeleteReminder)
	mux.HandleFunc("GET /api/alerts", s.alerts.handleSubscribe)

	return mux
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api server listening", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and closes alert subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.alerts.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (req *chatRequest) validate() error {
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("session_id is required")
	}
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	response, err := s.chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.logger.Error("chat turn failed", "session", req.SessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "chat turn failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

// handleChatStream delivers the turn as Server-Sent Events, one
// {"delta": "..."} payload per fragment. Closing the connection cancels
// the request context; the orchestrator still persists the partial
// turn.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	fragments, err := s.chat.ChatStream(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.logger.Error("chat stream failed", "session", req.SessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "chat turn failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for fragment := range fragments {
		payload, err := json.Marshal(map[string]string{"delta": fragment})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.reminders.List()
	if err != nil {
		s.logger.Error("failed to list reminders", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	if reminders == nil {
		reminders = []*store.Reminder{}
	}
	s.writeJSON(w, http.StatusOK, reminders)
}

type reminderRequest struct {
	Message string `json:"message"`
	FireAt  string `json:"fire_at"`
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.reminders.Schedule(req.Message, req.FireAt) {
		s.writeError(w, http.StatusBadRequest, "fire_at must be a valid timestamp in the future")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]bool{"scheduled": true})
}

func (s *Server) handleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.reminders.Update(id, req.Message, req.FireAt) {
		s.writeError(w, http.StatusBadRequest, "fire_at must be a valid timestamp in the future")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if !s.reminders.Delete(id) {
		s.writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
