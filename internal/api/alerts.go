package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const alertWriteTimeout = 10 * time.Second

// AlertHub fans fired-reminder alerts out to websocket subscribers.
// A hub with no subscribers drops alerts silently; the notify layer
// carries them to external consumers.
type AlertHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewAlertHub creates an empty hub.
func NewAlertHub(logger *slog.Logger) *AlertHub {
	return &AlertHub{
		logger: logger.With("component", "alerts"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The GUI is a local desktop shell, not a browser origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Broadcast sends an alert to every connected subscriber. Satisfies
// the scheduler's alert callback signature.
func (h *AlertHub) Broadcast(message string) {
	payload := struct {
		Type    string    `json:"type"`
		Message string    `json:"message"`
		Time    time.Time `json:"time"`
	}{
		Type:    "alert",
		Message: message,
		Time:    time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(alertWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Debug("dropping alert subscriber", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Close disconnects all subscribers.
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.conns, conn)
	}
}

func (h *AlertHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("alert subscriber connected", "remote", conn.RemoteAddr())

	// Subscribers never send application data; the read loop exists to
	// notice disconnects and answer control frames.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
