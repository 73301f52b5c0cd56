package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EnsureSession creates the session row if it does not already exist.
func (s *Store) EnsureSession(id string) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, title, created_at) VALUES (?, '', ?)
		ON CONFLICT(id) DO NOTHING
	`, id, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// GetSession retrieves a session by ID. Returns nil, nil when absent.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT id, title, created_at FROM sessions WHERE id = ?`, id)

	var sess Session
	var createdAt string
	err := row.Scan(&sess.ID, &sess.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &sess, nil
}

// SetSessionTitle stores a title for the session. The title is written
// once; a non-empty existing title is left alone.
func (s *Store) SetSessionTitle(id, title string) error {
	_, err := s.db.Exec(`UPDATE sessions SET title = ? WHERE id = ? AND title = ''`, title, id)
	return err
}

// AppendMessage persists one message at the end of the session's log.
// The message ID and timestamp are assigned here when unset.
func (s *Store) AppendMessage(m *Message) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	var toolCalls sql.NullString
	if len(m.ToolCalls) > 0 {
		data, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO messages (id, session_id, role, content, timestamp, tool_calls)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.SessionID, m.Role, m.Content, m.Timestamp.Format(time.RFC3339Nano), toolCalls)

	return err
}

// RecentMessages returns the last limit messages of the session in
// chronological order (oldest first).
func (s *Store) RecentMessages(sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp, tool_calls
		FROM messages WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the number of messages in a session.
func (s *Store) MessageCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// FirstUserMessage returns the earliest user message of the session, or
// nil when the session has none.
func (s *Store) FirstUserMessage(sessionID string) (*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp, tool_calls
		FROM messages WHERE session_id = ? AND role = 'user'
		ORDER BY timestamp ASC, id ASC LIMIT 1
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}

// MessagesOn returns all messages whose timestamp falls on the given
// calendar day (YYYY-MM-DD, UTC), across all sessions, in chronological
// order.
func (s *Store) MessagesOn(date string) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp, tool_calls
		FROM messages WHERE date(timestamp) = ?
		ORDER BY timestamp ASC, id ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var msgs []*Message
	for rows.Next() {
		var m Message
		var timestamp string
		var toolCalls sql.NullString

		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &timestamp, &toolCalls); err != nil {
			return nil, err
		}

		m.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
