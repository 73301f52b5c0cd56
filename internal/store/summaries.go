package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetDailySummary retrieves the summary for a calendar day
// (YYYY-MM-DD). Returns nil, nil when none exists.
func (s *Store) GetDailySummary(date string) (*DailySummary, error) {
	row := s.db.QueryRow(`
		SELECT id, date, summary, key_events, created_at
		FROM daily_summaries WHERE date = ?
	`, date)

	d, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// SaveDailySummary inserts the summary row for a date. The unique
// constraint on date backs up the caller's exists-check; a duplicate
// insert fails rather than overwriting.
func (s *Store) SaveDailySummary(date, summary string, keyEvents []string) (*DailySummary, error) {
	if keyEvents == nil {
		keyEvents = []string{}
	}
	events, err := json.Marshal(keyEvents)
	if err != nil {
		return nil, fmt.Errorf("marshal key events: %w", err)
	}

	d := &DailySummary{
		ID:        NewID(),
		Date:      date,
		Summary:   summary,
		KeyEvents: keyEvents,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(`
		INSERT INTO daily_summaries (id, date, summary, key_events, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.Date, d.Summary, string(events), d.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	return d, nil
}

// RecentSummaries returns up to limit summaries, most recent date
// first.
func (s *Store) RecentSummaries(limit int) ([]*DailySummary, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.Query(`
		SELECT id, date, summary, key_events, created_at
		FROM daily_summaries ORDER BY date DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*DailySummary
	for rows.Next() {
		d, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, d)
	}
	return summaries, rows.Err()
}

func scanSummary(row rowScanner) (*DailySummary, error) {
	var d DailySummary
	var keyEvents, createdAt string

	if err := row.Scan(&d.ID, &d.Date, &d.Summary, &keyEvents, &createdAt); err != nil {
		return nil, err
	}

	if keyEvents != "" {
		if err := json.Unmarshal([]byte(keyEvents), &d.KeyEvents); err != nil {
			return nil, fmt.Errorf("unmarshal key events: %w", err)
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}
