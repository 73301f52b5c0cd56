package store

import (
	"database/sql"
	"errors"
	"time"
)

// CreateReminder inserts a new pending reminder. The fire time must be
// strictly in the future at the moment of the write; ErrPastTime
// otherwise. The store assigns the ID.
func (s *Store) CreateReminder(message string, fireAt time.Time) (*Reminder, error) {
	now := time.Now().UTC()
	if !fireAt.After(now) {
		return nil, ErrPastTime
	}

	r := &Reminder{
		ID:        NewID(),
		Message:   message,
		FireAt:    fireAt.UTC(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO reminders (id, message, fire_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Message, r.FireAt.Format(time.RFC3339Nano), r.Status,
		r.CreatedAt.Format(time.RFC3339Nano), r.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	return r, nil
}

// UpdateReminder rewrites a reminder's message and fire time, resetting
// its status to pending (a completed reminder can be revived this way).
// Rejects a fire time not strictly in the future with ErrPastTime.
// Returns false with no error when no reminder has the id.
func (s *Store) UpdateReminder(id, message string, fireAt time.Time) (bool, error) {
	now := time.Now().UTC()
	if !fireAt.After(now) {
		return false, ErrPastTime
	}

	res, err := s.db.Exec(`
		UPDATE reminders SET message = ?, fire_at = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, message, fireAt.UTC().Format(time.RFC3339Nano), StatusPending,
		now.Format(time.RFC3339Nano), id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteReminder removes a reminder unconditionally. Deleting a
// non-existent id is not an error.
func (s *Store) DeleteReminder(id string) error {
	_, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	return err
}

// GetReminder retrieves a reminder by ID. Returns nil, nil when absent.
func (s *Store) GetReminder(id string) (*Reminder, error) {
	row := s.db.QueryRow(`
		SELECT id, message, fire_at, status, created_at, updated_at
		FROM reminders WHERE id = ?
	`, id)

	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListReminders returns all reminders ordered by fire time ascending,
// irrespective of status.
func (s *Store) ListReminders() ([]*Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, message, fire_at, status, created_at, updated_at
		FROM reminders ORDER BY fire_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// PendingReminders returns all reminders with status pending, used by
// scheduler rehydration at startup.
func (s *Store) PendingReminders() ([]*Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, message, fire_at, status, created_at, updated_at
		FROM reminders WHERE status = ? ORDER BY fire_at ASC
	`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// CompleteReminder transitions a reminder from pending to completed.
// Returns true only for the write that performed the transition; a
// reminder that was already completed or deleted yields false with no
// error, making concurrent fire/delete races resolve silently.
func (s *Store) CompleteReminder(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE reminders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusCompleted, time.Now().UTC().Format(time.RFC3339Nano), id, StatusPending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*Reminder, error) {
	var r Reminder
	var fireAt, createdAt, updatedAt string

	if err := row.Scan(&r.ID, &r.Message, &fireAt, &r.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	r.FireAt, _ = time.Parse(time.RFC3339Nano, fireAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &r, nil
}
