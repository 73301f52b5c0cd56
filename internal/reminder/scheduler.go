// Package reminder implements the in-memory timer engine over the
// durable reminder store. The scheduler's timer table is a cache of
// store state: it is rebuilt from the store on every Start, and the
// store row is always updated before any in-memory consequence.
//
// Firing policy: within one process lifetime each armed timer fires at
// most once. A reminder whose fire time elapsed while the process was
// down is skipped at rehydration, not fired late — missed reminders are
// dropped, never backlogged.
package reminder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wren-assistant/wren/internal/store"
)

// AlertFunc receives the reminder message when a timer fires. Invoked
// at most once per fired reminder, after the status transition has
// committed.
type AlertFunc func(message string)

// DailyJobFunc is the recurring job run once per day at midnight UTC
// (and once eagerly at Start). The scheduler passes the UTC date
// (YYYY-MM-DD) the run is for: the midnight trigger covers the day
// that just ended, the eager Start run covers the current day.
type DailyJobFunc func(ctx context.Context, date string)

// Scheduler owns the timer table and the single registered alert
// handler. Construct once per process and pass by reference.
type Scheduler struct {
	logger *slog.Logger
	store  *store.Store

	mu       sync.Mutex
	timers   map[string]*time.Timer // reminder ID -> armed one-shot timer
	running  bool
	alert    AlertFunc
	dailyJob DailyJobFunc
	daily    *time.Timer
	wg       sync.WaitGroup
}

// New creates a scheduler over the given store.
func New(logger *slog.Logger, st *store.Store) *Scheduler {
	return &Scheduler{
		logger: logger.With("component", "reminder"),
		store:  st,
		timers: make(map[string]*time.Timer),
	}
}

// SetAlertFunc registers the alert handler. Replaces any previous one.
func (s *Scheduler) SetAlertFunc(fn AlertFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = fn
}

// SetDailyJob registers the recurring midnight job.
func (s *Scheduler) SetDailyJob(fn DailyJobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyJob = fn
}

// Start rehydrates timer state from the store: every pending reminder
// with a future fire time gets a one-shot timer; past-due pending
// reminders are logged and skipped. Also arms the recurring daily job
// and runs it once eagerly to catch a day missed while the process was
// off. Calling Start on a running scheduler is a no-op, so re-running
// rehydration cannot double-arm a timer.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	pending, err := s.store.PendingReminders()
	if err != nil {
		return err
	}

	now := time.Now()
	armed := 0
	for _, r := range pending {
		if !r.FireAt.After(now) {
			s.logger.Info("skipping past-due reminder",
				"id", r.ID,
				"message", r.Message,
				"fire_at", r.FireAt,
			)
			continue
		}
		s.arm(r.ID, r.Message, r.FireAt)
		armed++
	}

	s.armDaily()

	if job := s.currentDailyJob(); job != nil {
		date := time.Now().UTC().Format("2006-01-02")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job(ctx, date)
		}()
	}

	s.logger.Info("scheduler started", "pending", len(pending), "armed", armed)
	return nil
}

// Stop cancels all armed timers and waits for in-flight fire callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	if s.daily != nil {
		s.daily.Stop()
		s.daily = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Schedule creates and arms a reminder. Returns false for an
// unparsable fire time or one not strictly in the future. The store
// insert happens before the timer is armed; if the process dies
// between the two, the next Start rehydrates the reminder from the
// store.
func (s *Scheduler) Schedule(message, fireTimeISO string) bool {
	fireAt, err := ParseFireTime(fireTimeISO)
	if err != nil {
		s.logger.Warn("invalid reminder time", "time", fireTimeISO, "error", err)
		return false
	}

	r, err := s.store.CreateReminder(message, fireAt)
	if err != nil {
		if errors.Is(err, store.ErrPastTime) {
			s.logger.Warn("rejected past reminder time", "time", fireTimeISO)
		} else {
			s.logger.Error("failed to create reminder", "error", err)
		}
		return false
	}

	s.arm(r.ID, r.Message, r.FireAt)
	s.logger.Info("reminder scheduled", "id", r.ID, "fire_at", r.FireAt)
	return true
}

// Update rewrites a reminder's message and fire time. The store row is
// reset to pending; an armed timer is replaced, otherwise a new one is
// armed. False for an unknown id, a past time, or an unparsable time.
func (s *Scheduler) Update(id, message, fireTimeISO string) bool {
	fireAt, err := ParseFireTime(fireTimeISO)
	if err != nil {
		s.logger.Warn("invalid reminder time", "id", id, "time", fireTimeISO, "error", err)
		return false
	}

	updated, err := s.store.UpdateReminder(id, message, fireAt)
	if err != nil {
		if errors.Is(err, store.ErrPastTime) {
			s.logger.Warn("rejected past reminder time", "id", id, "time", fireTimeISO)
		} else {
			s.logger.Error("failed to update reminder", "id", id, "error", err)
		}
		return false
	}
	if !updated {
		s.logger.Warn("update for unknown reminder", "id", id)
		return false
	}

	s.arm(id, message, fireAt)
	s.logger.Info("reminder updated", "id", id, "fire_at", fireAt)
	return true
}

// Delete removes a reminder from the store and best-effort cancels its
// timer. The timer may legitimately be absent — already fired, or never
// armed this process lifetime.
func (s *Scheduler) Delete(id string) bool {
	if err := s.store.DeleteReminder(id); err != nil {
		s.logger.Error("failed to delete reminder", "id", id, "error", err)
		return false
	}

	s.cancelTimer(id)
	s.logger.Info("reminder deleted", "id", id)
	return true
}

// List returns all reminders ordered by fire time, for display.
func (s *Scheduler) List() ([]*store.Reminder, error) {
	return s.store.ListReminders()
}

// arm sets (or replaces) the one-shot timer for a reminder.
func (s *Scheduler) arm(id, message string, fireAt time.Time) {
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.timers[id]; exists {
		timer.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.onFire(id, message)
	})
}

// cancelTimer stops and removes a reminder's timer if armed.
func (s *Scheduler) cancelTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

// onFire is the only path that transitions a reminder to completed.
// The status write commits before the alert callback runs; a callback
// panic is contained and never rolls the transition back. A missing or
// already-completed row (concurrent delete, stale timer) is a silent
// no-op.
func (s *Scheduler) onFire(id, message string) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	alert := s.alert
	s.mu.Unlock()

	fired, err := s.store.CompleteReminder(id)
	if err != nil {
		s.logger.Error("failed to complete reminder", "id", id, "error", err)
		return
	}
	if !fired {
		s.logger.Debug("timer fired for absent reminder", "id", id)
		return
	}

	s.logger.Info("reminder fired", "id", id, "message", message)

	if alert != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("alert callback panicked", "id", id, "panic", r)
				}
			}()
			alert(message)
		}()
	}
}

// armDaily schedules the next midnight-UTC run of the daily job,
// rearming after each fire. Caller must not hold s.mu.
func (s *Scheduler) armDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.dailyJob == nil {
		return
	}

	now := time.Now().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	if s.daily != nil {
		s.daily.Stop()
	}
	s.daily = time.AfterFunc(next.Sub(now), s.onDaily)

	s.logger.Debug("daily job armed", "next", next)
}

func (s *Scheduler) onDaily() {
	s.wg.Add(1)
	defer s.wg.Done()

	job := s.currentDailyJob()
	if job == nil {
		return
	}

	// Firing at midnight means the day to summarize is the one that
	// just ended, not the freshly started (and still empty) one.
	date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	job(ctx, date)

	s.armDaily()
}

func (s *Scheduler) currentDailyJob() DailyJobFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.dailyJob
}

// ParseFireTime parses a user-supplied absolute fire time. RFC 3339 is
// preferred; a bare local timestamp without zone offset
// (2006-01-02T15:04:05) is accepted for tool-call convenience.
func ParseFireTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, time.Local)
}
