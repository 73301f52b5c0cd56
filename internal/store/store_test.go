package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "store_test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewID_Unique(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == "" || b == "" {
		t.Fatal("NewID returned empty string")
	}
	if a == b {
		t.Errorf("NewID returned duplicate: %q", a)
	}
}

func TestEnsureSession_Idempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureSession("main"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if err := s.EnsureSession("main"); err != nil {
		t.Fatalf("EnsureSession (second): %v", err)
	}

	sess, err := s.GetSession("main")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != "main" {
		t.Errorf("ID = %q, want %q", sess.ID, "main")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession error: %v", err)
	}
	if sess != nil {
		t.Errorf("expected nil session, got %+v", sess)
	}
}

func TestSetSessionTitle_WriteOnce(t *testing.T) {
	s := newTestStore(t)

	if err := s.EnsureSession("main"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if err := s.SetSessionTitle("main", "First Title"); err != nil {
		t.Fatalf("SetSessionTitle: %v", err)
	}
	// A second write must not overwrite the existing title.
	if err := s.SetSessionTitle("main", "Second Title"); err != nil {
		t.Fatalf("SetSessionTitle (second): %v", err)
	}

	sess, err := s.GetSession("main")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Title != "First Title" {
		t.Errorf("Title = %q, want %q", sess.Title, "First Title")
	}
}

func TestAppendMessage_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t)

	m := &Message{SessionID: "main", Role: "user", Content: "hello"}
	if err := s.AppendMessage(m); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if m.ID == "" {
		t.Error("expected assigned ID")
	}
	if m.Timestamp.IsZero() {
		t.Error("expected assigned timestamp")
	}
}

func TestRecentMessages_ChronologicalOrder(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, content := range []string{"one", "two", "three"} {
		m := &Message{
			SessionID: "main",
			Role:      "user",
			Content:   content,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage(%s): %v", content, err)
		}
	}

	msgs, err := s.RecentMessages("main", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestRecentMessages_LimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		m := &Message{
			SessionID: "main",
			Role:      "user",
			Content:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.RecentMessages("main", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "d" || msgs[1].Content != "e" {
		t.Errorf("got [%q, %q], want [d, e]", msgs[0].Content, msgs[1].Content)
	}
}

func TestAppendMessage_ToolCallsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	m := &Message{
		SessionID: "main",
		Role:      "assistant",
		Content:   "Done.",
		ToolCalls: []ToolCallRecord{
			{Name: "set_reminder", Args: `{"message":"tea","time_iso":"2026-09-01T10:00:00Z"}`, Result: "Reminder scheduled."},
		},
	}
	if err := s.AppendMessage(m); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.RecentMessages("main", 1)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if len(got.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(got.ToolCalls))
	}
	if got.ToolCalls[0].Name != "set_reminder" {
		t.Errorf("Name = %q, want set_reminder", got.ToolCalls[0].Name)
	}
	if got.ToolCalls[0].Result != "Reminder scheduled." {
		t.Errorf("Result = %q", got.ToolCalls[0].Result)
	}
}

func TestFirstUserMessage(t *testing.T) {
	s := newTestStore(t)

	got, err := s.FirstUserMessage("main")
	if err != nil {
		t.Fatalf("FirstUserMessage: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on empty session, got %+v", got)
	}

	base := time.Now().UTC().Add(-time.Hour)
	msgs := []*Message{
		{SessionID: "main", Role: "user", Content: "first question", Timestamp: base},
		{SessionID: "main", Role: "assistant", Content: "answer", Timestamp: base.Add(time.Second)},
		{SessionID: "main", Role: "user", Content: "second question", Timestamp: base.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err = s.FirstUserMessage("main")
	if err != nil {
		t.Fatalf("FirstUserMessage: %v", err)
	}
	if got == nil {
		t.Fatal("expected message, got nil")
	}
	if got.Content != "first question" {
		t.Errorf("Content = %q, want %q", got.Content, "first question")
	}
}

func TestMessagesOn_FiltersByDay(t *testing.T) {
	s := newTestStore(t)

	today := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	for _, m := range []*Message{
		{SessionID: "a", Role: "user", Content: "old", Timestamp: yesterday},
		{SessionID: "a", Role: "user", Content: "new", Timestamp: today},
		{SessionID: "b", Role: "assistant", Content: "also new", Timestamp: today.Add(time.Hour)},
	} {
		if err := s.AppendMessage(m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.MessagesOn("2026-08-30")
	if err != nil {
		t.Fatalf("MessagesOn: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "new" || msgs[1].Content != "also new" {
		t.Errorf("got [%q, %q]", msgs[0].Content, msgs[1].Content)
	}
}

func TestCreateReminder_RejectsPastTime(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateReminder("too late", time.Now().UTC().Add(-time.Minute))
	if !errors.Is(err, ErrPastTime) {
		t.Errorf("expected ErrPastTime, got %v", err)
	}

	// Exactly-now is also rejected; the fire time must be strictly future.
	_, err = s.CreateReminder("right now", time.Now().UTC())
	if !errors.Is(err, ErrPastTime) {
		t.Errorf("expected ErrPastTime for now, got %v", err)
	}
}

func TestCreateReminder_Pending(t *testing.T) {
	s := newTestStore(t)

	fireAt := time.Now().UTC().Add(time.Hour)
	r, err := s.CreateReminder("stretch", fireAt)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if r.ID == "" {
		t.Error("expected assigned ID")
	}
	if r.Status != StatusPending {
		t.Errorf("Status = %q, want %q", r.Status, StatusPending)
	}

	got, err := s.GetReminder(r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got == nil {
		t.Fatal("expected reminder, got nil")
	}
	if !got.FireAt.Equal(r.FireAt) {
		t.Errorf("FireAt = %v, want %v", got.FireAt, r.FireAt)
	}
}

func TestUpdateReminder_ResetsToPending(t *testing.T) {
	s := newTestStore(t)

	r, err := s.CreateReminder("stretch", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if _, err := s.CompleteReminder(r.ID); err != nil {
		t.Fatalf("CompleteReminder: %v", err)
	}

	newFireAt := time.Now().UTC().Add(2 * time.Hour)
	updated, err := s.UpdateReminder(r.ID, "stretch more", newFireAt)
	if err != nil {
		t.Fatalf("UpdateReminder: %v", err)
	}
	if !updated {
		t.Fatal("UpdateReminder reported no row touched")
	}

	got, err := s.GetReminder(r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, StatusPending)
	}
	if got.Message != "stretch more" {
		t.Errorf("Message = %q, want %q", got.Message, "stretch more")
	}
}

func TestUpdateReminder_RejectsPastTime(t *testing.T) {
	s := newTestStore(t)

	r, err := s.CreateReminder("stretch", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	_, err = s.UpdateReminder(r.ID, "stretch", time.Now().UTC().Add(-time.Minute))
	if !errors.Is(err, ErrPastTime) {
		t.Errorf("expected ErrPastTime, got %v", err)
	}
}

func TestUpdateReminder_UnknownIDReportsFalse(t *testing.T) {
	s := newTestStore(t)

	updated, err := s.UpdateReminder("no-such-id", "ghost", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("UpdateReminder: %v", err)
	}
	if updated {
		t.Error("UpdateReminder reported a row touched for unknown id")
	}
}

func TestDeleteReminder_Idempotent(t *testing.T) {
	s := newTestStore(t)

	r, err := s.CreateReminder("stretch", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	if err := s.DeleteReminder(r.ID); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	// Deleting again (or a made-up id) is not an error.
	if err := s.DeleteReminder(r.ID); err != nil {
		t.Errorf("DeleteReminder (second): %v", err)
	}
	if err := s.DeleteReminder("no-such-id"); err != nil {
		t.Errorf("DeleteReminder (unknown): %v", err)
	}

	got, err := s.GetReminder(r.ID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}

func TestListReminders_OrderedByFireTime(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	later, err := s.CreateReminder("later", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder(later): %v", err)
	}
	sooner, err := s.CreateReminder("sooner", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder(sooner): %v", err)
	}
	if _, err := s.CompleteReminder(later.ID); err != nil {
		t.Fatalf("CompleteReminder: %v", err)
	}

	// All statuses appear, ordered by fire time ascending.
	reminders, err := s.ListReminders()
	if err != nil {
		t.Fatalf("ListReminders: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("got %d reminders, want 2", len(reminders))
	}
	if reminders[0].ID != sooner.ID || reminders[1].ID != later.ID {
		t.Errorf("order = [%q, %q], want [sooner, later]", reminders[0].Message, reminders[1].Message)
	}
}

func TestPendingReminders_ExcludesCompleted(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	done, err := s.CreateReminder("done", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	open, err := s.CreateReminder("open", now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if _, err := s.CompleteReminder(done.ID); err != nil {
		t.Fatalf("CompleteReminder: %v", err)
	}

	pending, err := s.PendingReminders()
	if err != nil {
		t.Fatalf("PendingReminders: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].ID != open.ID {
		t.Errorf("got %q, want the open reminder", pending[0].Message)
	}
}

func TestCompleteReminder_ExactlyOnce(t *testing.T) {
	s := newTestStore(t)

	r, err := s.CreateReminder("stretch", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	fired, err := s.CompleteReminder(r.ID)
	if err != nil {
		t.Fatalf("CompleteReminder: %v", err)
	}
	if !fired {
		t.Error("first completion should report fired")
	}

	fired, err = s.CompleteReminder(r.ID)
	if err != nil {
		t.Fatalf("CompleteReminder (second): %v", err)
	}
	if fired {
		t.Error("second completion should not report fired")
	}

	// Completing a deleted reminder is a silent no-op.
	fired, err = s.CompleteReminder("no-such-id")
	if err != nil {
		t.Fatalf("CompleteReminder (unknown): %v", err)
	}
	if fired {
		t.Error("unknown reminder should not report fired")
	}
}

func TestSaveDailySummary_UniquePerDate(t *testing.T) {
	s := newTestStore(t)

	d, err := s.SaveDailySummary("2026-08-30", "A quiet day.", []string{"tea reminder set"})
	if err != nil {
		t.Fatalf("SaveDailySummary: %v", err)
	}
	if d.ID == "" {
		t.Error("expected assigned ID")
	}

	if _, err := s.SaveDailySummary("2026-08-30", "Overwrite attempt.", nil); err == nil {
		t.Error("expected duplicate date insert to fail")
	}

	got, err := s.GetDailySummary("2026-08-30")
	if err != nil {
		t.Fatalf("GetDailySummary: %v", err)
	}
	if got == nil {
		t.Fatal("expected summary, got nil")
	}
	if got.Summary != "A quiet day." {
		t.Errorf("Summary = %q, want %q", got.Summary, "A quiet day.")
	}
	if len(got.KeyEvents) != 1 || got.KeyEvents[0] != "tea reminder set" {
		t.Errorf("KeyEvents = %v", got.KeyEvents)
	}
}

func TestGetDailySummary_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetDailySummary("2026-01-01")
	if err != nil {
		t.Fatalf("GetDailySummary: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestRecentSummaries_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)

	for _, date := range []string{"2026-08-28", "2026-08-30", "2026-08-29"} {
		if _, err := s.SaveDailySummary(date, "summary for "+date, nil); err != nil {
			t.Fatalf("SaveDailySummary(%s): %v", date, err)
		}
	}

	summaries, err := s.RecentSummaries(2)
	if err != nil {
		t.Fatalf("RecentSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].Date != "2026-08-30" || summaries[1].Date != "2026-08-29" {
		t.Errorf("order = [%q, %q]", summaries[0].Date, summaries[1].Date)
	}
}
