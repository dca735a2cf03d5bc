package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()

	l, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSQLiteLedgerSessionLifecycle(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	rec := &SessionRecord{
		ID:              "s1",
		UserID:          "u1",
		Type:            "FOCUS",
		DurationMinutes: 25,
		Status:          SessionActive,
		StartedAt:       started,
		UpdatedAt:       started,
	}
	if err := l.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := l.GetSession(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != SessionActive || got.DurationMinutes != 25 || !got.StartedAt.Equal(started) {
		t.Errorf("Unexpected session: %+v", got)
	}
	if !got.EndedAt.IsZero() {
		t.Error("EndedAt should be zero for an active session")
	}

	if _, err := l.GetSession(ctx, "someone-else", "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another user's session, got %v", err)
	}

	if err := l.UpdateSessionStatus(ctx, "u1", "s1", SessionPaused, started.Add(5*time.Minute)); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	ended := started.Add(25 * time.Minute)
	if err := l.UpdateSessionStatus(ctx, "u1", "s1", SessionCompleted, ended); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, _ = l.GetSession(ctx, "u1", "s1")
	if got.Status != SessionCompleted || !got.EndedAt.Equal(ended) {
		t.Errorf("Expected completed session ending at %v, got %+v", ended, got)
	}

	if err := l.UpdateSessionStatus(ctx, "u1", "missing", SessionPaused, ended); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing session, got %v", err)
	}
}

func TestSQLiteLedgerListSessions(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		err := l.CreateSession(ctx, &SessionRecord{
			ID: id, UserID: "u1", Type: "FOCUS", DurationMinutes: 25,
			Status: SessionActive, StartedAt: at, UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("CreateSession %s failed: %v", id, err)
		}
	}

	sessions, err := l.ListSessions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Errorf("Expected newest first, got %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestSQLiteLedgerDailyStatsAccumulate(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	deltas := []DailyStats{
		{UserID: "u1", Date: "2025-03-10", FocusMinutes: 25, SessionsCompleted: 1, Points: 50},
		{UserID: "u1", Date: "2025-03-10", FocusMinutes: 50, SessionsCompleted: 1, Points: 100},
		{UserID: "u1", Date: "2025-03-10", Distractions: 1},
		{UserID: "u1", Date: "2025-03-08", FocusMinutes: 10, SessionsCompleted: 1, Points: 20},
	}
	for _, d := range deltas {
		if err := l.AddDailyStats(ctx, d); err != nil {
			t.Fatalf("AddDailyStats failed: %v", err)
		}
	}

	today, err := l.GetDailyStats(ctx, "u1", "2025-03-10")
	if err != nil {
		t.Fatalf("GetDailyStats failed: %v", err)
	}
	if today.FocusMinutes != 75 || today.SessionsCompleted != 2 || today.Points != 150 || today.Distractions != 1 {
		t.Errorf("Unexpected totals: %+v", today)
	}

	if _, err := l.GetDailyStats(ctx, "u1", "2025-03-09"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty day, got %v", err)
	}

	series, err := l.ListDailyStats(ctx, "u1", "2025-03-04", "2025-03-10")
	if err != nil {
		t.Fatalf("ListDailyStats failed: %v", err)
	}
	if len(series) != 2 || series[0].Date != "2025-03-08" || series[1].Date != "2025-03-10" {
		t.Errorf("Unexpected series: %+v", series)
	}
}

func TestSQLiteLedgerOracleOncePerDay(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := l.GetOracleMessage(ctx, "u1", "2025-03-10"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before saving, got %v", err)
	}

	msg := &OracleMessage{UserID: "u1", Date: "2025-03-10", Prompt: "focus?", Message: "yes", CreatedAt: now}
	if err := l.SaveOracleMessage(ctx, msg); err != nil {
		t.Fatalf("SaveOracleMessage failed: %v", err)
	}

	dup := &OracleMessage{UserID: "u1", Date: "2025-03-10", Prompt: "again", Message: "no", CreatedAt: now}
	if err := l.SaveOracleMessage(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	got, err := l.GetOracleMessage(ctx, "u1", "2025-03-10")
	if err != nil {
		t.Fatalf("GetOracleMessage failed: %v", err)
	}
	if got.Message != "yes" || !got.CreatedAt.Equal(now) {
		t.Errorf("Unexpected oracle message: %+v", got)
	}
}

func TestSQLiteLedgerOracleHistory(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for day := 1; day <= 9; day++ {
		msg := &OracleMessage{
			UserID:    "u1",
			Date:      fmt.Sprintf("2025-03-%02d", day),
			Prompt:    "focus?",
			Message:   fmt.Sprintf("message %d", day),
			CreatedAt: time.Date(2025, 3, day, 9, 0, 0, 0, time.UTC),
		}
		if err := l.SaveOracleMessage(ctx, msg); err != nil {
			t.Fatalf("SaveOracleMessage failed: %v", err)
		}
	}

	history, err := l.ListOracleMessages(ctx, "u1", 7)
	if err != nil {
		t.Fatalf("ListOracleMessages failed: %v", err)
	}
	if len(history) != 7 {
		t.Fatalf("Expected 7 messages, got %d", len(history))
	}
	if history[0].Date != "2025-03-09" || history[6].Date != "2025-03-03" {
		t.Errorf("Expected newest first, got %s..%s", history[0].Date, history[6].Date)
	}
	if history[0].Resonates != nil {
		t.Errorf("Expected no feedback yet, got %v", *history[0].Resonates)
	}

	other, err := l.ListOracleMessages(ctx, "u2", 7)
	if err != nil {
		t.Fatalf("ListOracleMessages failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no messages for u2, got %d", len(other))
	}
}

func TestSQLiteLedgerOracleFeedback(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.SetOracleFeedback(ctx, "u1", "2025-03-10", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound without a message, got %v", err)
	}

	msg := &OracleMessage{UserID: "u1", Date: "2025-03-10", Prompt: "focus?", Message: "yes", CreatedAt: time.Now()}
	if err := l.SaveOracleMessage(ctx, msg); err != nil {
		t.Fatalf("SaveOracleMessage failed: %v", err)
	}

	for _, want := range []bool{true, false, false} {
		if err := l.SetOracleFeedback(ctx, "u1", "2025-03-10", want); err != nil {
			t.Fatalf("SetOracleFeedback(%v) failed: %v", want, err)
		}
		got, err := l.GetOracleMessage(ctx, "u1", "2025-03-10")
		if err != nil {
			t.Fatalf("GetOracleMessage failed: %v", err)
		}
		if got.Resonates == nil || *got.Resonates != want {
			t.Errorf("Expected resonates=%v, got %v", want, got.Resonates)
		}
	}
}

func TestSQLiteLedgerDistraction(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.RecordDistraction(ctx, DistractionEvent{
		UserID: "u1", SessionID: "s1", Reason: "cancelled", CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordDistraction failed: %v", err)
	}

	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM distraction_events WHERE user_id = ?", "u1").Scan(&n); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 distraction event, got %d", n)
	}
}

func TestSQLiteLedgerConditionalStatusUpdate(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	rec := &SessionRecord{ID: "s1", UserID: "u1", Type: "FOCUS", DurationMinutes: 25, Status: SessionActive, StartedAt: at, UpdatedAt: at}
	if err := l.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	live := []SessionStatus{SessionActive, SessionPaused}
	if err := l.UpdateSessionStatus(ctx, "u1", "s1", SessionCompleted, at, live...); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := l.UpdateSessionStatus(ctx, "u1", "s1", SessionCancelled, at, live...); !errors.Is(err, ErrStatusConflict) {
		t.Errorf("Expected ErrStatusConflict cancelling a completed session, got %v", err)
	}
	if err := l.UpdateSessionStatus(ctx, "u1", "missing", SessionCancelled, at, live...); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing session, got %v", err)
	}

	got, _ := l.GetSession(ctx, "u1", "s1")
	if got.Status != SessionCompleted {
		t.Errorf("Expected status to stay COMPLETED, got %s", got.Status)
	}
}

func TestSQLiteLedgerConcurrentTransitions(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	rec := &SessionRecord{ID: "s1", UserID: "u1", Type: "FOCUS", DurationMinutes: 25, Status: SessionActive, StartedAt: at, UpdatedAt: at}
	if err := l.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := SessionCompleted
			if i%2 == 1 {
				status = SessionCancelled
			}
			errs <- l.UpdateSessionStatus(ctx, "u1", "s1", status, at, SessionActive, SessionPaused)
		}(i)
	}
	wg.Wait()
	close(errs)

	applied := 0
	for err := range errs {
		switch {
		case err == nil:
			applied++
		case !errors.Is(err, ErrStatusConflict):
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if applied != 1 {
		t.Errorf("Expected exactly one transition to apply, got %d", applied)
	}
}

func TestSQLiteLedgerConcurrentWrites(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	const workers = 200
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%10)
			if _, err := l.ListSessions(ctx, user, 10); err != nil {
				errs <- err
				return
			}
			errs <- l.AddDailyStats(ctx, DailyStats{UserID: user, Date: "2025-03-10", FocusMinutes: 1, Points: 2})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent write failed: %v", err)
		}
	}

	for u := 0; u < 10; u++ {
		stats, err := l.GetDailyStats(ctx, fmt.Sprintf("u%d", u), "2025-03-10")
		if err != nil {
			t.Fatalf("GetDailyStats failed: %v", err)
		}
		if stats.FocusMinutes != workers/10 || stats.Points != 2*workers/10 {
			t.Errorf("u%d: expected %d minutes and %d points, got %+v", u, workers/10, 2*workers/10, stats)
		}
	}
}
