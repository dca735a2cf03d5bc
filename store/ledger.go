package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAlreadyExists is returned when a unique ledger record is written twice.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrStatusConflict is returned when a session is no longer in any of the
	// statuses a transition expects.
	ErrStatusConflict = errors.New("store: session status changed")
)

// SessionStatus is the lifecycle state of a focus session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// SessionRecord is the durable record of a focus session.
type SessionRecord struct {
	ID              string
	UserID          string
	Type            string
	DurationMinutes int
	Status          SessionStatus
	RoomID          string
	StartedAt       time.Time
	EndedAt         time.Time // zero until completed or cancelled
	UpdatedAt       time.Time
}

// DistractionEvent records a cancelled session.
type DistractionEvent struct {
	UserID    string
	SessionID string
	Reason    string
	CreatedAt time.Time
}

// DailyStats aggregates one user's activity on one calendar day.
// Date is formatted YYYY-MM-DD.
type DailyStats struct {
	UserID            string
	Date              string
	FocusMinutes      int
	SessionsCompleted int
	Points            int
	Distractions      int
}

// OracleMessage is the single oracle reading a user may receive per day.
type OracleMessage struct {
	UserID    string
	Date      string
	Prompt    string
	Message   string
	Resonates *bool // user feedback, nil until given
	CreatedAt time.Time
}

// SessionLedger is the durable record of truth for sessions and daily stats.
// Ephemeral state in Store is derived from it and may be lost.
type SessionLedger interface {
	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, rec *SessionRecord) error

	// GetSession returns a session owned by userID, or ErrNotFound.
	GetSession(ctx context.Context, userID, sessionID string) (*SessionRecord, error)

	// UpdateSessionStatus transitions a session. Terminal statuses also set EndedAt.
	// When from is given the update only applies if the stored status is one
	// of from, otherwise ErrStatusConflict is returned.
	// Returns ErrNotFound if the session does not exist for userID.
	UpdateSessionStatus(ctx context.Context, userID, sessionID string, status SessionStatus, at time.Time, from ...SessionStatus) error

	// ListSessions returns a user's sessions, newest first.
	ListSessions(ctx context.Context, userID string, limit int) ([]*SessionRecord, error)

	// RecordDistraction appends a distraction event.
	RecordDistraction(ctx context.Context, ev DistractionEvent) error

	// AddDailyStats adds the counters in delta to the user's row for delta.Date,
	// creating it if needed.
	AddDailyStats(ctx context.Context, delta DailyStats) error

	// GetDailyStats returns one day's stats, or ErrNotFound.
	GetDailyStats(ctx context.Context, userID, date string) (*DailyStats, error)

	// ListDailyStats returns stats for dates in [from, to], oldest first.
	ListDailyStats(ctx context.Context, userID, from, to string) ([]DailyStats, error)

	// GetOracleMessage returns the user's oracle message for date, or ErrNotFound.
	GetOracleMessage(ctx context.Context, userID, date string) (*OracleMessage, error)

	// SaveOracleMessage stores the day's message. Returns ErrAlreadyExists if
	// one was already saved for that user and date.
	SaveOracleMessage(ctx context.Context, msg *OracleMessage) error

	// ListOracleMessages returns the user's most recent oracle messages,
	// newest date first.
	ListOracleMessages(ctx context.Context, userID string, limit int) ([]*OracleMessage, error)

	// SetOracleFeedback records whether the message for date resonated.
	// Returns ErrNotFound if there is no message for that user and date.
	SetOracleFeedback(ctx context.Context, userID, date string, resonates bool) error

	// Close releases the database connection.
	Close() error
}

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name             string
	schema           []string
	upsertDailyStats string
	insertOracle     string
}

// sqlLedger implements SessionLedger on database/sql.
type sqlLedger struct {
	db      *sql.DB
	dialect dialect
}

func newSQLLedger(ctx context.Context, db *sql.DB, d dialect) (*sqlLedger, error) {
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: failed to create schema: %w", d.name, err)
		}
	}
	return &sqlLedger{db: db, dialect: d}, nil
}

func (l *sqlLedger) errorf(format string, err error) error {
	return fmt.Errorf("%s: "+format+": %w", l.dialect.name, err)
}

// CreateSession inserts a new session record.
func (l *sqlLedger) CreateSession(ctx context.Context, rec *SessionRecord) error {
	query := `
	INSERT INTO focus_sessions (
		id, user_id, session_type, duration_minutes, status, room_id,
		started_at, ended_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := l.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Type,
		rec.DurationMinutes,
		string(rec.Status),
		rec.RoomID,
		toMillis(rec.StartedAt),
		nullMillis(rec.EndedAt),
		toMillis(rec.UpdatedAt),
	)
	if err != nil {
		return l.errorf("failed to create session", err)
	}
	return nil
}

// GetSession returns a session owned by userID.
func (l *sqlLedger) GetSession(ctx context.Context, userID, sessionID string) (*SessionRecord, error) {
	query := `
	SELECT id, user_id, session_type, duration_minutes, status, room_id,
		   started_at, ended_at, updated_at
	FROM focus_sessions
	WHERE id = ? AND user_id = ?
	`

	rec, err := scanSession(l.db.QueryRowContext(ctx, query, sessionID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.errorf("failed to get session", err)
	}
	return rec, nil
}

// UpdateSessionStatus transitions a session. The status check and the write
// are one statement, so concurrent transitions cannot both apply.
func (l *sqlLedger) UpdateSessionStatus(ctx context.Context, userID, sessionID string, status SessionStatus, at time.Time, from ...SessionStatus) error {
	var ended sql.NullInt64
	if status.Terminal() {
		ended = nullMillis(at)
	}

	query := "UPDATE focus_sessions SET status = ?, ended_at = ?, updated_at = ? WHERE id = ? AND user_id = ?"
	args := []any{string(status), ended, toMillis(at), sessionID, userID}
	if len(from) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(from)-1) + ")"
		for _, s := range from {
			args = append(args, string(s))
		}
	}

	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return l.errorf("failed to update session", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return l.errorf("failed to update session", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: the session is missing or its status moved on.
	if _, err := l.GetSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if len(from) == 0 {
		return nil
	}
	return ErrStatusConflict
}

// ListSessions returns a user's sessions, newest first.
func (l *sqlLedger) ListSessions(ctx context.Context, userID string, limit int) ([]*SessionRecord, error) {
	query := `
	SELECT id, user_id, session_type, duration_minutes, status, room_id,
		   started_at, ended_at, updated_at
	FROM focus_sessions
	WHERE user_id = ?
	ORDER BY started_at DESC
	LIMIT ?
	`

	rows, err := l.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, l.errorf("failed to query sessions", err)
	}
	defer rows.Close()

	sessions := make([]*SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, l.errorf("failed to scan session", err)
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, l.errorf("error iterating sessions", err)
	}

	return sessions, nil
}

// RecordDistraction appends a distraction event.
func (l *sqlLedger) RecordDistraction(ctx context.Context, ev DistractionEvent) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO distraction_events (user_id, session_id, reason, created_at) VALUES (?, ?, ?, ?)",
		ev.UserID, ev.SessionID, ev.Reason, toMillis(ev.CreatedAt),
	)
	if err != nil {
		return l.errorf("failed to record distraction", err)
	}
	return nil
}

// AddDailyStats adds delta to the day's counters.
func (l *sqlLedger) AddDailyStats(ctx context.Context, delta DailyStats) error {
	_, err := l.db.ExecContext(ctx, l.dialect.upsertDailyStats,
		delta.UserID,
		delta.Date,
		delta.FocusMinutes,
		delta.SessionsCompleted,
		delta.Points,
		delta.Distractions,
	)
	if err != nil {
		return l.errorf("failed to upsert daily stats", err)
	}
	return nil
}

// GetDailyStats returns one day's stats.
func (l *sqlLedger) GetDailyStats(ctx context.Context, userID, date string) (*DailyStats, error) {
	query := `
	SELECT user_id, date, focus_minutes, sessions_completed, points, distractions
	FROM daily_stats
	WHERE user_id = ? AND date = ?
	`

	var s DailyStats
	err := l.db.QueryRowContext(ctx, query, userID, date).Scan(
		&s.UserID, &s.Date, &s.FocusMinutes, &s.SessionsCompleted, &s.Points, &s.Distractions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.errorf("failed to get daily stats", err)
	}
	return &s, nil
}

// ListDailyStats returns stats for dates in [from, to], oldest first.
func (l *sqlLedger) ListDailyStats(ctx context.Context, userID, from, to string) ([]DailyStats, error) {
	query := `
	SELECT user_id, date, focus_minutes, sessions_completed, points, distractions
	FROM daily_stats
	WHERE user_id = ? AND date >= ? AND date <= ?
	ORDER BY date ASC
	`

	rows, err := l.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, l.errorf("failed to query daily stats", err)
	}
	defer rows.Close()

	stats := make([]DailyStats, 0)
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(&s.UserID, &s.Date, &s.FocusMinutes, &s.SessionsCompleted, &s.Points, &s.Distractions); err != nil {
			return nil, l.errorf("failed to scan daily stats", err)
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, l.errorf("error iterating daily stats", err)
	}

	return stats, nil
}

// GetOracleMessage returns the user's oracle message for date.
func (l *sqlLedger) GetOracleMessage(ctx context.Context, userID, date string) (*OracleMessage, error) {
	msg, err := scanOracle(l.db.QueryRowContext(ctx,
		"SELECT user_id, date, prompt, message, resonates, created_at FROM oracle_messages WHERE user_id = ? AND date = ?",
		userID, date,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, l.errorf("failed to get oracle message", err)
	}
	return msg, nil
}

// ListOracleMessages returns the user's latest oracle messages.
func (l *sqlLedger) ListOracleMessages(ctx context.Context, userID string, limit int) ([]*OracleMessage, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT user_id, date, prompt, message, resonates, created_at FROM oracle_messages WHERE user_id = ? ORDER BY date DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, l.errorf("failed to query oracle messages", err)
	}
	defer rows.Close()

	messages := make([]*OracleMessage, 0)
	for rows.Next() {
		msg, err := scanOracle(rows)
		if err != nil {
			return nil, l.errorf("failed to scan oracle message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, l.errorf("error iterating oracle messages", err)
	}
	return messages, nil
}

// SetOracleFeedback stores the user's reaction to a day's message.
func (l *sqlLedger) SetOracleFeedback(ctx context.Context, userID, date string, resonates bool) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE oracle_messages SET resonates = ? WHERE user_id = ? AND date = ?",
		resonates, userID, date,
	)
	if err != nil {
		return l.errorf("failed to save oracle feedback", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return l.errorf("failed to save oracle feedback", err)
	}
	if n == 0 {
		// MySQL reports zero rows when the value is unchanged.
		if _, err := l.GetOracleMessage(ctx, userID, date); err != nil {
			return err
		}
	}
	return nil
}

// SaveOracleMessage stores the day's message once.
func (l *sqlLedger) SaveOracleMessage(ctx context.Context, msg *OracleMessage) error {
	res, err := l.db.ExecContext(ctx, l.dialect.insertOracle,
		msg.UserID, msg.Date, msg.Prompt, msg.Message, toMillis(msg.CreatedAt),
	)
	if err != nil {
		return l.errorf("failed to save oracle message", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return l.errorf("failed to save oracle message", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Close closes the database connection.
func (l *sqlLedger) Close() error {
	return l.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOracle(row rowScanner) (*OracleMessage, error) {
	var (
		msg       OracleMessage
		resonates sql.NullBool
		created   int64
	)
	if err := row.Scan(&msg.UserID, &msg.Date, &msg.Prompt, &msg.Message, &resonates, &created); err != nil {
		return nil, err
	}
	if resonates.Valid {
		msg.Resonates = &resonates.Bool
	}
	msg.CreatedAt = fromMillis(created)
	return &msg, nil
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var (
		rec              SessionRecord
		status           string
		started, updated int64
		ended            sql.NullInt64
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Type,
		&rec.DurationMinutes,
		&status,
		&rec.RoomID,
		&started,
		&ended,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = SessionStatus(status)
	rec.StartedAt = fromMillis(started)
	rec.UpdatedAt = fromMillis(updated)
	if ended.Valid {
		rec.EndedAt = fromMillis(ended.Int64)
	}
	return &rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
