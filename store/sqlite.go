package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteLedger implements SessionLedger using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteLedger struct {
	*sqlLedger
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			session_type     TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			status           TEXT NOT NULL,
			room_id          TEXT NOT NULL DEFAULT '',
			started_at       INTEGER NOT NULL,
			ended_at         INTEGER,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_focus_sessions_user_started
			ON focus_sessions (user_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS distraction_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			user_id            TEXT NOT NULL,
			date               TEXT NOT NULL,
			focus_minutes      INTEGER NOT NULL DEFAULT 0,
			sessions_completed INTEGER NOT NULL DEFAULT 0,
			points             INTEGER NOT NULL DEFAULT 0,
			distractions       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS oracle_messages (
			user_id    TEXT NOT NULL,
			date       TEXT NOT NULL,
			prompt     TEXT NOT NULL,
			message    TEXT NOT NULL,
			resonates  INTEGER,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, date)
		)`,
	},
	upsertDailyStats: `
	INSERT INTO daily_stats (user_id, date, focus_minutes, sessions_completed, points, distractions)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, date) DO UPDATE SET
		focus_minutes = focus_minutes + excluded.focus_minutes,
		sessions_completed = sessions_completed + excluded.sessions_completed,
		points = points + excluded.points,
		distractions = distractions + excluded.distractions
	`,
	insertOracle: `
	INSERT INTO oracle_messages (user_id, date, prompt, message, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (user_id, date) DO NOTHING
	`,
}

// NewSQLite creates a new SQLite session ledger.
// The database file is created if it doesn't exist.
func NewSQLite(dbPath string) (*SQLiteLedger, error) {
	// Pragmas in the DSN apply to every pooled connection, not just the
	// one that happens to run a PRAGMA statement.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection serializes
	// writes in the pool instead of failing them with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to connect: %w", err)
	}

	l, err := newSQLLedger(context.Background(), db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLedger{sqlLedger: l}, nil
}
