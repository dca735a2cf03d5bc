package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLLedger implements SessionLedger using MySQL.
type MySQLLedger struct {
	*sqlLedger
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS focus_sessions (
			id               VARCHAR(64) PRIMARY KEY,
			user_id          VARCHAR(255) NOT NULL,
			session_type     VARCHAR(20) NOT NULL,
			duration_minutes INT NOT NULL,
			status           VARCHAR(20) NOT NULL,
			room_id          VARCHAR(255) NOT NULL DEFAULT '',
			started_at       BIGINT NOT NULL,
			ended_at         BIGINT NULL DEFAULT NULL,
			updated_at       BIGINT NOT NULL,

			INDEX idx_focus_sessions_user_started (user_id, started_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS distraction_events (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id    VARCHAR(255) NOT NULL,
			session_id VARCHAR(64) NOT NULL,
			reason     VARCHAR(255) NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,

			INDEX idx_distraction_events_user (user_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			user_id            VARCHAR(255) NOT NULL,
			date               CHAR(10) NOT NULL,
			focus_minutes      INT NOT NULL DEFAULT 0,
			sessions_completed INT NOT NULL DEFAULT 0,
			points             INT NOT NULL DEFAULT 0,
			distractions       INT NOT NULL DEFAULT 0,

			PRIMARY KEY (user_id, date)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS oracle_messages (
			user_id    VARCHAR(255) NOT NULL,
			date       CHAR(10) NOT NULL,
			prompt     TEXT NOT NULL,
			message    TEXT NOT NULL,
			resonates  TINYINT(1) NULL,
			created_at BIGINT NOT NULL,

			PRIMARY KEY (user_id, date)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	upsertDailyStats: `
	INSERT INTO daily_stats (user_id, date, focus_minutes, sessions_completed, points, distractions)
	VALUES (?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		focus_minutes = focus_minutes + VALUES(focus_minutes),
		sessions_completed = sessions_completed + VALUES(sessions_completed),
		points = points + VALUES(points),
		distractions = distractions + VALUES(distractions)
	`,
	insertOracle: `
	INSERT IGNORE INTO oracle_messages (user_id, date, prompt, message, created_at)
	VALUES (?, ?, ?, ?, ?)
	`,
}

// NewMySQL creates a new MySQL session ledger on an open connection pool.
func NewMySQL(db *sql.DB) (*MySQLLedger, error) {
	l, err := newSQLLedger(context.Background(), db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLLedger{sqlLedger: l}, nil
}

// NewMySQLFromDSN creates a new MySQL session ledger from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLFromDSN(dsn string) (*MySQLLedger, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid DSN: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQL(db)
}
