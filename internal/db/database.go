package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timestampLayout keeps stored timestamps fixed-width so they compare
// correctly as text.
const timestampLayout = "2006-01-02T15:04:05Z"

// DB wraps sql.DB for the booking core.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	now    func() time.Time
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL lets readers keep a snapshot while a writer commits; the busy
	// timeout makes concurrent writers queue instead of failing.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	instance := &DB{
		DB:     sqlDB,
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := instance.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS grounds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			price_per_hour INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'PENDING',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS availability_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ground_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			created_at TEXT NOT NULL,
			CHECK (end_time > start_time),
			FOREIGN KEY (ground_id) REFERENCES grounds(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS availability_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ground_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			CHECK (end_time > start_time),
			FOREIGN KEY (ground_id) REFERENCES grounds(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ground_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			holder_id INTEGER,
			creator_id INTEGER NOT NULL,
			origin TEXT NOT NULL DEFAULT 'ONLINE',
			status TEXT NOT NULL DEFAULT 'PROVISIONAL',
			transaction_uuid TEXT UNIQUE,
			transaction_code TEXT,
			expected_amount TEXT,
			paid_amount TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			CHECK (end_time > start_time),
			FOREIGN KEY (ground_id) REFERENCES grounds(id)
		)`,

		// One live reservation per (ground, date, slot). Cancelled rows stay for
		// audit and do not take part in the constraint.
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_reservation_slot
			ON reservations(ground_id, date, start_time, end_time)
			WHERE status <> 'CANCELLED'`,

		`CREATE INDEX IF NOT EXISTS idx_rules_ground_day ON availability_rules(ground_id, day_of_week, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_ground_date ON availability_blocks(ground_id, date, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_date ON reservations(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_holder ON reservations(holder_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_pending ON reservations(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_grounds_status ON grounds(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (db *DB) Close() error {
	return db.DB.Close()
}
