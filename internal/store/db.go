package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Healthy verifies the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL,
	unit_code   TEXT NOT NULL,
	date        TEXT NOT NULL,
	timestamp   TEXT NOT NULL,
	present     BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attendance_unit_date ON attendance_records (unit_code, date);

CREATE TABLE IF NOT EXISTS students (
	student_id  TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	course      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS student_units (
	student_id  TEXT NOT NULL REFERENCES students(student_id) ON DELETE CASCADE,
	unit_code   TEXT NOT NULL,
	PRIMARY KEY (student_id, unit_code)
);

CREATE TABLE IF NOT EXISTS session_summaries (
	id             TEXT PRIMARY KEY,
	unit_code      TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL,
	closed_at      TIMESTAMPTZ NOT NULL,
	present        INTEGER NOT NULL,
	absent_marked  INTEGER NOT NULL,
	reason         TEXT NOT NULL
);
`

// Migrate creates the tables this service needs if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
