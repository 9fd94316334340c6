package store

import (
	"context"
	"database/sql"
)

// The unique constraints on registrations(htno, event_id) and attendance(reg_id) carry
// the one-registration-per-pair and one-record-per-registration invariants; the
// repository's ON CONFLICT clauses depend on them.
const schema = `
CREATE TABLE IF NOT EXISTS students (
	htno     TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	program  TEXT NOT NULL DEFAULT '',
	batch    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rfid_mappings (
	rfid_hex TEXT PRIMARY KEY,
	htno     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	event_id   TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	event_date TIMESTAMPTZ NOT NULL,
	"from"     TIMESTAMPTZ NOT NULL,
	"to"       TIMESTAMPTZ NOT NULL,
	CHECK ("from" <= "to")
);

CREATE TABLE IF NOT EXISTS registrations (
	reg_id     TEXT PRIMARY KEY,
	htno       TEXT NOT NULL REFERENCES students(htno),
	event_id   TEXT NOT NULL REFERENCES events(event_id),
	reg_type   TEXT NOT NULL CHECK (reg_type IN ('pre-registered', 'spot')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (htno, event_id)
);

CREATE TABLE IF NOT EXISTS attendance (
	att_id     TEXT PRIMARY KEY,
	reg_id     TEXT NOT NULL UNIQUE REFERENCES registrations(reg_id),
	htno       TEXT NOT NULL,
	reg_type   TEXT NOT NULL,
	is_present BOOLEAN NOT NULL DEFAULT FALSE,
	moving     TEXT CHECK (moving IN ('IN', 'OUT')),
	marked_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_registrations_event ON registrations(event_id);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
