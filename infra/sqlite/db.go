// Package sqlite implements the core store contract on SQLite using the pure
// Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/loom/core/model"
	"github.com/kilianp07/loom/core/store"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements every repository against either the pool or a
// transaction.
type queries struct {
	db dbtx
}

// Store persists Loom state in a SQLite database.
type Store struct {
	queries
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Options tune the connection.
type Options struct {
	BusyTimeoutMS int
}

// DSN builds the modernc connection string for a database file. Write
// transactions take the database lock up front so concurrent rolls of the
// same date serialize instead of failing on upgrade.
func DSN(path string, opts Options) string {
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 5000
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, opts Options) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") {
		dsn = DSN(path, opts)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{queries: queries{db: db}, db: db}, nil
}

// InTx runs fn inside a transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.SystemError{Op: "begin transaction", Err: err, Retryable: true}
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&queries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return &model.SystemError{Op: "commit transaction", Err: err, Retryable: true}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS intents (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    program_id TEXT NOT NULL DEFAULT '',
    participant_id TEXT NOT NULL DEFAULT '',
    staff_id TEXT NOT NULL DEFAULT '',
    vehicle_id TEXT NOT NULL DEFAULT '',
    venue_id TEXT NOT NULL DEFAULT '',
    start_date TEXT NOT NULL,
    end_date TEXT,
    payload TEXT NOT NULL DEFAULT '{}',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_key ON intents(kind, program_id, participant_id, staff_id);
CREATE INDEX IF NOT EXISTS idx_intents_program ON intents(program_id, start_date);

CREATE TABLE IF NOT EXISTS exceptions (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    program_id TEXT NOT NULL,
    participant_id TEXT NOT NULL DEFAULT '',
    exception_date TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT '{}',
    created_by TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    UNIQUE (kind, program_id, participant_id, exception_date)
);
CREATE INDEX IF NOT EXISTS idx_exceptions_date ON exceptions(program_id, exception_date);

CREATE TABLE IF NOT EXISTS programs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    venue_id TEXT NOT NULL DEFAULT '',
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    pickup_time TEXT NOT NULL DEFAULT '',
    dropoff_time TEXT NOT NULL DEFAULT '',
    repeat TEXT NOT NULL DEFAULT '{}',
    start_date TEXT NOT NULL,
    end_date TEXT,
    participants TEXT NOT NULL DEFAULT '[]',
    staff_ids TEXT NOT NULL DEFAULT '[]',
    vehicle_ids TEXT NOT NULL DEFAULT '[]',
    qualifications TEXT NOT NULL DEFAULT '[]',
    active INTEGER NOT NULL DEFAULT 1,
    source_intent_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    supervision_weight REAL NOT NULL DEFAULT 1,
    wheelchair INTEGER NOT NULL DEFAULT 0,
    needs_transport INTEGER NOT NULL DEFAULT 0,
    lat REAL NOT NULL DEFAULT 0,
    lng REAL NOT NULL DEFAULT 0,
    default_billing_code TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS staff (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    classification_level INTEGER NOT NULL DEFAULT 1,
    hourly_rate REAL NOT NULL DEFAULT 0,
    qualifications TEXT NOT NULL DEFAULT '[]',
    can_lead INTEGER NOT NULL DEFAULT 0,
    can_drive INTEGER NOT NULL DEFAULT 0,
    availability TEXT NOT NULL DEFAULT '[]',
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS vehicles (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    seats INTEGER NOT NULL,
    wheelchair_spaces INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS venues (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    lat REAL NOT NULL DEFAULT 0,
    lng REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS billing_codes (
    code TEXT PRIMARY KEY,
    description TEXT NOT NULL DEFAULT '',
    hourly_rate REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS instances (
    id TEXT PRIMARY KEY,
    program_id TEXT NOT NULL,
    program_name TEXT NOT NULL DEFAULT '',
    instance_date TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    pickup_time TEXT NOT NULL DEFAULT '',
    dropoff_time TEXT NOT NULL DEFAULT '',
    venue_id TEXT NOT NULL DEFAULT '',
    qualifications TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL CHECK (status IN ('draft', 'confirmed', 'finalised')),
    stage TEXT NOT NULL,
    stale INTEGER NOT NULL DEFAULT 0,
    cards_dirty INTEGER NOT NULL DEFAULT 1,
    overridden INTEGER NOT NULL DEFAULT 0,
    rules TEXT NOT NULL DEFAULT '[]',
    pins TEXT NOT NULL DEFAULT '[]',
    vehicle_ids TEXT NOT NULL DEFAULT '[]',
    required_staff INTEGER NOT NULL DEFAULT 0,
    route_minutes REAL NOT NULL DEFAULT 0,
    revenue REAL NOT NULL DEFAULT 0,
    staff_cost REAL NOT NULL DEFAULT 0,
    admin_cost REAL NOT NULL DEFAULT 0,
    profit_loss REAL NOT NULL DEFAULT 0,
    margin REAL NOT NULL DEFAULT 0,
    shortfalls TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL,
    UNIQUE (program_id, instance_date)
);
CREATE INDEX IF NOT EXISTS idx_instances_date ON instances(instance_date);

CREATE TABLE IF NOT EXISTS participant_allocations (
    instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    billing_code TEXT NOT NULL DEFAULT '',
    hours REAL NOT NULL DEFAULT 0,
    weight REAL NOT NULL DEFAULT 1,
    needs_transport INTEGER NOT NULL DEFAULT 0,
    wheelchair INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    PRIMARY KEY (instance_id, participant_id)
);

CREATE TABLE IF NOT EXISTS staff_shifts (
    instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    instance_date TEXT NOT NULL,
    staff_id TEXT NOT NULL,
    role TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    pay_rate REAL NOT NULL DEFAULT 0,
    pinned INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    PRIMARY KEY (instance_id, staff_id)
);
CREATE INDEX IF NOT EXISTS idx_shifts_date ON staff_shifts(instance_date, staff_id);

CREATE TABLE IF NOT EXISTS vehicle_runs (
    instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    instance_date TEXT NOT NULL,
    direction TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    vehicle_id TEXT NOT NULL,
    driver_id TEXT NOT NULL DEFAULT '',
    start_time TEXT NOT NULL DEFAULT '',
    end_time TEXT NOT NULL DEFAULT '',
    manifest TEXT NOT NULL DEFAULT '[]',
    estimated_minutes REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    PRIMARY KEY (instance_id, direction, sequence)
);
CREATE INDEX IF NOT EXISTS idx_runs_date ON vehicle_runs(instance_date, vehicle_id);

CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
    program_id TEXT NOT NULL,
    card_date TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('MASTER', 'PICKUP', 'ACTIVITY', 'DROPOFF', 'ROSTER')),
    sequence INTEGER NOT NULL,
    start_time TEXT NOT NULL DEFAULT '',
    end_time TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    participant_ids TEXT NOT NULL DEFAULT '[]',
    staff_ids TEXT NOT NULL DEFAULT '[]',
    vehicle_id TEXT NOT NULL DEFAULT '',
    flagged INTEGER NOT NULL DEFAULT 0,
    meta TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_cards_instance ON cards(instance_id);
CREATE INDEX IF NOT EXISTS idx_cards_date ON cards(card_date);

CREATE TABLE IF NOT EXISTS card_members (
    card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
    member_kind TEXT NOT NULL CHECK (member_kind IN ('participant', 'staff')),
    member_id TEXT NOT NULL,
    card_date TEXT NOT NULL,
    PRIMARY KEY (card_id, member_kind, member_id)
);
CREATE INDEX IF NOT EXISTS idx_card_members ON card_members(member_kind, member_id, card_date);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at TEXT NOT NULL,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'info',
    details TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`
