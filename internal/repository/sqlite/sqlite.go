// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is embedded: the whole record store is one file next to the binary,
// with no database server to run. Tests use ":memory:" for a fresh,
// isolated store per test.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain.
//
// LAYOUT:
// DB owns the connection pool and the schema. Each entity gets a small
// sub-repository (UserDB, FoodDB, DonationDB, RatingDB, NotificationDB)
// sharing the same pool. Callers reach them through db.Users(), db.Food() and
// so on.
//
// CONCURRENCY:
// The pool is capped at ONE open connection. Every statement, and every
// transaction as a whole, runs on that connection in turn, so writes are
// serialized. Inside a transaction, only use the *sql.Tx: asking the pool for
// a second connection while the transaction holds the only one would block
// forever.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and hands out per-entity repositories.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/shareplate.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: serializes writes and keeps ":memory:" databases
	// alive (each new connection to ":memory:" would be a different,
	// empty database).
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the store is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB                 { return &UserDB{conn: db.conn} }
func (db *DB) Food() *FoodDB                  { return &FoodDB{conn: db.conn} }
func (db *DB) Donations() *DonationDB         { return &DonationDB{conn: db.conn} }
func (db *DB) Ratings() *RatingDB             { return &RatingDB{conn: db.conn} }
func (db *DB) Notifications() *NotificationDB { return &NotificationDB{conn: db.conn} }

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id              TEXT PRIMARY KEY,
				name            TEXT NOT NULL,
				email           TEXT NOT NULL,
				password_hash   TEXT NOT NULL DEFAULT '',
				role            TEXT NOT NULL CHECK (role IN ('donor', 'ngo')),
				phone           TEXT NOT NULL DEFAULT '',
				address         TEXT NOT NULL DEFAULT '',
				organization    TEXT NOT NULL DEFAULT '',
				is_anonymous    INTEGER NOT NULL DEFAULT 0,
				lng             REAL NOT NULL DEFAULT 0,
				lat             REAL NOT NULL DEFAULT 0,
				location_address TEXT NOT NULL DEFAULT '',
				credits         INTEGER NOT NULL DEFAULT 0,
				total_donations INTEGER NOT NULL DEFAULT 0,
				rating          REAL NOT NULL DEFAULT 0,
				rating_count    INTEGER NOT NULL DEFAULT 0,
				rating_sum      INTEGER NOT NULL DEFAULT 0,
				created_at      DATETIME NOT NULL,
				updated_at      DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
		`},
		{"food", `
			CREATE TABLE IF NOT EXISTS food (
				id                  TEXT PRIMARY KEY,
				title               TEXT NOT NULL,
				description         TEXT NOT NULL,
				food_type           TEXT NOT NULL,
				quantity            TEXT NOT NULL,
				fresh_until         DATETIME NOT NULL,
				pickup_instructions TEXT NOT NULL DEFAULT '',
				lng                 REAL NOT NULL DEFAULT 0,
				lat                 REAL NOT NULL DEFAULT 0,
				location_address    TEXT NOT NULL DEFAULT '',
				images              TEXT NOT NULL DEFAULT '[]',
				donor_id            TEXT NOT NULL REFERENCES users(id),
				donor_name          TEXT NOT NULL,
				donor_organization  TEXT NOT NULL DEFAULT '',
				is_anonymous_donor  INTEGER NOT NULL DEFAULT 0,
				is_available        INTEGER NOT NULL DEFAULT 1,
				created_at          DATETIME NOT NULL,
				updated_at          DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_food_donor_id ON food(donor_id);
			CREATE INDEX IF NOT EXISTS idx_food_available ON food(is_available, created_at);
		`},
		{"donations", `
			CREATE TABLE IF NOT EXISTS donations (
				id               TEXT PRIMARY KEY,
				food_id          TEXT NOT NULL REFERENCES food(id),
				donor_id         TEXT NOT NULL REFERENCES users(id),
				ngo_id           TEXT NOT NULL REFERENCES users(id),
				ngo_name         TEXT NOT NULL,
				ngo_organization TEXT NOT NULL DEFAULT '',
				pickup_time      DATETIME NOT NULL,
				notes            TEXT NOT NULL DEFAULT '',
				status           TEXT NOT NULL CHECK (status IN ('scheduled', 'completed', 'cancelled')),
				created_at       DATETIME NOT NULL,
				completed_at     DATETIME,
				cancelled_at     DATETIME
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_donations_food_id ON donations(food_id);
			CREATE INDEX IF NOT EXISTS idx_donations_ngo_id ON donations(ngo_id);
			CREATE INDEX IF NOT EXISTS idx_donations_donor_id ON donations(donor_id);
		`},
		{"ratings", `
			CREATE TABLE IF NOT EXISTS ratings (
				id          TEXT PRIMARY KEY,
				donation_id TEXT NOT NULL REFERENCES donations(id),
				donor_id    TEXT NOT NULL REFERENCES users(id),
				ngo_id      TEXT NOT NULL REFERENCES users(id),
				score       INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
				review      TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_ratings_donation_id ON ratings(donation_id);
			CREATE INDEX IF NOT EXISTS idx_ratings_donor_id ON ratings(donor_id);
		`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				type       TEXT NOT NULL,
				message    TEXT NOT NULL,
				data       TEXT NOT NULL DEFAULT '{}',
				is_read    INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id, created_at);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeImages(raw string) ([]string, error) {
	images := []string{}
	if raw == "" {
		return images, nil
	}
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, err
	}
	return images, nil
}
