package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/savvyfin/advisor/internal/config"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateEmail is returned when an email is already registered
	ErrDuplicateEmail = errors.New("store: email already registered")
	// ErrNotOwner is returned when a row exists but belongs to another user
	ErrNotOwner = errors.New("store: not owned by user")
)

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx, so the same read
// helpers serve pooled one-off queries and scoped-connection snapshots.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store wraps the SQL connection pool. The pool is the only gate on
// concurrent database work: MaxOpenConns bounds how many connections can be
// checked out at once and acquisition blocks, up to the acquire timeout,
// while the pool is saturated.
type Store struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	monthly_income REAL NOT NULL DEFAULT 0,
	employment_status TEXT NOT NULL DEFAULT '',
	financial_goal TEXT NOT NULL DEFAULT '',
	risk_tolerance TEXT NOT NULL DEFAULT '',
	phone_number TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS persona_profiles (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
	persona_name TEXT NOT NULL,
	persona_description TEXT NOT NULL,
	key_traits TEXT NOT NULL DEFAULT '[]',
	lifestyle_summary TEXT NOT NULL DEFAULT '',
	financial_tendencies TEXT NOT NULL DEFAULT '',
	cultural_profile TEXT NOT NULL DEFAULT '{}',
	advice_style TEXT NOT NULL DEFAULT '',
	source_taste_data TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	description TEXT NOT NULL,
	amount REAL NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, occurred_at);
`

// Open connects to the database, applies pool settings and ensures the schema
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Int("max_open_conns", cfg.MaxOpenConns).
		Dur("acquire_timeout", cfg.AcquireTimeout).
		Msg("Database store ready")

	return &Store{db: db, acquireTimeout: cfg.AcquireTimeout}, nil
}

// WithConn checks out a single pooled connection, runs fn against it, and
// returns the connection to the pool before WithConn itself returns.
// Saturated pools queue the acquisition; the acquire timeout turns an
// exhausted pool into an error instead of an indefinite wait.
func (s *Store) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// WithTx runs fn inside a transaction on a freshly acquired connection,
// committing when fn returns nil and rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Err(rbErr).Msg("Rollback failed after transaction error")
		}
		return err
	}

	return tx.Commit()
}

// Stats reports connection pool counters straight from database/sql.
// InUse is the number of connections currently checked out.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Health verifies the database answers queries
func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health query failed: %w", err)
	}
	return nil
}

// Close shuts the pool down
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
