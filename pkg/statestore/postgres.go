package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the single-row recording_state table. Execute it
// via [PostgresStore.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS recording_state (
    id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    recording   BOOLEAN NOT NULL DEFAULT false,
    filename    TEXT NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the state in one row of a PostgreSQL table.
type PostgresStore struct {
	db   DB
	pool *pgxpool.Pool
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Pinger = (*PostgresStore)(nil)
)

// NewPostgresStore wraps db. The caller runs [PostgresStore.Migrate] before
// the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore connects a pool to dsn and migrates the schema.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: connect postgres: %w", err)
	}
	s := &PostgresStore{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("statestore: migrate: %w", err)
	}
	return nil
}

// Load implements [Store].
func (p *PostgresStore) Load(ctx context.Context) (State, error) {
	const query = `SELECT recording, filename, updated_at FROM recording_state WHERE id = 1`
	var s State
	err := p.db.QueryRow(ctx, query).Scan(&s.Recording, &s.Filename, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("statestore: load: %w", err)
	}
	return s, nil
}

// Save implements [Store].
func (p *PostgresStore) Save(ctx context.Context, s State) error {
	const query = `
		INSERT INTO recording_state (id, recording, filename, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			recording  = EXCLUDED.recording,
			filename   = EXCLUDED.filename,
			updated_at = EXCLUDED.updated_at`
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := p.db.Exec(ctx, query, s.Recording, s.Filename, updated); err != nil {
		return fmt.Errorf("statestore: save: %w", err)
	}
	return nil
}

// Ping implements [Pinger].
func (p *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := p.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("statestore: ping: %w", err)
	}
	return nil
}

// Close implements [Store]. A pool opened by [OpenPostgresStore] is closed.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
