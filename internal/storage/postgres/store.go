package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowIndexer/internal/model"
	"escrowIndexer/internal/storage"
)

const (
	jobTable        = "freelancer_platform_app_job"
	userTable       = "freelancer_platform_app_webthreeuser"
	checkpointTable = "freelancer_platform_app_lastindexcrawl"
	journalTable    = "indexer_chain_events"
)

var (
	// ErrCheckpointNotFound is returned when no checkpoint row exists for a key.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrLockHeld is returned when another process owns the crawl lock.
	ErrLockHeld = errors.New("crawl lock held by another process")
)

// querier is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres persistence for jobs, checkpoints and the event journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the journal table owned by the indexer. The Django
// tables are managed by the web backend and are never created here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+journalTable+` (
			tx_hash TEXT NOT NULL,
			log_index BIGINT NOT NULL,
			crawl_key TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			block_hash TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			event_name TEXT NOT NULL,
			job_id BIGINT,
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			outcome TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tx_hash, log_index)
		);
		CREATE INDEX IF NOT EXISTS indexer_chain_events_pending_idx
			ON `+journalTable+` (crawl_key, status, block_number, log_index);
	`)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// Acquire checks out one pooled connection. Callers must Release it.
func (s *Store) Acquire(ctx context.Context) (storage.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Checkpoint reads a checkpoint outside of a cycle.
func (s *Store) Checkpoint(ctx context.Context, key string) (model.Checkpoint, bool, error) {
	return loadCheckpoint(ctx, s.pool, key)
}

// SeedCheckpoint creates the checkpoint row for key starting at block start.
// An existing row is left untouched and reported with created=false.
func (s *Store) SeedCheckpoint(ctx context.Context, key string, start uint64) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("checkpoint key required")
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO `+checkpointTable+` (key, start_at, value, updated_at)
		SELECT $1::text, $2::text, NULL, now()
		WHERE NOT EXISTS (SELECT 1 FROM `+checkpointTable+` WHERE key = $1)
	`, key, formatBlock(start))
	if err != nil {
		return false, fmt.Errorf("seed checkpoint %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Lock is a session-level advisory lock pinned to its own connection.
type Lock struct {
	conn *pgxpool.Conn
	key  string
}

// AcquireLock takes the advisory lock for key without waiting.
func (s *Store) AcquireLock(ctx context.Context, key string) (*Lock, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return &Lock{conn: conn, key: key}, nil
}

// Release unlocks and returns the connection to the pool.
func (l *Lock) Release(ctx context.Context) error {
	defer l.conn.Release()
	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
