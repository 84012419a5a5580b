// Package postgres persists acquisition outcomes in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
)

const defaultTable = "cnr_acquisitions"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for acquisition rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore upserts one row per job.
type RecordStore struct {
	pool  execCloser
	table string
}

var _ cnr.RecordStore = (*RecordStore)(nil)

// NewRecordStore connects to Postgres using cfg.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	job_id      TEXT PRIMARY KEY,
	cnr         TEXT NOT NULL,
	cutoff      TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	error_text  TEXT NOT NULL DEFAULT '',
	documents   INTEGER NOT NULL DEFAULT 0,
	gaps        INTEGER NOT NULL DEFAULT 0,
	record      JSONB,
	duration_ms BIGINT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// SaveRecord inserts or replaces the row for entry.JobID.
func (s *RecordStore) SaveRecord(ctx context.Context, entry cnr.RecordEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if entry.JobID == "" {
		return fmt.Errorf("job id is required")
	}

	var (
		recordJSON []byte
		documents  int
		gaps       int
	)
	if entry.Record != nil {
		var err error
		recordJSON, err = json.Marshal(entry.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		documents = len(entry.Record.Documents)
		gaps = entry.Record.DocumentGaps
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	cnr,
	cutoff,
	outcome,
	error_text,
	documents,
	gaps,
	record,
	duration_ms,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (job_id) DO UPDATE SET
	outcome = EXCLUDED.outcome,
	error_text = EXCLUDED.error_text,
	documents = EXCLUDED.documents,
	gaps = EXCLUDED.gaps,
	record = EXCLUDED.record,
	duration_ms = EXCLUDED.duration_ms,
	finished_at = EXCLUDED.finished_at`, s.table)

	args := []any{
		entry.JobID,
		entry.Reference.String(),
		entry.Cutoff,
		string(entry.Outcome),
		entry.ErrText,
		documents,
		gaps,
		recordJSON,
		entry.Duration.Milliseconds(),
		entry.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert acquisition: %w", err)
	}
	return nil
}
