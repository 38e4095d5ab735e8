package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/posting-cli/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_run":          `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`,
	"get_page":         `SELECT url, content, source, fetched_at, expires_at FROM page_cache WHERE url = $1 AND expires_at > now()`,
	"delete_pages":     `DELETE FROM page_cache WHERE expires_at <= now()`,
	"count_by_outcome": `SELECT outcome, count(*) FROM runs GROUP BY outcome`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	row_id         INTEGER NOT NULL DEFAULT 0,
	url            TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	notes          JSONB,
	record         JSONB,
	exchanges      JSONB,
	usage          JSONB,
	cost_usd       DOUBLE PRECISION NOT NULL DEFAULT 0,
	schema_version INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS page_cache (
	url        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_row_id ON runs(row_id);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
`

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Save upserts a run. A missing ID or timestamp is filled in.
func (s *PostgresStore) Save(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.clock().UTC()
	}
	blobs, err := marshalRun(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, row_id, url, outcome, error, notes, record, exchanges, usage, cost_usd, schema_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome, error = EXCLUDED.error,
		 notes = EXCLUDED.notes, record = EXCLUDED.record, exchanges = EXCLUDED.exchanges,
		 usage = EXCLUDED.usage, cost_usd = EXCLUDED.cost_usd`,
		run.ID, run.RowID, run.URL, string(run.Outcome), run.Error,
		blobs.notes, blobs.record, blobs.exchanges, blobs.usage,
		run.CostUSD, model.SchemaVersion, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

const pgRunColumns = `id, row_id, url, outcome, error, notes, record, exchanges, usage, cost_usd, created_at`

// GetRun returns one run with its transcript.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanPGRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

// ListRuns returns runs newest first. Transcripts are omitted.
func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.RowID > 0 {
		query += fmt.Sprintf(` AND row_id = $%d`, argIdx)
		args = append(args, filter.RowID)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Exchanges = nil
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// GetPage returns the cached page for url, or nil, nil when absent or
// expired.
func (s *PostgresStore) GetPage(ctx context.Context, url string) (*model.CachedPage, error) {
	var p model.CachedPage
	err := s.pool.QueryRow(ctx,
		`SELECT url, content, source, fetched_at, expires_at FROM page_cache WHERE url = $1 AND expires_at > now()`,
		url,
	).Scan(&p.URL, &p.Text, &p.Source, &p.FetchedAt, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached page")
	}
	return &p, nil
}

// PutPage stores or refreshes a cached page.
func (s *PostgresStore) PutPage(ctx context.Context, page model.CachedPage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO page_cache (url, content, source, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET content = EXCLUDED.content, source = EXCLUDED.source,
		 fetched_at = EXCLUDED.fetched_at, expires_at = EXCLUDED.expires_at`,
		page.URL, page.Text, page.Source, page.FetchedAt, page.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: put cached page")
}

// DeleteExpiredPages removes expired cache entries.
func (s *PostgresStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM page_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired pages")
	}
	return int(tag.RowsAffected()), nil
}

// CountByOutcome tallies stored runs per outcome.
func (s *PostgresStore) CountByOutcome(ctx context.Context) (map[model.Outcome]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT outcome, count(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count runs")
	}
	defer rows.Close()

	out := make(map[model.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		out[model.Outcome(outcome)] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: count runs iterate")
}

func (s *PostgresStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var outcome string
	var notes, record, exchanges, usage []byte

	if err := row.Scan(&r.ID, &r.RowID, &r.URL, &outcome, &r.Error,
		&notes, &record, &exchanges, &usage, &r.CostUSD, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Outcome = model.Outcome(outcome)
	if err := unmarshalRun(&r, runBlobs{notes: notes, record: record, exchanges: exchanges, usage: usage}); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	return &r, nil
}
