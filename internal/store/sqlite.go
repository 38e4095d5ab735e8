package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/posting-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Page cache times are unix seconds so expiry compares numerically.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	row_id         INTEGER NOT NULL DEFAULT 0,
	url            TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	notes          TEXT,
	record         TEXT,
	exchanges      TEXT,
	usage          TEXT,
	cost_usd       REAL NOT NULL DEFAULT 0,
	schema_version INTEGER NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS page_cache (
	url        TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_row_id ON runs(row_id);
CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_page_cache_expires_at ON page_cache(expires_at);
`

// Migrate creates the tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a run. A missing ID or timestamp is filled in.
func (s *SQLiteStore) Save(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	blobs, err := marshalRun(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, row_id, url, outcome, error, notes, record, exchanges, usage, cost_usd, schema_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RowID, run.URL, string(run.Outcome), run.Error,
		string(blobs.notes), string(blobs.record), string(blobs.exchanges), string(blobs.usage),
		run.CostUSD, model.SchemaVersion, run.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

const sqliteRunColumns = `id, row_id, url, outcome, error, notes, record, exchanges, usage, cost_usd, created_at`

// GetRun returns one run with its transcript.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	return r, err
}

// ListRuns returns runs newest first. Transcripts are omitted.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.RowID > 0 {
		query += ` AND row_id = ?`
		args = append(args, filter.RowID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		r.Exchanges = nil
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// CountByOutcome tallies stored runs per outcome.
func (s *SQLiteStore) CountByOutcome(ctx context.Context) (map[model.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM runs GROUP BY outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count runs")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		out[model.Outcome(outcome)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count runs iterate")
}

// GetPage returns the cached page for url, or nil, nil when absent or
// expired.
func (s *SQLiteStore) GetPage(ctx context.Context, url string) (*model.CachedPage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, content, source, fetched_at, expires_at FROM page_cache WHERE url = ? AND expires_at > ?`,
		url, s.now().Unix(),
	)

	var p model.CachedPage
	var fetched, expires int64
	err := row.Scan(&p.URL, &p.Text, &p.Source, &fetched, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached page")
	}
	p.FetchedAt = time.Unix(fetched, 0).UTC()
	p.ExpiresAt = time.Unix(expires, 0).UTC()
	return &p, nil
}

// PutPage stores or refreshes a cached page.
func (s *SQLiteStore) PutPage(ctx context.Context, page model.CachedPage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_cache (url, content, source, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET content = excluded.content, source = excluded.source,
		 fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		page.URL, page.Text, page.Source, page.FetchedAt.Unix(), page.ExpiresAt.Unix(),
	)
	return eris.Wrap(err, "sqlite: put cached page")
}

// DeleteExpiredPages removes expired cache entries.
func (s *SQLiteStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pages")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type runBlobs struct {
	notes, record, exchanges, usage []byte
}

func marshalRun(run *model.Run) (runBlobs, error) {
	var b runBlobs
	var err error
	if b.notes, err = json.Marshal(run.Notes); err != nil {
		return b, err
	}
	if b.record, err = json.Marshal(run.Record); err != nil {
		return b, err
	}
	if b.exchanges, err = json.Marshal(run.Exchanges); err != nil {
		return b, err
	}
	b.usage, err = json.Marshal(run.Usage)
	return b, err
}

func unmarshalRun(r *model.Run, b runBlobs) error {
	for _, part := range []struct {
		data []byte
		dst  any
	}{
		{b.notes, &r.Notes},
		{b.record, &r.Record},
		{b.exchanges, &r.Exchanges},
		{b.usage, &r.Usage},
	} {
		if len(part.data) == 0 || string(part.data) == "null" {
			continue
		}
		if err := json.Unmarshal(part.data, part.dst); err != nil {
			return err
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var outcome string
	var notes, record, exchanges, usage sql.NullString

	err := row.Scan(&r.ID, &r.RowID, &r.URL, &outcome, &r.Error,
		&notes, &record, &exchanges, &usage, &r.CostUSD, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Outcome = model.Outcome(outcome)

	if err := unmarshalRun(&r, runBlobs{
		notes:     []byte(notes.String),
		record:    []byte(record.String),
		exchanges: []byte(exchanges.String),
		usage:     []byte(usage.String),
	}); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &r, nil
}
