package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posting-cli/internal/audit"
	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/scrape"
)

var (
	_ Store            = (*SQLiteStore)(nil)
	_ Store            = (*PostgresStore)(nil)
	_ audit.Sink       = (*SQLiteStore)(nil)
	_ scrape.PageCache = (*SQLiteStore)(nil)
	_ scrape.PageCache = (*PostgresStore)(nil)
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRun(id string, row int, outcome model.Outcome, at time.Time) *model.Run {
	return &model.Run{
		ID:      id,
		RowID:   row,
		URL:     "https://jobs.example.edu/" + id,
		Outcome: outcome,
		Notes:   []string{"contact verification: synthesized (no contact name)"},
		Record: model.Record{
			model.FieldContactName: "Dr. Sarah Johnson",
			model.FieldDeadline:    "2024-04-30",
		},
		Exchanges: []model.Exchange{
			{Stage: "stage1", Model: "gpt-4o", SourceText: "PhD position", Prompt: "p", Response: "{}"},
		},
		Usage:     model.TokenUsage{InputTokens: 1200, OutputTokens: 300, Cost: 0.006},
		CostUSD:   0.006,
		CreatedAt: at,
	}
}

// --- Runs ---

func TestSQLite_SaveAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	run := sampleRun("run-1", 7, model.OutcomePartial, at)
	run.Error = "stage 2 failed: invalid JSON in LLM response"
	require.NoError(t, st.Save(ctx, run))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.RowID)
	assert.Equal(t, model.OutcomePartial, got.Outcome)
	assert.Equal(t, run.Error, got.Error)
	assert.Equal(t, run.Notes, got.Notes)
	assert.Equal(t, "Dr. Sarah Johnson", got.Record.Get(model.FieldContactName))
	require.Len(t, got.Exchanges, 1)
	assert.Equal(t, "PhD position", got.Exchanges[0].SourceText)
	assert.Equal(t, 1200, got.Usage.InputTokens)
	assert.InDelta(t, 0.006, got.CostUSD, 1e-9)
	assert.True(t, at.Equal(got.CreatedAt))
}

func TestSQLite_SaveFillsIDAndTime(t *testing.T) {
	st := newTestSQLiteStore(t)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	run := &model.Run{RowID: 3, Outcome: model.OutcomeFailure}
	require.NoError(t, st.Save(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.True(t, fixed.Equal(run.CreatedAt))

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailure, got.Outcome)
	assert.Empty(t, got.Notes)
}

func TestSQLite_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, st.Save(ctx, sampleRun("run-1", 1, model.OutcomeFailure, at)))
	require.NoError(t, st.Save(ctx, sampleRun("run-1", 1, model.OutcomeSuccess, at)))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, got.Outcome)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.Save(ctx, sampleRun("a", 1, model.OutcomeSuccess, base)))
	require.NoError(t, st.Save(ctx, sampleRun("b", 2, model.OutcomeFailure, base.Add(time.Hour))))
	require.NoError(t, st.Save(ctx, sampleRun("c", 1, model.OutcomePartial, base.Add(2*time.Hour))))

	tests := []struct {
		name   string
		filter model.RunFilter
		want   []string
	}{
		{"all newest first", model.RunFilter{}, []string{"c", "b", "a"}},
		{"by row", model.RunFilter{RowID: 1}, []string{"c", "a"}},
		{"by outcome", model.RunFilter{Outcome: model.OutcomeFailure}, []string{"b"}},
		{"limit", model.RunFilter{Limit: 2}, []string{"c", "b"}},
		{"offset", model.RunFilter{Limit: 2, Offset: 2}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := st.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, len(runs))
			for i, r := range runs {
				ids[i] = r.ID
				assert.Nil(t, r.Exchanges)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLite_CountByOutcome(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Save(ctx, sampleRun("a", 1, model.OutcomeSuccess, now)))
	require.NoError(t, st.Save(ctx, sampleRun("b", 2, model.OutcomeSuccess, now)))
	require.NoError(t, st.Save(ctx, sampleRun("c", 3, model.OutcomeFailure, now)))

	counts, err := st.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[model.Outcome]int{model.OutcomeSuccess: 2, model.OutcomeFailure: 1}, counts)
}

// --- Page Cache ---

func TestSQLite_PageCache_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, st.PutPage(ctx, model.CachedPage{
		URL:       "https://example.edu/phd",
		Text:      "PhD position in glaciology",
		Source:    "local",
		FetchedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))

	page, err := st.GetPage(ctx, "https://example.edu/phd")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "PhD position in glaciology", page.Text)
	assert.Equal(t, "local", page.Source)
	assert.True(t, now.Equal(page.FetchedAt))
}

func TestSQLite_PageCache_Miss(t *testing.T) {
	st := newTestSQLiteStore(t)

	page, err := st.GetPage(context.Background(), "https://example.edu/none")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestSQLite_PageCache_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	page := model.CachedPage{URL: "https://example.edu/a", Text: "old", FetchedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, st.PutPage(ctx, page))
	page.Text = "new"
	page.Source = "jina"
	require.NoError(t, st.PutPage(ctx, page))

	got, err := st.GetPage(ctx, page.URL)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Text)
	assert.Equal(t, "jina", got.Source)
}

func TestSQLite_PageCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.PutPage(ctx, model.CachedPage{
		URL: "https://example.edu/old", Text: "stale", FetchedAt: now, ExpiresAt: now.Add(time.Minute),
	}))
	require.NoError(t, st.PutPage(ctx, model.CachedPage{
		URL: "https://example.edu/fresh", Text: "fresh", FetchedAt: now, ExpiresAt: now.Add(2 * time.Hour),
	}))

	st.now = func() time.Time { return now.Add(time.Hour) }

	page, err := st.GetPage(ctx, "https://example.edu/old")
	require.NoError(t, err)
	assert.Nil(t, page)

	n, err := st.DeleteExpiredPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	page, err = st.GetPage(ctx, "https://example.edu/fresh")
	require.NoError(t, err)
	assert.NotNil(t, page)
}

// --- Open ---

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	runs, err := s.ListRuns(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
