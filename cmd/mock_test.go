package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/pipeline"
	"github.com/sells-group/posting-cli/internal/sheet"
)

// --- RowStore Mock ---

type mockRows struct {
	mock.Mock
}

func (m *mockRows) UnprocessedRows() []int {
	return m.Called().Get(0).([]int)
}

func (m *mockRows) Row(id int) (model.Row, bool) {
	args := m.Called(id)
	return args.Get(0).(model.Row), args.Bool(1)
}

func (m *mockRows) ExtractURL(row model.Row) (string, bool) {
	args := m.Called(row)
	return args.String(0), args.Bool(1)
}

func (m *mockRows) WriteResult(id int, rec model.Record, errMsg, verifier string) error {
	return m.Called(id, rec, errMsg, verifier).Error(0)
}

func (m *mockRows) WriteError(id int, msg string) error {
	return m.Called(id, msg).Error(0)
}

func (m *mockRows) Save() error {
	return m.Called().Error(0)
}

func (m *mockRows) Stats() sheet.Stats {
	return m.Called().Get(0).(sheet.Stats)
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *mockFetcher) Cleanup() error {
	return m.Called().Error(0)
}

// --- Analyzer Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Process(ctx context.Context, in pipeline.Input) pipeline.Result {
	return m.Called(ctx, in).Get(0).(pipeline.Result)
}

func urlRow(id int, url string) model.Row {
	return model.Row{ID: id, Cells: map[string]string{model.ColumnNotes: url}}
}
