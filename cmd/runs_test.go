package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/sheet"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			RowID:     12,
			Outcome:   model.OutcomeSuccess,
			CostUSD:   0.0123,
			CreatedAt: now,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			RowID:     13,
			Outcome:   model.OutcomePartial,
			Error:     "stage 2 failed: no research area flagged (0 matched), at least 1 required",
			CreatedAt: now.Add(-time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "OUTCOME")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "success")
	assert.Contains(t, output, "partial")
	assert.Contains(t, output, "$0.0123")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "stage 2 failed")
}

func TestRenderOutcomeCounts(t *testing.T) {
	out := renderOutcomeCounts(map[model.Outcome]int{
		model.OutcomeSuccess: 7,
		model.OutcomeFailure: 2,
	})
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "failure")
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "9")
}

func TestTruncateCell(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncateCell("short", 10))
	assert.Equal(t, "abcdefg...", truncateCell("abcdefghijklmnop", 10))
	assert.Equal(t, "剑桥大学剑桥大...", truncateCell("剑桥大学剑桥大学剑桥大学", 10))
}

func TestRenderSheetStats(t *testing.T) {
	out := renderSheetStats("text_info.xlsx", sheet.Stats{Total: 4, Filled: 1, Errors: 1, Pending: 2, CompletionRate: 25})
	assert.Contains(t, out, "text_info.xlsx")
	assert.Contains(t, out, "Pending")
	assert.Contains(t, out, "25.0%")
}

func TestRenderRunSummary(t *testing.T) {
	out := renderRunSummary(
		runStats{Processed: 2, Succeeded: 1, Failed: 1},
		sheet.Stats{Filled: 3, Pending: 2, CompletionRate: 60},
		sheet.Stats{Filled: 4, Errors: 1, CompletionRate: 80},
	)
	assert.Contains(t, out, "SHEET BEFORE")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "60.0%")
	assert.Contains(t, out, "80.0%")
}

func TestRenderTable_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, renderTable(nil, nil, nil))
}
