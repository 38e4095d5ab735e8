package pipeline

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/posting-cli/internal/contact"
	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/model"
)

// --- Completer Mock ---

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	args := m.Called(ctx, prompt, system)
	return args.String(0), args.Error(1)
}

func (m *mockCompleter) ResetContext(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCompleter) Model() string { return "gpt-4o" }

// stage matches a context labeled for the given stage number.
func stage(n int) any {
	want := "stage" + strconv.Itoa(n)
	return mock.MatchedBy(func(ctx context.Context) bool { return llm.LabelFrom(ctx) == want })
}

func newCompleter() *mockCompleter {
	c := &mockCompleter{}
	c.On("ResetContext", mock.Anything).Return(nil)
	return c
}

func (m *mockCompleter) answer(n int, fields map[string]string) *mock.Call {
	data, _ := json.Marshal(fields)
	return m.On("Complete", stage(n), mock.Anything, mock.Anything).Return("```json\n"+string(data)+"\n```", nil)
}

// --- Verifier Mock ---

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, rec model.Record, source string) contact.Report {
	return m.Called(ctx, rec, source).Get(0).(contact.Report)
}

// --- Sink Mock ---

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Save(ctx context.Context, run *model.Run) error {
	return m.Called(ctx, run).Error(0)
}

// --- Searcher and Fetcher Mocks ---

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Name() string { return "mock" }

func (m *mockSearcher) Search(ctx context.Context, q string, limit int) ([]model.SearchResult, error) {
	args := m.Called(ctx, q, limit)
	res, _ := args.Get(0).([]model.SearchResult)
	return res, args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, u string) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

// --- Fixtures ---

func basicFields() map[string]string {
	return map[string]string{
		"Deadline":      "2024-04-30",
		"Number_Places": "1",
		"Direction":     "Glacier dynamics and sea level change",
		"University_EN": "University of Cambridge",
		"Contact_Name":  "Dr. Sarah Johnson",
		"Contact_Email": "sj123@cam.ac.uk",
	}
}

func classifyFields(areas ...string) map[string]string {
	out := map[string]string{}
	for _, f := range model.FieldsFor(model.StageClassify) {
		out[string(f)] = ""
	}
	out["Doctoral Student"] = "1"
	for _, a := range areas {
		out[a] = "1"
	}
	return out
}

func localizeFields() map[string]string {
	return map[string]string{
		"University_CN": "剑桥大学",
		"Country_CN":    "英国",
		"WX_Label1":     "冰川学",
		"WX_Label2":     "海平面",
		"WX_Label3":     "",
		"WX_Label4":     "",
		"WX_Label5":     "",
	}
}
