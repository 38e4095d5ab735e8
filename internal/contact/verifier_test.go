package contact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/posting-cli/internal/model"
)

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

func (m *mockCompleter) Model() string { return "mock-model" }

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

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}

func promptHas(s string) any {
	return mock.MatchedBy(func(p string) bool { return strings.Contains(p, s) })
}

var candidates = []model.SearchResult{
	{Title: "Jane Doe - Google Scholar", URL: "https://scholar.google.com/citations?user=jd"},
	{Title: "Jane Doe | Geography", URL: "https://geog.uni.edu/people/doe", Snippet: "Professor of GIS"},
	{Title: "Jane Doe - ResearchGate", URL: "https://www.researchgate.net/profile/Jane-Doe"},
	{Title: "News", URL: "https://news.example.com/2023"},
	{Title: "Another", URL: "https://blog.example.com/jd"},
}

func contactRecord(name, email string) model.Record {
	return model.Record{
		model.FieldUniversityEN: "State University",
		model.FieldContactName:  name,
		model.FieldContactEmail: email,
		model.FieldDeadline:     "2024-05-01",
		model.FieldNumberPlaces: "1",
		model.FieldDirection:    "GIS",
	}
}

func newTestVerifier(c *mockCompleter, s *mockSearcher, f *mockFetcher) *Verifier {
	return NewVerifier(c, s, f, DefaultOptions(), nil)
}

func TestVerify_Disabled(t *testing.T) {
	t.Parallel()
	v := NewVerifier(&mockCompleter{}, &mockSearcher{}, &mockFetcher{}, Options{Enabled: false}, nil)
	r := v.Verify(context.Background(), contactRecord("Jane Doe", ""), "")
	assert.Equal(t, StateSkip, r.State)
	assert.Nil(t, r.Patch)
	assert.False(t, v.Enabled())
}

func TestVerify_DrWithEmailUntouched(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	v := newTestVerifier(&mockCompleter{}, s, &mockFetcher{})
	rec := contactRecord("Dr. Jane Doe", "jane@uni.edu")
	before := rec.Clone()

	r := v.Verify(context.Background(), rec, "posting text")
	assert.Equal(t, StateNotNeeded, r.State)
	assert.Equal(t, model.ReasonAlreadyResolved, r.Decision.Reason)
	assert.Empty(t, r.Patch)
	assert.Equal(t, before, rec)
	s.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_FullFlow(t *testing.T) {
	t.Parallel()
	c := &mockCompleter{}
	s := &mockSearcher{}
	f := &mockFetcher{}

	s.On("Search", mock.Anything, `"State University" "Jane Doe"`, 0).Return(candidates, nil)
	c.On("Complete", mock.Anything, promptHas("select the web pages"), systemPrompt).
		Return(`{"selected_urls": ["https://geog.uni.edu/people/doe", "https://made.up/url", "https://www.researchgate.net/profile/Jane-Doe"], "reasoning": "staff page first"}`, nil)

	f.On("Fetch", mock.Anything, "https://geog.uni.edu/people/doe").Return("Jane Doe is Associate Professor. Contact: jdoe [at] uni [dot] edu", nil)
	f.On("Fetch", mock.Anything, "https://www.researchgate.net/profile/Jane-Doe").Return("", errors.New("blocked"))
	c.On("Complete", mock.Anything, promptHas("Associate Professor"), systemPrompt).
		Return("```json\n{\"has_doctorate\": \"yes\", \"title_prefix\": \"Dr.\", \"email_address\": \"jdoe [at] uni [dot] edu\", \"gender\": \"Female\", \"confidence\": \"high\", \"evidence\": \"Associate Professor\"}\n```", nil)

	r := newTestVerifier(c, s, f).Verify(context.Background(), contactRecord("Jane Doe", "-"), "Contact Jane Doe.")
	require.Equal(t, StateSynthesized, r.State, r.Err)
	require.Len(t, r.Pages, 1)
	assert.True(t, r.Pages[0].HasDoctorate)
	assert.Equal(t, "female", r.Pages[0].Gender)
	assert.InDelta(t, 0.9, r.Pages[0].Confidence, 0.001)
	assert.Equal(t, model.TitleDr, r.Result.TitlePrefix)
	assert.Equal(t, model.Record{
		model.FieldContactName:  "Dr. Jane Doe",
		model.FieldContactEmail: "jdoe@uni.edu",
	}, r.Patch)
	f.AssertNotCalled(t, "Fetch", mock.Anything, "https://made.up/url")
}

func TestVerify_KeepsExistingEmail(t *testing.T) {
	t.Parallel()
	c := &mockCompleter{}
	s := &mockSearcher{}
	f := &mockFetcher{}
	s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(candidates[:1], nil)
	f.On("Fetch", mock.Anything, mock.Anything).Return("Mark Lee, lecturer. He teaches GIS.", nil)
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"has_doctorate": false, "email_address": "mark@other.edu", "gender": "unknown"}`, nil)

	r := newTestVerifier(c, s, f).Verify(context.Background(), contactRecord("Mark Lee", "lee@uni.edu"), "")
	require.Equal(t, StateSynthesized, r.State)
	assert.Equal(t, model.TitleMr, r.Result.TitlePrefix)
	assert.Equal(t, model.Record{model.FieldContactName: "Mr. Mark Lee"}, r.Patch)
}

func TestVerify_NoResults(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	r := newTestVerifier(&mockCompleter{}, s, &mockFetcher{}).Verify(context.Background(), contactRecord("Prof. Jane Doe", ""), "")
	assert.Equal(t, StateNoResults, r.State)
	assert.Nil(t, r.Patch)
}

func TestVerify_SearchFailure(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("all engines failed"))
	r := newTestVerifier(&mockCompleter{}, s, &mockFetcher{}).Verify(context.Background(), contactRecord("Jane Doe", ""), "")
	assert.Equal(t, StateFailed, r.State)
	assert.Contains(t, r.Err, "all engines failed")
	assert.Nil(t, r.Patch)
}

func TestVerify_PanicIsContained(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	f := &mockFetcher{}
	s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(candidates[:1], nil)
	f.On("Fetch", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("driver crashed") })

	var r Report
	require.NotPanics(t, func() {
		r = newTestVerifier(&mockCompleter{}, s, f).Verify(context.Background(), contactRecord("Jane Doe", ""), "")
	})
	assert.Equal(t, StateFailed, r.State)
	assert.Contains(t, r.Err, "driver crashed")
	assert.Nil(t, r.Patch)
}

func TestVerify_MissingInstitution(t *testing.T) {
	t.Parallel()
	rec := contactRecord("Jane Doe", "")
	rec[model.FieldUniversityEN] = ""
	r := newTestVerifier(&mockCompleter{}, &mockSearcher{}, &mockFetcher{}).Verify(context.Background(), rec, "")
	assert.Equal(t, StateNoResults, r.State)
}

func TestSearch_RanksAndCaps(t *testing.T) {
	t.Parallel()
	s := &mockSearcher{}
	dupes := append(append([]model.SearchResult{}, candidates...), candidates[1])
	s.On("Search", mock.Anything, mock.Anything, 0).Return(dupes, nil).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
	})

	v := NewVerifier(&mockCompleter{}, s, &mockFetcher{}, Options{Enabled: true, MaxResults: 3, SearchTimeout: time.Second}, nil)
	res, err := v.Search(context.Background(), "State University", "Prof. Jane Doe")
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "https://scholar.google.com/citations?user=jd", res[0].URL)
	assert.Equal(t, "https://www.researchgate.net/profile/Jane-Doe", res[1].URL)
	assert.Equal(t, "https://geog.uni.edu/people/doe", res[2].URL)
}

func TestSelectPages(t *testing.T) {
	t.Parallel()

	t.Run("few results skip the llm", func(t *testing.T) {
		t.Parallel()
		c := &mockCompleter{}
		got := newTestVerifier(c, &mockSearcher{}, &mockFetcher{}).SelectPages(context.Background(), candidates[:3], "Jane Doe")
		assert.Len(t, got, 3)
		c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("llm error falls back to ranking", func(t *testing.T) {
		t.Parallel()
		c := &mockCompleter{}
		c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("timeout"))
		got := newTestVerifier(c, &mockSearcher{}, &mockFetcher{}).SelectPages(context.Background(), candidates, "Jane Doe")
		assert.Equal(t, []string{
			"https://scholar.google.com/citations?user=jd",
			"https://www.researchgate.net/profile/Jane-Doe",
			"https://geog.uni.edu/people/doe",
		}, got)
	})

	t.Run("unknown urls only falls back", func(t *testing.T) {
		t.Parallel()
		c := &mockCompleter{}
		c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(`{"selected_urls": ["https://nowhere.example"]}`, nil)
		got := newTestVerifier(c, &mockSearcher{}, &mockFetcher{}).SelectPages(context.Background(), candidates, "Jane Doe")
		assert.Len(t, got, 3)
		assert.NotContains(t, got, "https://nowhere.example")
	})

	t.Run("capped at max pages", func(t *testing.T) {
		t.Parallel()
		c := &mockCompleter{}
		c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Return(`{"selected_urls": ["https://blog.example.com/jd", "https://news.example.com/2023", "https://geog.uni.edu/people/doe"]}`, nil)
		v := NewVerifier(c, &mockSearcher{}, &mockFetcher{}, Options{Enabled: true, MaxPages: 2}, nil)
		got := v.SelectPages(context.Background(), candidates, "Jane Doe")
		assert.Equal(t, []string{"https://blog.example.com/jd", "https://news.example.com/2023"}, got)
	})
}

func TestAnalyzePage_TruncatesAndParses(t *testing.T) {
	t.Parallel()
	c := &mockCompleter{}
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://uni.edu/p").Return(strings.Repeat("x", 100), nil)
	c.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, strings.Repeat("x", 10)) && !strings.Contains(p, strings.Repeat("x", 11))
	}), systemPrompt).Return(`{"has_doctorate": true, "email_address": null, "confidence": 0.75}`, nil)

	v := NewVerifier(c, &mockSearcher{}, f, Options{Enabled: true, PageChars: 10}, nil)
	a, err := v.AnalyzePage(context.Background(), "https://uni.edu/p", "Jane Doe")
	require.NoError(t, err)
	assert.True(t, a.HasDoctorate)
	assert.Empty(t, a.Email)
	assert.Equal(t, GenderUnknown, a.Gender)
	assert.InDelta(t, 0.75, a.Confidence, 0.001)
	assert.Len(t, a.Content, 10)
}

func TestAnalyzePage_ParseFailure(t *testing.T) {
	t.Parallel()
	c := &mockCompleter{}
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, mock.Anything).Return("page", nil)
	c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("I could not find anything.", nil)

	_, err := newTestVerifier(c, &mockSearcher{}, f).AnalyzePage(context.Background(), "https://uni.edu/p", "Jane Doe")
	assert.Error(t, err)
}

func TestClose_Once(t *testing.T) {
	t.Parallel()
	closer := &countingCloser{}
	v := NewVerifier(&mockCompleter{}, &mockSearcher{}, &mockFetcher{}, DefaultOptions(), closer)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, closer.n)

	require.NoError(t, NewVerifier(&mockCompleter{}, &mockSearcher{}, &mockFetcher{}, DefaultOptions(), nil).Close())
}
