// Package contact decides whether an extracted posting contact needs
// verification and, when it does, searches the web, has the LLM read the
// most promising pages and settles the contact's title and email.
package contact

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/posting-cli/internal/llm"
	"github.com/sells-group/posting-cli/internal/model"
	"github.com/sells-group/posting-cli/internal/rules"
	"github.com/sells-group/posting-cli/internal/scrape"
	"github.com/sells-group/posting-cli/internal/search"
)

const (
	maxSelectCandidates = 10
	fallbackPages       = 3
	contentKeep         = 2000
)

// State is where a verification ended.
type State string

const (
	StateSkip        State = "skip"
	StateNotNeeded   State = "not_needed"
	StateSearching   State = "searching"
	StateAnalyzing   State = "analyzing"
	StateNoResults   State = "no_results"
	StateSynthesized State = "synthesized"
	StateFailed      State = "failed"
)

// Options tune verification.
type Options struct {
	Enabled       bool
	MaxResults    int
	MaxPages      int
	SearchTimeout time.Duration
	PageChars     int
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		Enabled:       true,
		MaxResults:    10,
		MaxPages:      3,
		SearchTimeout: 20 * time.Second,
		PageChars:     5000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxResults <= 0 {
		o.MaxResults = d.MaxResults
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = d.SearchTimeout
	}
	if o.PageChars <= 0 {
		o.PageChars = d.PageChars
	}
	return o
}

// Report describes one verification. Patch holds only the contact fields
// that changed and is nil unless State is StateSynthesized.
type Report struct {
	State    State                      `json:"state"`
	Decision model.VerificationDecision `json:"decision"`
	Query    string                     `json:"query,omitempty"`
	Results  []model.SearchResult       `json:"results,omitempty"`
	Pages    []model.PageAnalysis       `json:"pages,omitempty"`
	Result   model.VerificationResult   `json:"result"`
	Patch    model.Record               `json:"patch,omitempty"`
	Err      string                     `json:"error,omitempty"`
}

// Verifier runs contact verification.
type Verifier struct {
	llm      llm.Completer
	searcher search.Searcher
	fetcher  scrape.Fetcher
	opts     Options
	closer   io.Closer

	closeOnce sync.Once
}

// NewVerifier creates a Verifier. closer (normally the browser pool) is
// released by Close and may be nil.
func NewVerifier(c llm.Completer, s search.Searcher, f scrape.Fetcher, opts Options, closer io.Closer) *Verifier {
	return &Verifier{llm: c, searcher: s, fetcher: f, opts: opts.withDefaults(), closer: closer}
}

// Enabled reports whether Verify does anything.
func (v *Verifier) Enabled() bool { return v.opts.Enabled }

// Close releases the browser resources exactly once.
// Later calls return nil.
func (v *Verifier) Close() error {
	var err error
	v.closeOnce.Do(func() {
		if v.closer != nil {
			err = v.closer.Close()
		}
	})
	return err
}

// Verify checks the record's contact against the web and returns the
// fields to patch. Errors and panics end in StateFailed with no patch;
// they are logged, never returned.
func (v *Verifier) Verify(ctx context.Context, rec model.Record, source string) (report Report) {
	report.State = StateSkip
	if !v.opts.Enabled {
		return report
	}

	name := strings.TrimSpace(rec.Get(model.FieldContactName))
	email := strings.TrimSpace(rec.Get(model.FieldContactEmail))
	log := zap.L().With(zap.String("contact", name))

	report.Decision = Decide(name, email, source)
	if !report.Decision.ShouldVerify {
		report.State = StateNotNeeded
		log.Info("contact: verification not needed", zap.String("reason", report.Decision.Reason))
		return report
	}

	defer func() {
		if r := recover(); r != nil {
			report.State = StateFailed
			report.Patch = nil
			report.Err = fmt.Sprintf("verification panicked: %v", r)
			log.Error("contact: verification panicked", zap.Any("panic", r))
		}
	}()

	report.State = StateSearching
	institution := strings.TrimSpace(rec.Get(model.FieldUniversityEN))
	report.Query = query(institution, name)
	results, err := v.Search(ctx, institution, name)
	if err != nil {
		report.State = StateFailed
		report.Err = err.Error()
		log.Warn("contact: search failed", zap.Error(err))
		return report
	}
	report.Results = results
	if len(results) == 0 {
		report.State = StateNoResults
		log.Info("contact: search found nothing", zap.String("query", report.Query))
		return report
	}

	report.State = StateAnalyzing
	for _, u := range v.SelectPages(ctx, results, name) {
		if ctx.Err() != nil {
			break
		}
		a, err := v.AnalyzePage(ctx, u, name)
		if err != nil {
			log.Warn("contact: page skipped", zap.String("url", u), zap.Error(err))
			continue
		}
		report.Pages = append(report.Pages, a)
	}
	if err := ctx.Err(); err != nil {
		report.State = StateFailed
		report.Err = eris.Wrap(err, "contact: verification interrupted").Error()
		return report
	}

	report.Result = Synthesize(report.Pages, name)
	report.State = StateSynthesized
	report.Patch = patchFor(name, email, report.Result)
	log.Info("contact: verified",
		zap.String("prefix", report.Result.TitlePrefix),
		zap.Bool("email_found", report.Result.Email != ""),
		zap.Int("patched", len(report.Patch)),
	)
	return report
}

// patchFor applies the name and email rules: a "Dr. " name is never
// touched, and an email is only filled in when none was extracted.
func patchFor(name, email string, res model.VerificationResult) model.Record {
	patch := model.Record{}
	if !strings.HasPrefix(name, "Dr. ") {
		if formatted := FormatName(name, res.TitlePrefix); formatted != "" && formatted != name {
			patch[model.FieldContactName] = formatted
		}
	}
	if !hasValue(email) && res.Email != "" {
		patch[model.FieldContactEmail] = res.Email
	}
	return patch
}

func query(institution, name string) string {
	return `"` + institution + `" "` + CleanName(name) + `"`
}

// Search looks up the contact at institution and returns ranked results.
// Each call is bounded by the search timeout.
func (v *Verifier) Search(ctx context.Context, institution, name string) ([]model.SearchResult, error) {
	clean := CleanName(name)
	institution = strings.TrimSpace(institution)
	if institution == "" || clean == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.SearchTimeout)
	defer cancel()

	results, err := v.searcher.Search(ctx, query(institution, name), 0)
	if err != nil {
		return nil, eris.Wrap(err, "contact: search")
	}
	return Rank(search.Dedup(results), v.opts.MaxResults), nil
}

// SelectPages picks up to MaxPages URLs to analyze. With more than three
// candidates the LLM chooses; its picks are restricted to the candidates
// and replaced by the top results when it fails or picks nothing.
func (v *Verifier) SelectPages(ctx context.Context, results []model.SearchResult, name string) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	if len(results) <= fallbackPages {
		return capped(urls, v.opts.MaxPages)
	}

	selected, err := v.llmSelect(ctx, results, name)
	if err != nil {
		zap.L().Warn("contact: page selection fell back to ranking", zap.Error(err))
	}
	var keep []string
	for _, u := range selected {
		if slices.Contains(urls, u) && !slices.Contains(keep, u) {
			keep = append(keep, u)
		}
	}
	if len(keep) == 0 {
		for _, r := range Rank(results, fallbackPages) {
			keep = append(keep, r.URL)
		}
	}
	return capped(keep, v.opts.MaxPages)
}

func (v *Verifier) llmSelect(ctx context.Context, results []model.SearchResult, name string) ([]string, error) {
	resp, err := v.llm.Complete(llm.WithLabel(ctx, "contact_select"), selectPrompt(results, name), systemPrompt)
	if err != nil {
		return nil, eris.Wrap(err, "contact: select pages")
	}
	obj, err := llm.ParseJSON(resp)
	if err != nil {
		return nil, eris.Wrap(err, "contact: parse selection")
	}
	raw, _ := obj["selected_urls"].([]any)
	var out []string
	for _, u := range raw {
		if s, ok := u.(string); ok {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if reason, ok := obj["reasoning"].(string); ok {
		zap.L().Debug("contact: selection reasoning", zap.String("reasoning", reason))
	}
	if len(out) == 0 {
		return nil, eris.New("contact: llm selected no pages")
	}
	return out, nil
}

// AnalyzePage fetches one page and asks the LLM about the contact.
func (v *Verifier) AnalyzePage(ctx context.Context, pageURL, name string) (model.PageAnalysis, error) {
	text, err := v.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return model.PageAnalysis{}, eris.Wrap(err, "contact: fetch page")
	}
	text = truncateRunes(text, v.opts.PageChars)

	resp, err := v.llm.Complete(llm.WithLabel(ctx, "contact_analyze"), analyzePrompt(text, name), systemPrompt)
	if err != nil {
		return model.PageAnalysis{}, eris.Wrap(err, "contact: analyze page")
	}
	obj, err := llm.ParseJSON(resp)
	if err != nil {
		return model.PageAnalysis{}, eris.Wrap(err, "contact: parse analysis")
	}

	a := model.PageAnalysis{
		URL:          pageURL,
		HasDoctorate: truthy(obj["has_doctorate"]),
		TitlePrefix:  strings.TrimSpace(llm.StringValue(obj["title_prefix"])),
		Email:        pageEmail(obj["email_address"]),
		Gender:       strings.ToLower(strings.TrimSpace(llm.StringValue(obj["gender"]))),
		Confidence:   confidence(obj["confidence"]),
		Evidence:     llm.StringValue(obj["evidence"]),
		Content:      truncateRunes(text, contentKeep),
	}
	if a.Gender == "" {
		a.Gender = GenderUnknown
	}
	return a, nil
}

// truthy accepts JSON booleans and the strings "true" and "yes".
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "yes"
	}
	return false
}

// pageEmail keeps only values that normalize to an address.
func pageEmail(v any) string {
	s := strings.TrimSpace(llm.StringValue(v))
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	s = rules.NormalizeEmail(s)
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

func confidence(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "high":
			return 0.9
		case "medium":
			return 0.6
		case "low":
			return 0.3
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func capped(urls []string, n int) []string {
	if n > 0 && len(urls) > n {
		return urls[:n]
	}
	return urls
}
