package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/posting-cli/internal/model"
)

const postingText = "The Department of Geography at the University of Cambridge invites applications " +
	"for a fully funded PhD studentship in remote sensing of glaciers. The successful candidate " +
	"will join the Glacier Dynamics group. Applications close on 30 April 2024. Contact Prof. " +
	"Sarah Johnson for details."

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	page     *model.Page
	err      error
	calls    []string
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, u string) (*model.Page, error) {
	m.calls = append(m.calls, u)
	if m.err != nil {
		return nil, m.err
	}
	p := *m.page
	return &p, nil
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetPage(ctx context.Context, u string) (*model.CachedPage, error) {
	args := m.Called(ctx, u)
	page, _ := args.Get(0).(*model.CachedPage)
	return page, args.Error(1)
}

func (m *mockCache) PutPage(ctx context.Context, page model.CachedPage) error {
	return m.Called(ctx, page).Error(0)
}

type stubExtractor struct {
	text  string
	err   error
	paths []string
}

func (s *stubExtractor) Name() string { return "stub" }
func (s *stubExtractor) ExtractText(_ context.Context, path string) (string, error) {
	s.paths = append(s.paths, path)
	return s.text, s.err
}

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}
