package scrape

import (
	"regexp"
	"strings"
)

var (
	typographic = strings.NewReplacer(
		"\ufeff", "",
		"\u00a0", " ",
		"\u2013", "-",
		"\u2014", "--",
		"\u201c", `"`,
		"\u201d", `"`,
		"\u2018", "'",
		"\u2019", "'",
		"\u2026", "...",
	)
	reSpaces     = regexp.MustCompile(`[ \t\f\v]+`)
	reBlankLines = regexp.MustCompile(`\n\s*\n+`)
	reHyphenWrap = regexp.MustCompile(`([a-z])-\s*\n\s*([a-z])`)
)

// normalizeText folds typographic characters to ASCII, collapses runs of
// spaces and blank lines, and rejoins words hyphenated across lines.
func normalizeText(text string) string {
	text = typographic.Replace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reHyphenWrap.ReplaceAllString(text, "$1$2")
	text = reSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
