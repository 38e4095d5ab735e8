package scrape

import (
	"regexp"
	"strings"
	"unicode"
)

// Reasons reported by UsableText.
const (
	ReasonEmpty       = "empty"
	ReasonTooShort    = "too short"
	ReasonRawPDF      = "raw pdf data"
	ReasonCorrupted   = "corrupted text"
	ReasonFewWords    = "too few words"
	ReasonLowAlpha    = "low letter ratio"
	ReasonUnavailable = "unavailable content"
)

const (
	minTextChars     = 50
	minTextWords     = 5
	minAlphaRatio    = 0.2
	maxControlRatio  = 0.1
	maxSingleLetter  = 0.4
	shortPageChars   = 1000
	errorPageChars   = 200
	minPDFMarkers    = 3
	specialSeqPerLen = 200
)

var pdfMarkers = []string{
	"endobj", "endstream", "/Type", "/Catalog", "/Pages",
	"/MediaBox", "/Contents", "startxref", "%%EOF", "trailer",
}

// Phrases served in place of content by document viewers, download walls
// and access-controlled pages.
var unavailablePhrases = []string{
	"暂不支持您的浏览器",
	"推荐您下载",
	"无法下载",
	"无法打印",
	"不支持下载",
	"不支持打印",
	"体验更流畅",
	"立即下载",
	"download not supported",
	"print not supported",
	"browser not supported",
	"unsupported browser",
	"please download",
	"recommended download",
	"access denied",
	"access restricted",
	"content unavailable",
}

var errorPageKeywords = []string{"error", "404", "403", "500", "not found", "forbidden"}

var reSpecialSeq = regexp.MustCompile(`[^\p{L}\p{N}_\s]{4,}`)

// UsableText reports whether text looks like real posting content rather
// than an error page, a viewer shell or undecoded PDF bytes. When it is
// not usable, reason says why.
func UsableText(text string) (ok bool, reason string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false, ReasonEmpty
	}
	runes := []rune(trimmed)
	if len(runes) < minTextChars {
		return false, ReasonTooShort
	}
	if isRawPDF(trimmed, runes) {
		return false, ReasonRawPDF
	}
	if isCorrupted(trimmed, runes) {
		return false, ReasonCorrupted
	}
	if countWords(trimmed) < minTextWords {
		return false, ReasonFewWords
	}

	var alpha, visible int
	for _, r := range runes {
		if r == ' ' || r == '\n' {
			continue
		}
		visible++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if visible == 0 || float64(alpha)/float64(visible) < minAlphaRatio {
		return false, ReasonLowAlpha
	}

	if len(runes) < shortPageChars && isUnavailable(trimmed, len(runes)) {
		return false, ReasonUnavailable
	}
	return true, ""
}

func isRawPDF(text string, runes []rune) bool {
	if strings.HasPrefix(text, "%PDF-") {
		return true
	}
	var markers int
	for _, m := range pdfMarkers {
		if strings.Contains(text, m) {
			markers++
		}
	}
	if markers >= minPDFMarkers {
		return true
	}
	var control int
	for _, r := range runes {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	return float64(control)/float64(len(runes)) > maxControlRatio
}

func isCorrupted(text string, runes []rune) bool {
	counts := make(map[rune]int)
	var alpha, top int
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			continue
		}
		alpha++
		counts[r]++
		if counts[r] > top {
			top = counts[r]
		}
	}
	if alpha > 0 && float64(top)/float64(alpha) > maxSingleLetter {
		return true
	}

	var words, letters int
	for _, w := range strings.Fields(text) {
		if !allLetters(w) {
			continue
		}
		words++
		letters += len([]rune(w))
	}
	if words > 10 {
		avg := float64(letters) / float64(words)
		if avg < 1 || avg > 25 {
			return true
		}
	}

	seqs := len(reSpecialSeq.FindAllStringIndex(text, -1))
	return float64(seqs) > float64(len(runes))/specialSeqPerLen
}

// countWords counts whitespace-separated words, treating each Han
// character as a word since CJK text has no spaces.
func countWords(text string) int {
	n := len(strings.Fields(text))
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			n++
		}
	}
	return n
}

func isUnavailable(text string, n int) bool {
	lower := strings.ToLower(text)
	for _, p := range unavailablePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	if n < errorPageChars {
		for _, k := range errorPageKeywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
	}
	return false
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
