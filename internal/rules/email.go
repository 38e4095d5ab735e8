package rules

import (
	"regexp"
	"strings"
)

var (
	reAt         = regexp.MustCompile(`(?i)\[at\]|\(at\)|\s+at\s+`)
	reDot        = regexp.MustCompile(`(?i)\[dot\]|\(dot\)|\s+dot\s+`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reHeadcount  = regexp.MustCompile(`\d+`)
)

// NormalizeEmail rewrites obfuscated addresses ("name [at] uni [dot] edu")
// into plain form. Values that still do not look like an address after
// rewriting are returned unchanged, as are the "-", "" and "N/A"
// placeholders. Addresses are lowercased.
func NormalizeEmail(email string) string {
	switch email {
	case "", "-", "N/A":
		return email
	}

	out := strings.ToLower(strings.TrimSpace(email))
	out = reAt.ReplaceAllString(out, "@")
	out = reDot.ReplaceAllString(out, ".")
	out = reWhitespace.ReplaceAllString(out, "")

	at := strings.LastIndex(out, "@")
	if at < 0 || strings.Count(out, "@") != 1 || !strings.Contains(out[at+1:], ".") {
		return email
	}
	return out
}

// ExtractHeadcount returns the first run of digits in s, or "".
func ExtractHeadcount(s string) string {
	return reHeadcount.FindString(s)
}
