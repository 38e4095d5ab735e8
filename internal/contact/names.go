package contact

import (
	"regexp"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

var namePrefixes = []string{
	"Dr.", "Prof.", "Professor", "Assistant Professor", "Associate Professor",
	"Mr.", "Ms.", "Miss", "Mrs.", "Doctor",
}

var nameSuffixes = []string{", Ph.D.", ", PhD", ", Ph.D", ", Professor", ", Prof.", ", Dr."}

var (
	reNickname   = regexp.MustCompile(`\s*"[^"]*"\s*`)
	reDegreeWord = regexp.MustCompile(`(?i)\b(Ph\.?D\.?|PhD|Doctor|Professor|Prof\.?)\b`)
	reParens     = regexp.MustCompile(`\([^)]*\)`)
	reBrackets   = regexp.MustCompile(`\[[^\]]*\]`)
	reNamePunct  = regexp.MustCompile(`[,;]`)
	reNameChars  = regexp.MustCompile(`[^A-Za-z\s.\-]`)
)

// CleanName strips one leading honorific, trailing degree suffixes and
// quoted nicknames, then collapses whitespace.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, p := range namePrefixes {
		if strings.HasPrefix(name, p+" ") {
			name = strings.TrimSpace(name[len(p):])
			break
		}
	}
	for _, s := range nameSuffixes {
		if strings.HasSuffix(name, s) {
			name = strings.TrimSpace(strings.TrimSuffix(name, s))
		}
	}
	name = reNickname.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(name), " ")
}

// FormatName renders name with the verified prefix. Residual degree
// words, bracketed text and anything outside letters, spaces, dots and
// hyphens are removed. "Mr./Ms." and "" yield the bare name.
func FormatName(name, prefix string) string {
	clean := CleanName(name)
	if clean == "" {
		return ""
	}
	clean = reDegreeWord.ReplaceAllString(clean, "")
	clean = reParens.ReplaceAllString(clean, "")
	clean = reBrackets.ReplaceAllString(clean, "")
	clean = reNamePunct.ReplaceAllString(clean, "")
	clean = strings.Join(strings.Fields(clean), " ")
	clean = reNameChars.ReplaceAllString(clean, "")
	clean = strings.Join(strings.Fields(clean), " ")
	if clean == "" {
		return ""
	}

	switch prefix {
	case model.TitleDr, model.TitleMr, model.TitleMs:
		return prefix + " " + clean
	}
	return clean
}

// hasValue reports whether a contact field holds a real value.
func hasValue(v string) bool {
	return !model.IsPlaceholder(v)
}
