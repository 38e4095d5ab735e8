package contact

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/posting-cli/internal/model"
)

// Gender labels used by page analysis and synthesis.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderUnknown = "unknown"
)

var maleNames = setOf(
	"john", "michael", "david", "james", "robert", "william", "richard",
	"thomas", "christopher", "daniel", "matthew", "anthony", "mark",
	"donald", "steven", "paul", "andrew", "joshua", "kenneth", "kevin",
	"brian", "george", "edward", "ronald", "timothy", "jason", "jeffrey",
	"ryan", "jacob", "gary", "nicholas", "eric", "jonathan", "stephen",
)

var femaleNames = setOf(
	"mary", "patricia", "jennifer", "linda", "elizabeth", "barbara",
	"susan", "jessica", "sarah", "karen", "nancy", "lisa", "betty",
	"helen", "sandra", "donna", "carol", "ruth", "sharon", "michelle",
	"laura", "kimberly", "deborah", "dorothy",
)

var (
	malePronouns   = []string{" he ", " his ", " him "}
	femalePronouns = []string{" she ", " her "}
)

var foldCase = cases.Fold()

// foldName lowercases s and strips diacritics so "José" matches "jose".
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return foldCase.String(out)
}

// FirstNameGender guesses gender from the first given name of the cleaned
// contact name, or returns GenderUnknown.
func FirstNameGender(name string) string {
	fields := strings.Fields(CleanName(name))
	if len(fields) == 0 {
		return GenderUnknown
	}
	first := foldName(strings.Trim(fields[0], ".-"))
	switch {
	case maleNames[first]:
		return GenderMale
	case femaleNames[first]:
		return GenderFemale
	}
	return GenderUnknown
}

// PronounGender scans analyzed page content in order and returns the
// gender of the first pronoun class found on a page.
func PronounGender(analyses []model.PageAnalysis) string {
	for _, a := range analyses {
		content := " " + strings.ToLower(a.Content) + " "
		if containsAny(content, malePronouns) {
			return GenderMale
		}
		if containsAny(content, femalePronouns) {
			return GenderFemale
		}
	}
	return GenderUnknown
}

func prefixFor(gender string) string {
	switch gender {
	case GenderMale:
		return model.TitleMr
	case GenderFemale:
		return model.TitleMs
	}
	return model.TitleUnknown
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
