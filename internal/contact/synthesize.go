package contact

import (
	"fmt"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

// Synthesize combines per-page verdicts into one title and email.
// A majority of doctorate verdicts gives "Dr."; otherwise the gender vote,
// then the first-name table, then page pronouns pick "Mr." or "Ms.".
func Synthesize(analyses []model.PageAnalysis, name string) model.VerificationResult {
	if len(analyses) == 0 {
		return model.VerificationResult{TitlePrefix: model.TitleUnknown, Notes: "no pages analyzed"}
	}

	var doctorates int
	var email string
	for _, a := range analyses {
		if a.HasDoctorate {
			doctorates++
		}
		if email == "" && strings.TrimSpace(a.Email) != "" {
			email = strings.TrimSpace(a.Email)
		}
	}

	prefix := model.TitleDr
	if doctorates*2 <= len(analyses) {
		gender := voteGender(analyses)
		if gender == GenderUnknown {
			gender = FirstNameGender(name)
		}
		if gender == GenderUnknown {
			gender = PronounGender(analyses)
		}
		prefix = prefixFor(gender)
	}

	notes := fmt.Sprintf("analyzed %d page(s); %d confirmed doctorate; ", len(analyses), doctorates)
	if email != "" {
		notes += "email found: " + email
	} else {
		notes += "no email found"
	}
	return model.VerificationResult{TitlePrefix: prefix, Email: email, Notes: notes}
}

// voteGender returns the most common known gender; ties go to the one
// seen first.
func voteGender(analyses []model.PageAnalysis) string {
	counts := make(map[string]int)
	var order []string
	for _, a := range analyses {
		g := strings.ToLower(strings.TrimSpace(a.Gender))
		if g == "" || g == GenderUnknown {
			continue
		}
		if counts[g] == 0 {
			order = append(order, g)
		}
		counts[g]++
	}
	best := GenderUnknown
	var top int
	for _, g := range order {
		if counts[g] > top {
			best, top = g, counts[g]
		}
	}
	return best
}
