package contact

import (
	"regexp"
	"strings"

	"github.com/sells-group/posting-cli/internal/model"
)

// titlePatterns are matched case-insensitively against the source text
// with %s replaced by the quoted clean name.
var titlePatterns = []string{
	`\bDr\.?\s+%s`,
	`\bProf\.?\s+%s`,
	`\bProfessor\s+%s`,
	`\bAssistant\s+Professor\s+%s`,
	`\bAssociate\s+Professor\s+%s`,
	`\bDoctor\s+%s`,
	`%s\s*,?\s*Ph\.?D`,
	`%s\s*,?\s*PhD`,
	`%s\s*,?\s*Professor`,
}

// Decide reports whether the extracted contact needs web verification.
// A "Dr. " name with an email is taken as resolved; a title next to the
// name in the source settles the prefix, leaving only a missing email to
// look up.
func Decide(name, email, source string) model.VerificationDecision {
	name = strings.TrimSpace(name)
	if !hasValue(name) {
		return model.VerificationDecision{ShouldVerify: false, Reason: model.ReasonNoContact}
	}
	withEmail := hasValue(email)

	if strings.HasPrefix(name, "Dr. ") {
		if withEmail {
			return model.VerificationDecision{ShouldVerify: false, Reason: model.ReasonAlreadyResolved}
		}
		return model.VerificationDecision{ShouldVerify: true, Reason: model.ReasonNeedEmailOnly}
	}

	if titleInSource(CleanName(name), source) {
		if withEmail {
			return model.VerificationDecision{ShouldVerify: false, Reason: model.ReasonTitleEvident}
		}
		return model.VerificationDecision{ShouldVerify: true, Reason: model.ReasonNeedEmailOnly}
	}
	return model.VerificationDecision{ShouldVerify: true, Reason: model.ReasonBothUncertain}
}

func titleInSource(clean, source string) bool {
	if clean == "" || source == "" {
		return false
	}
	quoted := regexp.QuoteMeta(clean)
	for _, p := range titlePatterns {
		re, err := regexp.Compile("(?i)" + strings.ReplaceAll(p, "%s", quoted))
		if err != nil {
			continue
		}
		if re.MatchString(source) {
			return true
		}
	}
	return false
}
