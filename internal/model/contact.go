package model

// Verification decision reasons.
const (
	ReasonNoContact       = "no contact"
	ReasonAlreadyResolved = "already resolved"
	ReasonNeedEmailOnly   = "need email only"
	ReasonTitleEvident    = "title evident in source"
	ReasonBothUncertain   = "title and email both uncertain"
)

// Title prefixes produced by contact verification.
const (
	TitleDr      = "Dr."
	TitleMr      = "Mr."
	TitleMs      = "Ms."
	TitleUnknown = "Mr./Ms."
)

// VerificationDecision says whether a contact needs web verification.
type VerificationDecision struct {
	ShouldVerify bool   `json:"should_verify"`
	Reason       string `json:"reason"`
}

// VerificationResult is the synthesized outcome across analyzed pages.
type VerificationResult struct {
	TitlePrefix string `json:"title_prefix"`
	Email       string `json:"email"`
	Notes       string `json:"notes"`
}

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// PageAnalysis is the model's verdict for one candidate page.
type PageAnalysis struct {
	URL          string  `json:"url"`
	HasDoctorate bool    `json:"has_doctorate"`
	TitlePrefix  string  `json:"title_prefix"`
	Email        string  `json:"email_address"`
	Gender       string  `json:"gender"`
	Confidence   float64 `json:"confidence"`
	Evidence     string  `json:"evidence"`
	Content      string  `json:"-"`
}
