package model

import "time"

// Exchange is one recorded LLM call.
type Exchange struct {
	Stage      string    `json:"stage" yaml:"stage"`
	Model      string    `json:"model" yaml:"model"`
	At         time.Time `json:"at" yaml:"at"`
	SourceText string    `json:"source_text,omitempty" yaml:"source_text,omitempty"`
	System     string    `json:"system" yaml:"system"`
	Prompt     string    `json:"prompt" yaml:"prompt"`
	Response   string    `json:"response" yaml:"response"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// TokenUsage tracks token consumption for a call or run.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost += other.Cost
}

// Run is the audit record of one row (or ad-hoc text) analysis.
type Run struct {
	ID        string     `json:"id"`
	RowID     int        `json:"row_id"`
	URL       string     `json:"url,omitempty"`
	Outcome   Outcome    `json:"outcome"`
	Error     string     `json:"error,omitempty"`
	Notes     []string   `json:"notes,omitempty"`
	Record    Record     `json:"record"`
	Exchanges []Exchange `json:"exchanges,omitempty"`
	Usage     TokenUsage `json:"usage"`
	CostUSD   float64    `json:"cost_usd"`
	CreatedAt time.Time  `json:"created_at"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	RowID   int
	Outcome Outcome
	Limit   int
	Offset  int
}
