// Package cost prices LLM and Jina usage for the run audit.
package cost

import "github.com/sells-group/posting-cli/internal/model"

// Rates holds pricing configuration.
type Rates struct {
	// Models maps a model ID to its token pricing. Local models are absent
	// and price at zero.
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Jina   JinaRate             `yaml:"jina" mapstructure:"jina"`
}

// ModelRate is per-million-token pricing.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// JinaRate is Jina reader/search pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. A nil Models map is replaced by the
// defaults.
func NewCalculator(rates Rates) *Calculator {
	if rates.Models == nil {
		rates.Models = DefaultRates().Models
	}
	return &Calculator{rates: rates}
}

// LLM prices a completion. Unknown models cost 0.
func (c *Calculator) LLM(modelID string, input, output int) float64 {
	rate, ok := c.rates.Models[modelID]
	if !ok {
		return 0
	}
	return float64(input)/1e6*rate.Input + float64(output)/1e6*rate.Output
}

// Usage returns u with Cost filled in for modelID.
func (c *Calculator) Usage(modelID string, u model.TokenUsage) model.TokenUsage {
	u.Cost = c.LLM(modelID, u.InputTokens, u.OutputTokens)
	return u
}

// Jina prices reader or search tokens.
func (c *Calculator) Jina(tokens int) float64 {
	return float64(tokens) / 1e6 * c.rates.Jina.PerMTok
}

// DefaultRates returns list prices for the hosted models the CLI supports.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"gpt-5-chat-latest":          {Input: 1.25, Output: 10.00},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Jina: JinaRate{PerMTok: 0.02},
	}
}
