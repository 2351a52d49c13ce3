package usage

import (
	"github.com/zen-systems/chatmeter/pkg/config"
)

// Pricer converts token counts to credit costs using the catalog's
// pricing table. The pre-call estimate gates cheap rejection; the
// post-call actual cost is what billing charges.
type Pricer struct {
	catalog *config.Catalog
}

// NewPricer creates a pricer over the given catalog.
func NewPricer(catalog *config.Catalog) *Pricer {
	return &Pricer{catalog: catalog}
}

// EstimateCost projects the credit cost of a call before it is made,
// assuming the full completion budget is consumed. Used only for the
// advisory credit check.
func (p *Pricer) EstimateCost(provider, model string, promptTokens, maxTokens int) int64 {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return p.price(provider, model, promptTokens, maxTokens)
}

// ActualCost computes the authoritative billing amount from the token
// counts the provider reported.
func (p *Pricer) ActualCost(provider, model string, tokensIn, tokensOut int) int64 {
	return p.price(provider, model, tokensIn, tokensOut)
}

// EstimateTokens approximates the prompt token count of a text, used when
// no tokenizer is available for the target model.
func EstimateTokens(text string) int {
	// Rough 4-chars-per-token heuristic.
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (p *Pricer) price(provider, model string, tokensIn, tokensOut int) int64 {
	pricing, ok := p.catalog.PricingFor(provider, model)
	if !ok {
		// Unpriced models bill at one credit per call.
		return 1
	}

	promptCost := (int64(tokensIn) * pricing.PromptPer1K) / 1000
	completionCost := (int64(tokensOut) * pricing.CompletionPer1K) / 1000
	cost := promptCost + completionCost
	if cost < 1 {
		cost = 1
	}
	return cost
}
