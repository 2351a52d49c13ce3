package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelPricing holds the credit cost per 1K tokens for a model.
type ModelPricing struct {
	PromptPer1K     int64 `yaml:"prompt_per_1k"`
	CompletionPer1K int64 `yaml:"completion_per_1k"`
}

// PricingConfig maps provider -> model -> pricing. A "default" model entry
// applies to any model of the provider without its own row.
type PricingConfig map[string]map[string]ModelPricing

// Catalog describes the models available in a deployment and their
// credit pricing.
type Catalog struct {
	Providers map[string][]string `yaml:"providers"`
	Pricing   PricingConfig       `yaml:"pricing"`
}

// LoadCatalog reads a catalog definition from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// DefaultCatalog returns the compiled-in model catalog and pricing table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Providers: map[string][]string{
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-5.2-instant", "gpt-5.2-thinking", "gpt-5.2-pro"},
			"google":    {"gemini-2.0-pro", "gemini-2.0-flash"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
			"mock":      {"mock-1"},
		},
		Pricing: PricingConfig{
			"anthropic": {
				"claude-sonnet-4-20250514": {PromptPer1K: 3, CompletionPer1K: 15},
				"claude-opus-4-20250514":   {PromptPer1K: 15, CompletionPer1K: 75},
				"default":                  {PromptPer1K: 3, CompletionPer1K: 15},
			},
			"openai": {
				"gpt-5.2-instant":  {PromptPer1K: 1, CompletionPer1K: 4},
				"gpt-5.2-thinking": {PromptPer1K: 5, CompletionPer1K: 20},
				"gpt-5.2-pro":      {PromptPer1K: 15, CompletionPer1K: 60},
				"default":          {PromptPer1K: 5, CompletionPer1K: 20},
			},
			"google": {
				"default": {PromptPer1K: 2, CompletionPer1K: 8},
			},
			"deepseek": {
				"default": {PromptPer1K: 1, CompletionPer1K: 2},
			},
			"mock": {
				"default": {PromptPer1K: 1, CompletionPer1K: 1},
			},
		},
	}
}

// Validate checks the catalog for structural errors.
func (c *Catalog) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("catalog must define at least one provider")
	}
	for provider, models := range c.Providers {
		if len(models) == 0 {
			return fmt.Errorf("provider %s has no models", provider)
		}
	}
	return nil
}

// Models returns the full ordered model list, stable per deployment.
func (c *Catalog) Models() []string {
	providers := make([]string, 0, len(c.Providers))
	for provider := range c.Providers {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	var models []string
	for _, provider := range providers {
		models = append(models, c.Providers[provider]...)
	}
	return models
}

// HasModel reports whether the provider serves the given model.
func (c *Catalog) HasModel(provider, model string) bool {
	for _, m := range c.Providers[provider] {
		if m == model {
			return true
		}
	}
	return false
}

// ProviderFor returns the provider serving the given model.
func (c *Catalog) ProviderFor(model string) (string, bool) {
	for provider, models := range c.Providers {
		for _, m := range models {
			if m == model {
				return provider, true
			}
		}
	}
	return "", false
}

// PricingFor resolves the pricing entry for a provider/model pair,
// falling back to the provider's default row.
func (c *Catalog) PricingFor(provider, model string) (ModelPricing, bool) {
	if c.Pricing == nil {
		return ModelPricing{}, false
	}
	providerPricing, ok := c.Pricing[provider]
	if !ok {
		return ModelPricing{}, false
	}
	if entry, ok := providerPricing[model]; ok {
		return entry, true
	}
	if entry, ok := providerPricing["default"]; ok {
		return entry, true
	}
	return ModelPricing{}, false
}
