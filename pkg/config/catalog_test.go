package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog := DefaultCatalog()
	if err := catalog.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if len(catalog.Models()) == 0 {
		t.Fatalf("default catalog has no models")
	}
}

func TestCatalogModelsStableOrder(t *testing.T) {
	catalog := DefaultCatalog()
	first := catalog.Models()
	second := catalog.Models()
	if len(first) != len(second) {
		t.Fatalf("model list length changed between calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("model ordering is not stable at index %d: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestCatalogProviderFor(t *testing.T) {
	catalog := DefaultCatalog()

	provider, ok := catalog.ProviderFor("deepseek-chat")
	if !ok || provider != "deepseek" {
		t.Fatalf("expected deepseek, got %q (ok=%v)", provider, ok)
	}
	if _, ok := catalog.ProviderFor("no-such-model"); ok {
		t.Fatalf("unknown model must not resolve")
	}
}

func TestCatalogHasModel(t *testing.T) {
	catalog := DefaultCatalog()
	if !catalog.HasModel("mock", "mock-1") {
		t.Fatalf("expected mock-1 under mock")
	}
	if catalog.HasModel("mock", "gpt-5.2-pro") {
		t.Fatalf("models must not leak across providers")
	}
}

func TestPricingForFallsBackToDefault(t *testing.T) {
	catalog := DefaultCatalog()

	exact, ok := catalog.PricingFor("anthropic", "claude-opus-4-20250514")
	if !ok || exact.PromptPer1K != 15 || exact.CompletionPer1K != 75 {
		t.Fatalf("unexpected exact pricing: %+v (ok=%v)", exact, ok)
	}

	fallback, ok := catalog.PricingFor("google", "gemini-2.0-flash")
	if !ok || fallback.PromptPer1K != 2 || fallback.CompletionPer1K != 8 {
		t.Fatalf("unexpected default pricing: %+v (ok=%v)", fallback, ok)
	}

	if _, ok := catalog.PricingFor("unknown", "whatever"); ok {
		t.Fatalf("unknown provider must not price")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`providers:
  mock:
    - mock-1
pricing:
  mock:
    default:
      prompt_per_1k: 2
      completion_per_1k: 3
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	pricing, ok := catalog.PricingFor("mock", "mock-1")
	if !ok || pricing.PromptPer1K != 2 || pricing.CompletionPer1K != 3 {
		t.Fatalf("unexpected pricing: %+v (ok=%v)", pricing, ok)
	}
}

func TestLoadCatalogRejectsEmptyProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  mock: []\n"), 0600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("provider without models must be rejected")
	}
}
