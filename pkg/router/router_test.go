package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zen-systems/chatmeter/pkg/adapter"
	"github.com/zen-systems/chatmeter/pkg/config"
	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// slowAdapter blocks until its context is done.
type slowAdapter struct{}

func (a *slowAdapter) Name() string     { return "slow" }
func (a *slowAdapter) Models() []string { return []string{"slow-1"} }

func (a *slowAdapter) Send(ctx context.Context, model string, messages []schema.ChatMessage, params adapter.Params) (*adapter.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testCatalog() *config.Catalog {
	return &config.Catalog{
		Providers: map[string][]string{
			"mock": {"mock-1"},
			"slow": {"slow-1"},
		},
	}
}

func newTestRouter(opts ...Option) *Router {
	adapters := map[string]adapter.Adapter{
		"mock": adapter.NewMockAdapter(),
		"slow": &slowAdapter{},
	}
	return New(adapters, testCatalog(), opts...)
}

func TestChatReturnsAdapterResponse(t *testing.T) {
	rt := newTestRouter()

	resp, err := rt.Chat(context.Background(), Request{
		Provider: "mock",
		Model:    "mock-1",
		Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Provider != "mock" || resp.Model != "mock-1" {
		t.Fatalf("unexpected provider/model: %s/%s", resp.Provider, resp.Model)
	}
	if resp.Content == "" {
		t.Fatalf("expected content")
	}
	if resp.TokensIn != 10 || resp.TokensOut != 20 {
		t.Fatalf("unexpected token counts: %d/%d", resp.TokensIn, resp.TokensOut)
	}
}

func TestChatUnknownProvider(t *testing.T) {
	rt := newTestRouter()

	_, err := rt.Chat(context.Background(), Request{
		Provider: "nope",
		Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
	})
	if !fault.IsCode(err, fault.CodeProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
}

func TestChatRequiresMessages(t *testing.T) {
	rt := newTestRouter()

	_, err := rt.Chat(context.Background(), Request{Provider: "mock", Model: "mock-1"})
	if !fault.IsCode(err, fault.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChatAdapterFailureIsProviderError(t *testing.T) {
	failing := adapter.NewMockAdapter()
	failing.Err = errors.New("upstream 500")
	rt := New(map[string]adapter.Adapter{"mock": failing}, testCatalog())

	_, err := rt.Chat(context.Background(), Request{
		Provider: "mock",
		Model:    "mock-1",
		Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
	})
	if !fault.IsCode(err, fault.CodeProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestChatTransientFailureIsProviderError(t *testing.T) {
	overloaded := adapter.NewMockAdapter()
	overloaded.Err = &adapter.AdapterError{Status: 503, Err: errors.New("overloaded")}
	rt := New(map[string]adapter.Adapter{"mock": overloaded}, testCatalog())

	_, err := rt.Chat(context.Background(), Request{
		Provider: "mock",
		Model:    "mock-1",
		Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
	})
	// Unavailable is reserved for "no adapter registered"; adapter
	// failures stay provider errors, flagged transient for callers.
	if !fault.IsCode(err, fault.CodeProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected fault error, got %T", err)
	}
	if fe.Metadata["transient"] != "true" {
		t.Fatalf("expected transient metadata, got %v", fe.Metadata)
	}
}

func TestChatTimeout(t *testing.T) {
	rt := newTestRouter(WithTimeout(50 * time.Millisecond))

	start := time.Now()
	_, err := rt.Chat(context.Background(), Request{
		Provider: "slow",
		Model:    "slow-1",
		Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
	})
	if !fault.IsCode(err, fault.CodeProviderTimeout) {
		t.Fatalf("expected timeout fault, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout did not bound the call: %s", elapsed)
	}
}

func TestResolveModelFillsModelFromCatalog(t *testing.T) {
	rt := newTestRouter()

	provider, model, err := rt.ResolveModel("mock", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if provider != "mock" || model != "mock-1" {
		t.Fatalf("unexpected resolution: %s/%s", provider, model)
	}
}

func TestResolveModelFillsProviderFromModel(t *testing.T) {
	rt := newTestRouter()

	provider, model, err := rt.ResolveModel("", "slow-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if provider != "slow" || model != "slow-1" {
		t.Fatalf("unexpected resolution: %s/%s", provider, model)
	}
}

func TestResolveModelRejectsMismatch(t *testing.T) {
	rt := newTestRouter()

	_, _, err := rt.ResolveModel("mock", "slow-1")
	if !fault.IsCode(err, fault.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveModelRequiresSomething(t *testing.T) {
	rt := newTestRouter()

	_, _, err := rt.ResolveModel("", "")
	if !fault.IsCode(err, fault.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAvailableModels(t *testing.T) {
	rt := newTestRouter()

	models := rt.AvailableModels()
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
}

func TestRateLimitStillWithinDeadline(t *testing.T) {
	rt := newTestRouter(WithRateLimit(100, 1), WithTimeout(2*time.Second))

	for i := 0; i < 3; i++ {
		_, err := rt.Chat(context.Background(), Request{
			Provider: "mock",
			Model:    "mock-1",
			Messages: []schema.ChatMessage{{Role: schema.RoleUser, Content: "hello"}},
		})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}
