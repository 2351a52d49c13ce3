// Package router maps (provider, model) pairs to concrete adapters and
// executes chat calls with a bounded timeout.
package router

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/zen-systems/chatmeter/pkg/adapter"
	"github.com/zen-systems/chatmeter/pkg/config"
	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// Request describes one chat call.
type Request struct {
	Provider    string
	Model       string
	Messages    []schema.ChatMessage
	Temperature *float64
	MaxTokens   int
}

// Response is the normalized provider reply.
type Response struct {
	Content   string
	TokensIn  int
	TokensOut int
	Model     string
	Provider  string
	Raw       any
}

// Router selects an adapter by provider name and runs one bounded attempt.
// Retry policy belongs to callers; the router's contract is one attempt,
// bounded time, typed failure.
type Router struct {
	adapters map[string]adapter.Adapter
	catalog  *config.Catalog
	timeout  time.Duration
	limiters map[string]*rate.Limiter
}

// Option configures a Router.
type Option func(*Router)

// WithTimeout sets the hard per-call deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithRateLimit installs a per-provider request limiter. A saturated
// limiter counts against the call deadline.
func WithRateLimit(rps float64, burst int) Option {
	return func(r *Router) {
		if rps <= 0 || burst <= 0 {
			return
		}
		for name := range r.adapters {
			r.limiters[name] = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

const defaultTimeout = 60 * time.Second

// New creates a router over the given adapters and catalog.
func New(adapters map[string]adapter.Adapter, catalog *config.Catalog, opts ...Option) *Router {
	r := &Router{
		adapters: adapters,
		catalog:  catalog,
		timeout:  defaultTimeout,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetAdapter returns an adapter by provider name.
func (r *Router) GetAdapter(name string) (adapter.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// AvailableModels returns the deployment's model list in catalog order.
// Callers use it to validate requested models before dispatch.
func (r *Router) AvailableModels() []string {
	if r.catalog == nil {
		return nil
	}
	return r.catalog.Models()
}

// ResolveModel fills in a provider or model when only one side is given.
// An empty model resolves to the first catalog model for the provider; an
// empty provider resolves from the catalog by model.
func (r *Router) ResolveModel(provider, model string) (string, string, error) {
	if provider == "" && model != "" && r.catalog != nil {
		if p, ok := r.catalog.ProviderFor(model); ok {
			provider = p
		}
	}
	if provider == "" {
		return "", "", fault.New(fault.CodeValidation, "provider or model is required")
	}
	if model == "" {
		if r.catalog != nil {
			if models := r.catalog.Providers[provider]; len(models) > 0 {
				model = models[0]
			}
		}
		if model == "" {
			if a, ok := r.adapters[provider]; ok {
				if models := a.Models(); len(models) > 0 {
					model = models[0]
				}
			}
		}
	}
	if model == "" {
		return "", "", fault.Newf(fault.CodeValidation, "no model available for provider %s", provider)
	}
	if r.catalog != nil && !r.catalog.HasModel(provider, model) {
		return "", "", fault.Newf(fault.CodeValidation, "model %s is not served by provider %s", model, provider)
	}
	return provider, model, nil
}

// Chat executes one provider call with the router's hard timeout.
func (r *Router) Chat(ctx context.Context, req Request) (*Response, error) {
	a, ok := r.adapters[req.Provider]
	if !ok {
		return nil, fault.Newf(fault.CodeProviderUnavailable, "no adapter registered for provider %q", req.Provider)
	}
	if len(req.Messages) == 0 {
		return nil, fault.New(fault.CodeValidation, "at least one message is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limiter, ok := r.limiters[req.Provider]; ok {
		if err := limiter.Wait(callCtx); err != nil {
			return nil, fault.Wrap(fault.CodeProviderTimeout, "provider "+req.Provider+" rate limit wait exceeded deadline", err)
		}
	}

	result, err := a.Send(callCtx, req.Model, req.Messages, adapter.Params{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, fault.Wrap(fault.CodeProviderTimeout, "provider "+req.Provider+" call timed out", err)
		}
		ferr := fault.Wrap(fault.CodeProviderError, "provider "+req.Provider+" call failed", err)
		if adapter.IsTransient(err) {
			// Retry policy belongs to callers; the code stays the same, the
			// metadata tells them whether a retry is worth attempting.
			ferr.Metadata = map[string]string{"transient": "true"}
		}
		return nil, ferr
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:   result.Content,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		Model:     model,
		Provider:  req.Provider,
		Raw:       result.Raw,
	}, nil
}
