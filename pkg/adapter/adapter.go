// Package adapter provides uniform access to remote LLM provider APIs.
package adapter

import (
	"context"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

// Params carries per-call generation settings.
type Params struct {
	Temperature *float64
	MaxTokens   int
}

// Result is the normalized outcome of one provider call.
type Result struct {
	Content   string
	TokensIn  int
	TokensOut int
	Model     string
	Raw       any
}

// Adapter defines the interface for LLM provider adapters.
// One implementation exists per vendor, registered by provider name.
type Adapter interface {
	// Send delivers a message history to the model and returns the reply.
	Send(ctx context.Context, model string, messages []schema.ChatMessage, params Params) (*Result, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

const defaultMaxTokens = 4096

func maxTokensOrDefault(params Params) int {
	if params.MaxTokens > 0 {
		return params.MaxTokens
	}
	return defaultMaxTokens
}
