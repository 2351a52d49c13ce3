package adapter

import (
	"context"
	"fmt"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string

	// TokensIn and TokensOut are reported on every result.
	TokensIn  int
	TokensOut int

	// Err, when set, fails every Send call.
	Err error

	// Calls counts the number of Send invocations.
	Calls int
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		TokensIn:        10,
		TokensOut:       20,
	}
}

// NewMockAdapterWithResponses creates a mock adapter with responses keyed
// by the last message's content.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	m := NewMockAdapter()
	m.responses = responses
	if defaultResponse != "" {
		m.defaultResponse = defaultResponse
	}
	return m
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Send returns a deterministic reply for the last message in the history.
func (a *MockAdapter) Send(_ context.Context, model string, messages []schema.ChatMessage, _ Params) (*Result, error) {
	a.Calls++
	if a.Err != nil {
		return nil, a.Err
	}
	if model == "" {
		model = "mock-1"
	}

	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}

	content, ok := a.responses[last]
	if !ok {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, last)
	}

	return &Result{
		Content:   content,
		TokensIn:  a.TokensIn,
		TokensOut: a.TokensOut,
		Model:     model,
	}, nil
}
