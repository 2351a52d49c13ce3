package adapter

import (
	"context"
	"testing"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

func TestMockAdapterKeyedResponses(t *testing.T) {
	m := NewMockAdapterWithResponses(map[string]string{"ping": "pong"}, "fallback")

	result, err := m.Send(context.Background(), "mock-1", []schema.ChatMessage{
		{Role: schema.RoleUser, Content: "ping"},
	}, Params{})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Content != "pong" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if m.Calls != 1 {
		t.Fatalf("expected 1 call, got %d", m.Calls)
	}
}

func TestMockAdapterDefaultEchoesLastMessage(t *testing.T) {
	m := NewMockAdapter()

	result, err := m.Send(context.Background(), "", []schema.ChatMessage{
		{Role: schema.RoleUser, Content: "first"},
		{Role: schema.RoleAssistant, Content: "reply"},
		{Role: schema.RoleUser, Content: "second"},
	}, Params{})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Model != "mock-1" {
		t.Fatalf("expected default model, got %q", result.Model)
	}
	if want := "mock response:\nsecond"; result.Content != want {
		t.Fatalf("unexpected content: %q", result.Content)
	}
}

func TestMaxTokensOrDefault(t *testing.T) {
	if got := maxTokensOrDefault(Params{}); got != defaultMaxTokens {
		t.Fatalf("expected default, got %d", got)
	}
	if got := maxTokensOrDefault(Params{MaxTokens: 256}); got != 256 {
		t.Fatalf("expected 256, got %d", got)
	}
}
