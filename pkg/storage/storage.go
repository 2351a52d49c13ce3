// Package storage defines the persistence interface consumed by the
// chatmeter services. Implementations must provide at least read-committed
// isolation and a uniqueness constraint on usage event idempotency keys.
package storage

import (
	"context"

	"github.com/zen-systems/chatmeter/pkg/schema"
)

// Store is the transactional persistence surface. Operations that must be
// atomic (credit mutation, billed usage) are exposed as whole methods so no
// transaction handle leaks to callers.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, user schema.User) error
	GetUser(ctx context.Context, userID string) (schema.User, error)

	// Credit ledger primitives. DeductCredits and AddCredits each run as
	// one atomic read-modify-write; DeductCredits re-reads the balance
	// inside the transaction and fails without mutation when it cannot
	// cover the amount. GrantInitialCredits applies only while the
	// balance is exactly zero and reports whether it granted.
	DeductCredits(ctx context.Context, userID string, amount int64, referenceID string) (int64, error)
	AddCredits(ctx context.Context, userID string, amount int64) (int64, error)
	GrantInitialCredits(ctx context.Context, userID string, amount int64) (int64, bool, error)

	// BillUsage deducts event.CostCredits and inserts the usage event in
	// a single transaction. Either both happen or neither does.
	BillUsage(ctx context.Context, event schema.UsageEvent) (schema.UsageEvent, int64, error)

	// Conversations and messages. ListMessages returns creation order.
	CreateConversation(ctx context.Context, conversation schema.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (schema.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]schema.Conversation, error)
	UpdateConversation(ctx context.Context, conversation schema.Conversation) error
	CreateMessage(ctx context.Context, message schema.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]schema.Message, error)

	// Usage events.
	GetUsageEventByKey(ctx context.Context, idempotencyKey string) (schema.UsageEvent, error)
	InsertUsageEvent(ctx context.Context, event schema.UsageEvent) (schema.UsageEvent, error)
	ListUsageEvents(ctx context.Context, userID string, limit int) ([]schema.UsageEvent, error)

	// Agents.
	PutAgent(ctx context.Context, agent schema.Agent) error
	GetAgent(ctx context.Context, agentID string) (schema.Agent, error)
	GetAgentByName(ctx context.Context, name string) (schema.Agent, error)
	ListAgents(ctx context.Context) ([]schema.Agent, error)
	IncrementAgentUsage(ctx context.Context, agentID string) (int64, error)

	// Memory entries, read at agent execution start.
	PutMemory(ctx context.Context, entry schema.MemoryEntry) error
	ListMemory(ctx context.Context, userID string) ([]schema.MemoryEntry, error)

	Close() error
}
