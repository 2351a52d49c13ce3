// Package schema defines the domain types shared across chatmeter services.
package schema

import (
	"fmt"
	"strings"
	"time"
)

// Plan determines the bootstrap credit grant for a user.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanBusiness   Plan = "BUSINESS"
	PlanEnterprise Plan = "ENTERPRISE"
)

// BootstrapCredits returns the one-time grant for a fresh account on this plan.
func (p Plan) BootstrapCredits() int64 {
	switch p {
	case PlanPro:
		return 5000
	case PlanBusiness:
		return 20000
	case PlanEnterprise:
		return 100000
	default:
		return 1000
	}
}

// ParsePlan normalizes a plan name, defaulting to FREE.
func ParsePlan(value string) (Plan, error) {
	switch Plan(strings.ToUpper(strings.TrimSpace(value))) {
	case PlanPro:
		return PlanPro, nil
	case PlanBusiness:
		return PlanBusiness, nil
	case PlanEnterprise:
		return PlanEnterprise, nil
	case PlanFree, "":
		return PlanFree, nil
	default:
		return PlanFree, fmt.Errorf("unknown plan %q", value)
	}
}

// User is an account with a spendable credit balance. Credits are mutated
// only through the credit ledger and are never negative after a commit.
type User struct {
	ID        string
	Email     string
	Plan      Plan
	Credits   int64
	CreatedAt time.Time
}

// Conversation groups messages for one user.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Starred   bool
	Archived  bool
	Category  string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation. Token counts are set when the
// role is assistant.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	TokensIn       int
	TokensOut      int
	CreatedAt      time.Time
}

// ChatMessage is the provider-facing shape of a message.
type ChatMessage struct {
	Role    Role
	Content string
}

// UsageEvent is the immutable ledger row for one billed provider call.
// Uniqueness on IdempotencyKey is the sole duplicate-suppression mechanism.
type UsageEvent struct {
	ID             string
	UserID         string
	ConversationID string
	MessageID      string
	IdempotencyKey string
	Provider       string
	Model          string
	TokensIn       int
	TokensOut      int
	CostCredits    int64
	CreatedAt      time.Time
}

// MemoryEntry is a per-user fact available as agent execution context.
type MemoryEntry struct {
	UserID    string
	Key       string
	Value     string
	UpdatedAt time.Time
}
