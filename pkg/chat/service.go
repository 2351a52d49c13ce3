// Package chat implements the per-turn orchestration of a chat exchange:
// idempotency, credit gating, conversation persistence, provider dispatch,
// and transactional billing.
package chat

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/chatmeter/pkg/credit"
	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/router"
	"github.com/zen-systems/chatmeter/pkg/schema"
	"github.com/zen-systems/chatmeter/pkg/storage"
	"github.com/zen-systems/chatmeter/pkg/usage"
)

// Request describes one inbound chat turn.
type Request struct {
	Content        string
	ConversationID string
	Provider       string
	Model          string
	Temperature    *float64
	MaxTokens      int
	IdempotencyKey string
}

// Result is the outcome of one completed chat turn.
type Result struct {
	Conversation     schema.Conversation
	UserMessage      schema.Message
	AssistantMessage schema.Message
	Usage            schema.UsageEvent
	Balance          int64
	// Replayed marks a result served from a prior usage event after a
	// duplicate idempotency key. No provider call or billing happened.
	Replayed bool
}

// Service coordinates the ledger, recorder, and router per chat turn.
//
// The service does not serialize concurrent turns on the same
// conversation; two simultaneous calls may interleave their message
// writes. Callers that need strict turn order must serialize at the
// session layer.
type Service struct {
	store    storage.Store
	router   *router.Router
	ledger   *credit.Ledger
	recorder *usage.Recorder
	pricer   *usage.Pricer

	chunkBytes int
}

// Option configures a Service.
type Option func(*Service)

// WithStreamChunkBytes sets the fragment size for streamed delivery.
func WithStreamChunkBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkBytes = n
		}
	}
}

// NewService creates a chat service over its collaborators.
func NewService(store storage.Store, rt *router.Router, ledger *credit.Ledger, recorder *usage.Recorder, pricer *usage.Pricer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		router:     rt,
		ledger:     ledger,
		recorder:   recorder,
		pricer:     pricer,
		chunkBytes: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat executes one chat turn end to end.
//
// Checkpoints run in order: idempotency replay, advisory credit check,
// conversation resolution, user message persistence, provider call,
// assistant message persistence, then one transaction that deducts the
// actual cost and records the usage event. Messages persisted before a
// billing failure are left in place; only the deduction and the usage
// event are coupled.
func (s *Service) Chat(ctx context.Context, userID string, req Request) (*Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fault.New(fault.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fault.New(fault.CodeValidation, "message content is required")
	}

	// A prior event for the same key means this exact request was already
	// billed and answered. Serve the stored outcome without touching the
	// provider or the ledger.
	if req.IdempotencyKey != "" {
		prior, hit, err := s.recorder.CheckIdempotency(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if hit {
			return s.replay(ctx, userID, prior)
		}
	}

	provider, model, err := s.router.ResolveModel(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	// Bootstrap grant for first-time users is a no-op past zero balance.
	if _, err := s.ledger.EnsureInitialCredits(ctx, userID); err != nil {
		return nil, err
	}

	// Advisory gate at the estimate. The deduction inside the billing
	// transaction is the authoritative guard.
	estimate := s.pricer.EstimateCost(provider, model, usage.EstimateTokens(req.Content), req.MaxTokens)
	ok, err := s.ledger.CheckCredits(ctx, userID, estimate)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance, berr := s.ledger.Balance(ctx, userID)
		if berr != nil {
			return nil, berr
		}
		return nil, fault.InsufficientCredits(estimate, balance)
	}

	conversation, err := s.resolveConversation(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}

	userMessage := schema.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           schema.RoleUser,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, userMessage); err != nil {
		return nil, err
	}

	messages := make([]schema.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, schema.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, schema.ChatMessage{Role: schema.RoleUser, Content: req.Content})

	resp, err := s.router.Chat(ctx, router.Request{
		Provider:    provider,
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	assistantMessage := schema.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           schema.RoleAssistant,
		Content:        resp.Content,
		TokensIn:       resp.TokensIn,
		TokensOut:      resp.TokensOut,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, assistantMessage); err != nil {
		return nil, err
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	event := schema.UsageEvent{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversation.ID,
		MessageID:      assistantMessage.ID,
		IdempotencyKey: idempotencyKey,
		Provider:       resp.Provider,
		Model:          resp.Model,
		TokensIn:       resp.TokensIn,
		TokensOut:      resp.TokensOut,
		CostCredits:    s.pricer.ActualCost(provider, resp.Model, resp.TokensIn, resp.TokensOut),
		CreatedAt:      time.Now().UTC(),
	}

	// Billing runs detached from caller cancellation: once the provider
	// has answered, a client disconnect must not abort the transaction.
	billCtx := context.WithoutCancel(ctx)
	stored, balance, err := s.store.BillUsage(billCtx, event)
	if err != nil {
		if fault.IsCode(err, fault.CodeConflict) {
			// A concurrent retry with the same key won the insert race.
			// Treat this call as already processed.
			prior, hit, lookupErr := s.recorder.CheckIdempotency(billCtx, idempotencyKey)
			if lookupErr == nil && hit {
				return s.replay(billCtx, userID, prior)
			}
			return nil, err
		}
		// The messages stay: an unbilled answer beats double-charging a
		// guarded retry.
		log.Printf("[chat] billing failed after response for user %s conversation %s: %v", userID, conversation.ID, err)
		return nil, err
	}

	return &Result{
		Conversation:     conversation,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		Usage:            stored,
		Balance:          balance,
	}, nil
}

// resolveConversation loads the requested conversation or lazily creates
// one when no id was supplied.
func (s *Service) resolveConversation(ctx context.Context, userID string, req Request) (schema.Conversation, error) {
	if req.ConversationID != "" {
		conversation, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return schema.Conversation{}, err
		}
		if conversation.UserID != userID {
			return schema.Conversation{}, fault.Newf(fault.CodeNotFound, "conversation %s not found", req.ConversationID)
		}
		return conversation, nil
	}

	now := time.Now().UTC()
	conversation := schema.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     deriveTitle(req.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conversation); err != nil {
		return schema.Conversation{}, err
	}
	return conversation, nil
}

// replay rebuilds a turn result from a stored usage event.
func (s *Service) replay(ctx context.Context, userID string, event *schema.UsageEvent) (*Result, error) {
	if event.UserID != userID {
		return nil, fault.New(fault.CodeConflict, "idempotency key already used by another user")
	}

	result := &Result{Usage: *event, Replayed: true}
	if event.ConversationID != "" {
		conversation, err := s.store.GetConversation(ctx, event.ConversationID)
		if err == nil {
			result.Conversation = conversation
		}
		messages, err := s.store.ListMessages(ctx, event.ConversationID)
		if err == nil {
			for _, msg := range messages {
				if msg.ID == event.MessageID {
					result.AssistantMessage = msg
					break
				}
			}
		}
	}

	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	result.Balance = balance
	return result, nil
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if runes := []rune(title); len(runes) > 64 {
		title = string(runes[:64])
	}
	return title
}
