package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// GetUsageEventByKey looks up a usage event by idempotency key.
func (s *Store) GetUsageEventByKey(ctx context.Context, idempotencyKey string) (schema.UsageEvent, error) {
	if err := s.ready(); err != nil {
		return schema.UsageEvent{}, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return schema.UsageEvent{}, fault.New(fault.CodeValidation, "idempotency key is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, conversation_id, message_id, idempotency_key, provider, model,
       tokens_in, tokens_out, cost_credits, created_at
FROM usage_events
WHERE idempotency_key = ?
`, idempotencyKey)

	event, err := scanUsageEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.UsageEvent{}, fault.Newf(fault.CodeNotFound, "usage event for key %s not found", idempotencyKey)
		}
		return schema.UsageEvent{}, fault.Wrap(fault.CodeDatabase, "get usage event", err)
	}
	return event, nil
}

// InsertUsageEvent records a usage event. The unique index on the
// idempotency key is the authoritative duplicate guard: exactly one insert
// wins a race, the loser fails with Conflict.
func (s *Store) InsertUsageEvent(ctx context.Context, event schema.UsageEvent) (schema.UsageEvent, error) {
	if err := s.ready(); err != nil {
		return schema.UsageEvent{}, err
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return schema.UsageEvent{}, err
	}
	defer func() { _ = tx.Rollback() }()

	stored, err := insertUsageEventInTx(ctx, tx, event)
	if err != nil {
		return schema.UsageEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return schema.UsageEvent{}, fault.Wrap(fault.CodeDatabase, "commit usage event", err)
	}
	return stored, nil
}

// BillUsage deducts the event's cost and inserts the usage event in a
// single transaction. A shortfall or duplicate key abandons both halves.
func (s *Store) BillUsage(ctx context.Context, event schema.UsageEvent) (schema.UsageEvent, int64, error) {
	if err := s.ready(); err != nil {
		return schema.UsageEvent{}, 0, err
	}
	if event.CostCredits <= 0 {
		return schema.UsageEvent{}, 0, fault.New(fault.CodeValidation, "cost must be positive")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return schema.UsageEvent{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := deductInTx(ctx, tx, event.UserID, event.CostCredits, event.ID)
	if err != nil {
		return schema.UsageEvent{}, 0, err
	}

	stored, err := insertUsageEventInTx(ctx, tx, event)
	if err != nil {
		return schema.UsageEvent{}, 0, err
	}

	if err := tx.Commit(); err != nil {
		return schema.UsageEvent{}, 0, fault.Wrap(fault.CodeDatabase, "commit billed usage", err)
	}
	return stored, balance, nil
}

// ListUsageEvents returns the most recent usage events for a user.
func (s *Store) ListUsageEvents(ctx context.Context, userID string, limit int) ([]schema.UsageEvent, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fault.New(fault.CodeValidation, "user id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, conversation_id, message_id, idempotency_key, provider, model,
       tokens_in, tokens_out, cost_credits, created_at
FROM usage_events
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list usage events", err)
	}
	defer rows.Close()

	var events []schema.UsageEvent
	for rows.Next() {
		event, err := scanUsageEvent(rows.Scan)
		if err != nil {
			return nil, fault.Wrap(fault.CodeDatabase, "scan usage event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list usage events", err)
	}
	return events, nil
}

func insertUsageEventInTx(ctx context.Context, tx *sql.Tx, event schema.UsageEvent) (schema.UsageEvent, error) {
	if strings.TrimSpace(event.ID) == "" {
		return schema.UsageEvent{}, fault.New(fault.CodeValidation, "usage event id is required")
	}
	if strings.TrimSpace(event.UserID) == "" {
		return schema.UsageEvent{}, fault.New(fault.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(event.IdempotencyKey) == "" {
		return schema.UsageEvent{}, fault.New(fault.CodeValidation, "idempotency key is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO usage_events (
	id, user_id, conversation_id, message_id, idempotency_key, provider, model,
	tokens_in, tokens_out, cost_credits, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		event.ID,
		event.UserID,
		event.ConversationID,
		event.MessageID,
		event.IdempotencyKey,
		event.Provider,
		event.Model,
		event.TokensIn,
		event.TokensOut,
		event.CostCredits,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.UsageEvent{}, fault.Wrap(fault.CodeConflict, "usage event already recorded for idempotency key "+event.IdempotencyKey, err)
		}
		return schema.UsageEvent{}, fault.Wrap(fault.CodeDatabase, "insert usage event", err)
	}
	return event, nil
}

func scanUsageEvent(scan func(dest ...any) error) (schema.UsageEvent, error) {
	var event schema.UsageEvent
	var createdAt int64
	err := scan(
		&event.ID,
		&event.UserID,
		&event.ConversationID,
		&event.MessageID,
		&event.IdempotencyKey,
		&event.Provider,
		&event.Model,
		&event.TokensIn,
		&event.TokensOut,
		&event.CostCredits,
		&createdAt,
	)
	if err != nil {
		return schema.UsageEvent{}, err
	}
	event.CreatedAt = fromMillis(createdAt)
	return event, nil
}
