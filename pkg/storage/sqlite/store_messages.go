package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// CreateMessage appends a message to its conversation. The per-conversation
// sequence number is assigned inside the insert transaction, so creation
// order survives clock ties.
func (s *Store) CreateMessage(ctx context.Context, message schema.Message) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(message.ID) == "" {
		return fault.New(fault.CodeValidation, "message id is required")
	}
	if strings.TrimSpace(message.ConversationID) == "" {
		return fault.New(fault.CodeValidation, "conversation id is required")
	}
	if message.Role != schema.RoleUser && message.Role != schema.RoleAssistant {
		return fault.Newf(fault.CodeValidation, "unknown message role %q", message.Role)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE id = ?`, message.ConversationID).Scan(&exists); err != nil {
		return fault.Wrap(fault.CodeDatabase, "check conversation", err)
	}
	if exists == 0 {
		return fault.Newf(fault.CodeNotFound, "conversation %s not found", message.ConversationID)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, role, content, tokens_in, tokens_out, created_at, seq)
VALUES (?, ?, ?, ?, ?, ?, ?,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?))
`,
		message.ID,
		message.ConversationID,
		string(message.Role),
		message.Content,
		message.TokensIn,
		message.TokensOut,
		toMillis(message.CreatedAt),
		message.ConversationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fault.Wrap(fault.CodeConflict, "message already exists", err)
		}
		return fault.Wrap(fault.CodeDatabase, "create message", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		toMillis(message.CreatedAt), message.ConversationID); err != nil {
		return fault.Wrap(fault.CodeDatabase, "touch conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.CodeDatabase, "commit message", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]schema.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, fault.New(fault.CodeValidation, "conversation id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, conversation_id, role, content, tokens_in, tokens_out, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY seq ASC
`, conversationID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list messages", err)
	}
	defer rows.Close()

	var messages []schema.Message
	for rows.Next() {
		var message schema.Message
		var role string
		var createdAt int64
		if err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&role,
			&message.Content,
			&message.TokensIn,
			&message.TokensOut,
			&createdAt,
		); err != nil {
			return nil, fault.Wrap(fault.CodeDatabase, "scan message", err)
		}
		message.Role = schema.Role(role)
		message.CreatedAt = fromMillis(createdAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list messages", err)
	}
	return messages, nil
}
