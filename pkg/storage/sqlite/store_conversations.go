package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// CreateConversation persists a conversation record.
func (s *Store) CreateConversation(ctx context.Context, conversation schema.Conversation) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(conversation.ID) == "" {
		return fault.New(fault.CodeValidation, "conversation id is required")
	}
	if strings.TrimSpace(conversation.UserID) == "" {
		return fault.New(fault.CodeValidation, "user id is required")
	}

	tags, err := encodeStrings(conversation.Tags)
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "encode tags", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO conversations (id, user_id, title, starred, archived, category, tags, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		conversation.ID,
		conversation.UserID,
		conversation.Title,
		boolToInt(conversation.Starred),
		boolToInt(conversation.Archived),
		conversation.Category,
		tags,
		toMillis(conversation.CreatedAt),
		toMillis(conversation.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fault.Wrap(fault.CodeConflict, "conversation already exists", err)
		}
		return fault.Wrap(fault.CodeDatabase, "create conversation", err)
	}
	return nil
}

// GetConversation fetches a conversation record by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (schema.Conversation, error) {
	if err := s.ready(); err != nil {
		return schema.Conversation{}, err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return schema.Conversation{}, fault.New(fault.CodeValidation, "conversation id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, title, starred, archived, category, tags, created_at, updated_at
FROM conversations
WHERE id = ?
`, conversationID)

	conversation, err := scanConversation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Conversation{}, fault.Newf(fault.CodeNotFound, "conversation %s not found", conversationID)
		}
		return schema.Conversation{}, fault.Wrap(fault.CodeDatabase, "get conversation", err)
	}
	return conversation, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]schema.Conversation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fault.New(fault.CodeValidation, "user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, title, starred, archived, category, tags, created_at, updated_at
FROM conversations
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list conversations", err)
	}
	defer rows.Close()

	var conversations []schema.Conversation
	for rows.Next() {
		conversation, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, fault.Wrap(fault.CodeDatabase, "scan conversation", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list conversations", err)
	}
	return conversations, nil
}

// UpdateConversation updates mutable conversation fields.
func (s *Store) UpdateConversation(ctx context.Context, conversation schema.Conversation) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(conversation.ID) == "" {
		return fault.New(fault.CodeValidation, "conversation id is required")
	}

	tags, err := encodeStrings(conversation.Tags)
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "encode tags", err)
	}

	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE conversations
SET title = ?, starred = ?, archived = ?, category = ?, tags = ?, updated_at = ?
WHERE id = ?
`,
		conversation.Title,
		boolToInt(conversation.Starred),
		boolToInt(conversation.Archived),
		conversation.Category,
		tags,
		toMillis(conversation.UpdatedAt),
		conversation.ID,
	)
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "update conversation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "update conversation", err)
	}
	if affected == 0 {
		return fault.Newf(fault.CodeNotFound, "conversation %s not found", conversation.ID)
	}
	return nil
}

func scanConversation(scan func(dest ...any) error) (schema.Conversation, error) {
	var conversation schema.Conversation
	var starred, archived int
	var tags string
	var createdAt, updatedAt int64
	err := scan(
		&conversation.ID,
		&conversation.UserID,
		&conversation.Title,
		&starred,
		&archived,
		&conversation.Category,
		&tags,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return schema.Conversation{}, err
	}
	conversation.Starred = starred != 0
	conversation.Archived = archived != 0
	decoded, err := decodeStrings(tags)
	if err != nil {
		return schema.Conversation{}, err
	}
	conversation.Tags = decoded
	conversation.CreatedAt = fromMillis(createdAt)
	conversation.UpdatedAt = fromMillis(updatedAt)
	return conversation, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
