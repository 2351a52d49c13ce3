package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// PutMemory upserts a per-user memory entry.
func (s *Store) PutMemory(ctx context.Context, entry schema.MemoryEntry) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(entry.UserID) == "" {
		return fault.New(fault.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(entry.Key) == "" {
		return fault.New(fault.CodeValidation, "memory key is required")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO memory_entries (user_id, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, key) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
`, entry.UserID, entry.Key, entry.Value, toMillis(entry.UpdatedAt))
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "put memory entry", err)
	}
	return nil
}

// ListMemory returns all memory entries for a user, ordered by key.
func (s *Store) ListMemory(ctx context.Context, userID string) ([]schema.MemoryEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fault.New(fault.CodeValidation, "user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, key, value, updated_at
FROM memory_entries
WHERE user_id = ?
ORDER BY key ASC
`, userID)
	if err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list memory entries", err)
	}
	defer rows.Close()

	var entries []schema.MemoryEntry
	for rows.Next() {
		var entry schema.MemoryEntry
		var updatedAt int64
		if err := rows.Scan(&entry.UserID, &entry.Key, &entry.Value, &updatedAt); err != nil {
			return nil, fault.Wrap(fault.CodeDatabase, "scan memory entry", err)
		}
		entry.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.CodeDatabase, "list memory entries", err)
	}
	return entries, nil
}
