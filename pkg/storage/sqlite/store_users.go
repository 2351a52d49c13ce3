package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

// CreateUser persists a user record.
func (s *Store) CreateUser(ctx context.Context, user schema.User) error {
	if err := s.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(user.ID) == "" {
		return fault.New(fault.CodeValidation, "user id is required")
	}
	if user.Credits < 0 {
		return fault.New(fault.CodeValidation, "credits cannot be negative")
	}
	if user.Plan == "" {
		user.Plan = schema.PlanFree
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, plan, credits, created_at)
VALUES (?, ?, ?, ?, ?)
`, user.ID, user.Email, string(user.Plan), user.Credits, toMillis(user.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fault.Wrap(fault.CodeConflict, "user already exists", err)
		}
		return fault.Wrap(fault.CodeDatabase, "create user", err)
	}
	return nil
}

// GetUser fetches a user record by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (schema.User, error) {
	if err := s.ready(); err != nil {
		return schema.User{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return schema.User{}, fault.New(fault.CodeValidation, "user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, plan, credits, created_at
FROM users
WHERE id = ?
`, userID)

	var user schema.User
	var plan string
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Email, &plan, &user.Credits, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.User{}, fault.Newf(fault.CodeNotFound, "user %s not found", userID)
		}
		return schema.User{}, fault.Wrap(fault.CodeDatabase, "get user", err)
	}
	user.Plan = schema.Plan(plan)
	user.CreatedAt = fromMillis(createdAt)
	return user, nil
}
