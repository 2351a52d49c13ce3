package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/zen-systems/chatmeter/pkg/fault"
)

// DeductCredits subtracts amount from the user's balance as one atomic
// read-modify-write. The balance is re-read inside the transaction, so a
// stale advisory check can never push a committed balance below zero.
// referenceID is stored on the audit row for traceability; it carries no
// idempotency semantics.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount int64, referenceID string) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, fault.New(fault.CodeValidation, "user id is required")
	}
	if amount <= 0 {
		return 0, fault.New(fault.CodeValidation, "deduct amount must be positive")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := deductInTx(ctx, tx, userID, amount, referenceID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "commit deduction", err)
	}
	return balance, nil
}

// AddCredits atomically increments the user's balance, used for grants
// and refunds.
func (s *Store) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, fault.New(fault.CodeValidation, "user id is required")
	}
	if amount <= 0 {
		return 0, fault.New(fault.CodeValidation, "add amount must be positive")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE id = ?`, amount, userID)
	if err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "add credits", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "add credits", err)
	}
	if affected == 0 {
		return 0, fault.Newf(fault.CodeNotFound, "user %s not found", userID)
	}

	balance, err := balanceInTx(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if err := auditInTx(ctx, tx, userID, amount, balance, ""); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "commit credit grant", err)
	}
	return balance, nil
}

// GrantInitialCredits applies the plan bootstrap grant. The "balance is
// currently zero" predicate in the UPDATE is the exactly-once guard; there
// is no separate flag. Returns the resulting balance and whether the grant
// applied.
func (s *Store) GrantInitialCredits(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	if err := s.ready(); err != nil {
		return 0, false, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, false, fault.New(fault.CodeValidation, "user id is required")
	}
	if amount <= 0 {
		return 0, false, fault.New(fault.CodeValidation, "grant amount must be positive")
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET credits = ? WHERE id = ? AND credits = 0`, amount, userID)
	if err != nil {
		return 0, false, fault.Wrap(fault.CodeDatabase, "grant initial credits", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fault.Wrap(fault.CodeDatabase, "grant initial credits", err)
	}
	granted := affected > 0

	balance, err := balanceInTx(ctx, tx, userID)
	if err != nil {
		return 0, false, err
	}
	if granted {
		if err := auditInTx(ctx, tx, userID, amount, balance, "bootstrap"); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fault.Wrap(fault.CodeDatabase, "commit initial grant", err)
	}
	return balance, granted, nil
}

// deductInTx performs the authoritative balance check and decrement inside
// an open transaction.
func deductInTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, referenceID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fault.Newf(fault.CodeNotFound, "user %s not found", userID)
		}
		return 0, fault.Wrap(fault.CodeDatabase, "read balance", err)
	}
	if balance < amount {
		return 0, fault.InsufficientCredits(amount, balance)
	}

	newBalance := balance - amount
	if _, err := tx.ExecContext(ctx, `UPDATE users SET credits = ? WHERE id = ?`, newBalance, userID); err != nil {
		return 0, fault.Wrap(fault.CodeDatabase, "write balance", err)
	}
	if err := auditInTx(ctx, tx, userID, -amount, newBalance, referenceID); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func balanceInTx(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fault.Newf(fault.CodeNotFound, "user %s not found", userID)
		}
		return 0, fault.Wrap(fault.CodeDatabase, "read balance", err)
	}
	return balance, nil
}

func auditInTx(ctx context.Context, tx *sql.Tx, userID string, delta, balanceAfter int64, referenceID string) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO credit_audit (user_id, delta, balance_after, reference_id, created_at)
VALUES (?, ?, ?, ?, ?)
`, userID, delta, balanceAfter, referenceID, toMillis(time.Now()))
	if err != nil {
		return fault.Wrap(fault.CodeDatabase, "write credit audit", err)
	}
	return nil
}
