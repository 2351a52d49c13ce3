// Package credit implements the authoritative per-user credit ledger.
package credit

import (
	"context"
	"log"

	"github.com/zen-systems/chatmeter/pkg/storage"
)

// Ledger is the single source of truth for spendable balances. Checks are
// advisory; deductions are authoritative and transactional.
type Ledger struct {
	store storage.Store
}

// NewLedger creates a ledger over the given store.
func NewLedger(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// CheckCredits reports whether the user's current balance covers the
// required amount. The answer is advisory: a concurrent spend can
// invalidate it before a deduction commits, so callers must still handle
// InsufficientCredits from DeductCredits.
func (l *Ledger) CheckCredits(ctx context.Context, userID string, required int64) (bool, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Credits >= required, nil
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// DeductCredits atomically subtracts amount from the user's balance.
// referenceID is stored for audit traceability only.
func (l *Ledger) DeductCredits(ctx context.Context, userID string, amount int64, referenceID string) (int64, error) {
	return l.store.DeductCredits(ctx, userID, amount, referenceID)
}

// AddCredits atomically increments the user's balance.
func (l *Ledger) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	return l.store.AddCredits(ctx, userID, amount)
}

// EnsureInitialCredits grants the plan-dependent bootstrap amount when the
// balance is zero, exactly once, and returns the resulting balance. A
// non-zero balance passes through unchanged.
func (l *Ledger) EnsureInitialCredits(ctx context.Context, userID string) (int64, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.Credits > 0 {
		return user.Credits, nil
	}

	balance, granted, err := l.store.GrantInitialCredits(ctx, userID, user.Plan.BootstrapCredits())
	if err != nil {
		return 0, err
	}
	if granted {
		log.Printf("[credit] bootstrap grant of %d credits for user %s (plan %s)", balance, userID, user.Plan)
	}
	return balance, nil
}
