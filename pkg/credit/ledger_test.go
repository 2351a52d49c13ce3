package credit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
	"github.com/zen-systems/chatmeter/pkg/storage/sqlite"
)

func newTestLedger(t *testing.T) (*Ledger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewLedger(store), store
}

func seedUser(t *testing.T, store *sqlite.Store, id string, plan schema.Plan, credits int64) {
	t.Helper()
	require.NoError(t, store.CreateUser(context.Background(), schema.User{
		ID:        id,
		Plan:      plan,
		Credits:   credits,
		CreatedAt: time.Now().UTC(),
	}))
}

func TestEnsureInitialCreditsGrantsPlanAmount(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u1", schema.PlanPro, 0)

	balance, err := ledger.EnsureInitialCredits(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(5000), balance)

	// A non-zero balance passes through unchanged.
	_, err = ledger.DeductCredits(ctx, "u1", 4999, "")
	require.NoError(t, err)

	balance, err = ledger.EnsureInitialCredits(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1), balance)
}

func TestEnsureInitialCreditsSkipsFundedAccount(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedUser(t, store, "u1", schema.PlanFree, 7)

	balance, err := ledger.EnsureInitialCredits(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(7), balance)
}

func TestCheckCreditsIsAdvisory(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u1", schema.PlanFree, 50)

	ok, err := ledger.CheckCredits(ctx, "u1", 50)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ledger.CheckCredits(ctx, "u1", 51)
	require.NoError(t, err)
	require.False(t, ok)

	// A passing check does not reserve anything; the deduction can still
	// fail after a concurrent spend.
	_, err = ledger.DeductCredits(ctx, "u1", 40, "")
	require.NoError(t, err)
	_, err = ledger.DeductCredits(ctx, "u1", 40, "")
	require.True(t, fault.IsCode(err, fault.CodeInsufficientCredits))
}

func TestBalanceUnknownUser(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Balance(context.Background(), "ghost")
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
}
