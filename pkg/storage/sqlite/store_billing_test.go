package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
)

func testUsageEvent(id, userID, key string, cost int64) schema.UsageEvent {
	return schema.UsageEvent{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: key,
		Provider:       "mock",
		Model:          "mock-1",
		TokensIn:       10,
		TokensOut:      20,
		CostCredits:    cost,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestDeductCredits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 100)

	balance, err := store.DeductCredits(ctx, "u1", 30, "ref-1")
	require.NoError(t, err)
	require.Equal(t, int64(70), balance)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(70), user.Credits)
}

func TestDeductCreditsShortfall(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 10)

	_, err := store.DeductCredits(ctx, "u1", 50, "ref-1")
	require.True(t, fault.IsCode(err, fault.CodeInsufficientCredits))

	// A failed deduction leaves the balance untouched.
	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(10), user.Credits)
}

func TestDeductCreditsUnknownUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DeductCredits(context.Background(), "ghost", 10, "")
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestDeductCreditsRejectsNonPositive(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, "u1", 100)

	_, err := store.DeductCredits(context.Background(), "u1", 0, "")
	require.True(t, fault.IsCode(err, fault.CodeValidation))
	_, err = store.DeductCredits(context.Background(), "u1", -5, "")
	require.True(t, fault.IsCode(err, fault.CodeValidation))
}

func TestConcurrentDeductionsNeverOverspend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.DeductCredits(ctx, "u1", 60, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, fault.IsCode(err, fault.CodeInsufficientCredits), "unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)

	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(40), user.Credits)
}

func TestAddCredits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 5)

	balance, err := store.AddCredits(ctx, "u1", 95)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestAddCreditsUnknownUser(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddCredits(context.Background(), "ghost", 10)
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestGrantInitialCreditsOnlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 0)

	balance, granted, err := store.GrantInitialCredits(ctx, "u1", 1000)
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, int64(1000), balance)

	// Second call is a no-op: the zero-balance predicate no longer holds.
	balance, granted, err = store.GrantInitialCredits(ctx, "u1", 1000)
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, int64(1000), balance)
}

func TestGrantInitialCreditsSkipsFundedAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 42)

	balance, granted, err := store.GrantInitialCredits(ctx, "u1", 1000)
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, int64(42), balance)
}

func TestBillUsageDeductsAndRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 100)

	event := testUsageEvent("e1", "u1", "key-1", 25)
	stored, balance, err := store.BillUsage(ctx, event)
	require.NoError(t, err)
	require.Equal(t, int64(75), balance)
	require.Equal(t, "e1", stored.ID)

	got, err := store.GetUsageEventByKey(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, int64(25), got.CostCredits)
}

func TestBillUsageDuplicateKeyRollsBackDeduction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 100)

	_, _, err := store.BillUsage(ctx, testUsageEvent("e1", "u1", "key-1", 25))
	require.NoError(t, err)

	_, _, err = store.BillUsage(ctx, testUsageEvent("e2", "u1", "key-1", 25))
	require.True(t, fault.IsCode(err, fault.CodeConflict))

	// The duplicate must not have charged anything.
	user, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(75), user.Credits)

	events, err := store.ListUsageEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestBillUsageShortfallRecordsNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 10)

	_, _, err := store.BillUsage(ctx, testUsageEvent("e1", "u1", "key-1", 25))
	require.True(t, fault.IsCode(err, fault.CodeInsufficientCredits))

	events, err := store.ListUsageEvents(ctx, "u1", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestGetUsageEventByKeyNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUsageEventByKey(context.Background(), "ghost")
	require.True(t, fault.IsCode(err, fault.CodeNotFound))
}

func TestInsertUsageEventDuplicateKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 0)

	_, err := store.InsertUsageEvent(ctx, testUsageEvent("e1", "u1", "key-1", 1))
	require.NoError(t, err)

	_, err = store.InsertUsageEvent(ctx, testUsageEvent("e2", "u1", "key-1", 1))
	require.True(t, fault.IsCode(err, fault.CodeConflict))
}

func TestListUsageEventsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u1", 0)

	base := time.Now().UTC()
	for i, id := range []string{"e1", "e2", "e3"} {
		event := testUsageEvent(id, "u1", "key-"+id, 1)
		event.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := store.InsertUsageEvent(ctx, event)
		require.NoError(t, err)
	}

	events, err := store.ListUsageEvents(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "e3", events[0].ID)
	require.Equal(t, "e2", events[1].ID)
}
