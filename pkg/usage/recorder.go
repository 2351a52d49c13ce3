// Package usage records billable provider activity and prices it in
// credits.
package usage

import (
	"context"

	"github.com/zen-systems/chatmeter/pkg/fault"
	"github.com/zen-systems/chatmeter/pkg/schema"
	"github.com/zen-systems/chatmeter/pkg/storage"
)

// Recorder is the durable, idempotent ledger of billable events.
type Recorder struct {
	store storage.Store
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store}
}

// CheckIdempotency looks up a prior usage event for the key. A hit means
// the exact request was already billed and answered; callers must
// short-circuit with the stored result rather than re-invoking a provider.
func (r *Recorder) CheckIdempotency(ctx context.Context, key string) (*schema.UsageEvent, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	event, err := r.store.GetUsageEventByKey(ctx, key)
	if err != nil {
		if fault.IsCode(err, fault.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &event, true, nil
}

// RecordUsageEvent durably stores a usage event. A duplicate idempotency
// key fails with Conflict, enforced by the storage uniqueness constraint
// rather than any prior read.
func (r *Recorder) RecordUsageEvent(ctx context.Context, event schema.UsageEvent) (*schema.UsageEvent, error) {
	stored, err := r.store.InsertUsageEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListEvents returns the most recent usage events for a user.
func (r *Recorder) ListEvents(ctx context.Context, userID string, limit int) ([]schema.UsageEvent, error) {
	return r.store.ListUsageEvents(ctx, userID, limit)
}
