package sessionstate

import (
	"context"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// DefaultRetentionDays is the retention window used by the CLI when none is
// configured.
const DefaultRetentionDays = 30

// maxRetentionDays caps the window so the cutoff stays a valid timestamp.
// Any larger window keeps every session.
const maxRetentionDays = 700_000

// Retention deletes completed sessions once they age past a window.
type Retention struct {
	store store.Store
	opts  options
}

// NewRetention creates a Retention over st.
func NewRetention(st store.Store, opts ...Option) *Retention {
	return &Retention{store: st, opts: buildOptions(opts)}
}

// DeleteOld removes completed sessions last updated more than days ago,
// along with their checkpoints and artifact records, in one transaction.
// Sessions in any other status are kept regardless of age. Returns the
// number of sessions deleted.
func (r *Retention) DeleteOld(ctx context.Context, days int) (deleted int, err error) {
	ctx, done := r.opts.track(ctx, "retention.delete_old", "")
	defer func() { done(err) }()

	if days < 0 {
		return 0, invalid("days", "must not be negative, got %d", days)
	}

	elapsed := observability.TimedOperation()
	cutoff := r.opts.timestamp().AddDate(0, 0, -min(days, maxRetentionDays))

	err = r.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		deleted, err = tx.DeleteCompletedBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, wrapStoreErr("delete old sessions", err)
	}

	r.opts.metrics.RecordRetention(ctx, deleted)
	observability.LogRetention(r.opts.logger, days, deleted, observability.Milliseconds(elapsed()))
	return deleted, nil
}
