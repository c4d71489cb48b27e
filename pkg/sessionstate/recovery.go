package sessionstate

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// RecoveryCoordinator builds resumable contexts for interrupted sessions.
//
// It has no notion of liveness: an active session may still be running in
// another process. Deciding whether to recover it is up to the caller.
type RecoveryCoordinator struct {
	store store.Store
	opts  options
}

// NewRecoveryCoordinator creates a RecoveryCoordinator over st.
func NewRecoveryCoordinator(st store.Store, opts ...Option) *RecoveryCoordinator {
	return &RecoveryCoordinator{store: st, opts: buildOptions(opts)}
}

// Recover loads the session and its latest checkpoint. If there is a
// checkpoint and the session is paused or failed, the session is made active
// again. Completed sessions are returned untouched. Returns nil for an unknown
// session.
func (r *RecoveryCoordinator) Recover(ctx context.Context, sessionID string) (res *RecoveryResult, err error) {
	ctx, done := r.opts.track(ctx, "recovery.recover", sessionID)
	defer func() { done(err) }()

	var from Status
	err = r.store.Atomically(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		from = sess.Status

		cp, err := tx.LastCheckpoint(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			res = &RecoveryResult{Session: sess}
			return nil
		}
		if err != nil {
			return err
		}

		if sess.Status == StatusPaused || sess.Status == StatusFailed {
			sess.Status = StatusActive
			sess.UpdatedAt = r.opts.timestamp()
			if err := tx.UpdateSession(ctx, sess); err != nil {
				return err
			}
		}
		res = &RecoveryResult{Session: sess, Checkpoint: cp, ResumeFrom: cp.Phase}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("recover session", err)
	}

	r.opts.metrics.RecordRecovery(ctx, res.Checkpoint != nil)
	r.opts.spans.AddSpanEvent(ctx, "recovered")
	observability.LogRecovered(r.opts.logger, sessionID, string(from), res.ResumeFrom)
	observability.LogStatusChange(r.opts.logger, sessionID, string(from), string(res.Session.Status))
	return res, nil
}

// ActiveSessions returns every session whose status is active, most recently
// updated first. A supervisor uses it on startup to find sessions that may
// have been interrupted.
func (r *RecoveryCoordinator) ActiveSessions(ctx context.Context) (sessions []*Session, err error) {
	ctx, done := r.opts.track(ctx, "recovery.active", "")
	defer func() { done(err) }()

	sessions, err = r.store.ListSessions(ctx, &store.ListFilter{Status: StatusActive})
	if err != nil {
		return nil, wrapStoreErr("list active sessions", err)
	}
	return sessions, nil
}

// RecoverAll recovers several sessions with at most concurrency in flight.
// Results are in the order of ids, with nil for unknown sessions. The first
// error stops the remaining recoveries and is returned.
func (r *RecoveryCoordinator) RecoverAll(ctx context.Context, ids []string, concurrency int) ([]*RecoveryResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*RecoveryResult, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		g.Go(func() error {
			res, err := r.Recover(ctx, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
