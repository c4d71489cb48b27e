package sessionstate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/config"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// CheckpointManager appends and reads the checkpoint log of each session.
type CheckpointManager struct {
	store store.Store
	opts  options
}

// NewCheckpointManager creates a CheckpointManager over st.
func NewCheckpointManager(st store.Store, opts ...Option) *CheckpointManager {
	return &CheckpointManager{store: st, opts: buildOptions(opts)}
}

// Save records a checkpoint for the session and makes phase its current
// phase, in one transaction.
//
// data is encoded as JSON. nil stores an empty object and a json.RawMessage
// is stored as given once it is known to be valid JSON.
func (m *CheckpointManager) Save(ctx context.Context, sessionID, phase string, data any) (cp *Checkpoint, err error) {
	ctx, done := m.opts.track(ctx, "checkpoint.save", sessionID)
	defer func() { done(err) }()

	if strings.TrimSpace(phase) == "" {
		return nil, invalid("phase", "must not be blank")
	}
	raw, err := encodeData(data)
	if err != nil {
		return nil, err
	}

	cp = &Checkpoint{
		SessionID: sessionID,
		Phase:     phase,
		Data:      raw,
	}

	err = m.store.Atomically(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		// Stamped under the write lock so created_at follows commit order.
		cp.CreatedAt = m.opts.timestamp()
		for attempt := 1; ; attempt++ {
			cp.ID = m.opts.newID(checkpointIDLength)
			err = tx.InsertCheckpoint(ctx, cp)
			if !errors.Is(err, store.ErrDuplicateID) || attempt == maxIDAttempts {
				break
			}
		}
		if err != nil {
			return err
		}

		sess.CurrentPhase = phase
		sess.UpdatedAt = cp.CreatedAt
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, wrapStoreErr("save checkpoint", err)
	}

	m.opts.metrics.RecordCheckpoint(ctx, phase, int64(cp.Size()))
	observability.LogCheckpointSaved(m.opts.logger, sessionID, cp.ID, phase, cp.Size())
	return cp, nil
}

// Last returns the session's most recent checkpoint, or nil if it has none.
func (m *CheckpointManager) Last(ctx context.Context, sessionID string) (cp *Checkpoint, err error) {
	ctx, done := m.opts.track(ctx, "checkpoint.last", sessionID)
	defer func() { done(err) }()

	cp, err = m.store.LastCheckpoint(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("last checkpoint", err)
	}
	return cp, nil
}

// All returns the session's checkpoints, oldest first.
func (m *CheckpointManager) All(ctx context.Context, sessionID string) (cps []*Checkpoint, err error) {
	ctx, done := m.opts.track(ctx, "checkpoint.all", sessionID)
	defer func() { done(err) }()

	cps, err = m.store.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr("list checkpoints", err)
	}
	return cps, nil
}

// Get returns a checkpoint by ID, or nil if it doesn't exist.
func (m *CheckpointManager) Get(ctx context.Context, checkpointID string) (cp *Checkpoint, err error) {
	ctx, done := m.opts.track(ctx, "checkpoint.get", "")
	defer func() { done(err) }()

	cp, err = m.store.GetCheckpoint(ctx, checkpointID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("get checkpoint", err)
	}
	return cp, nil
}

// Restore rolls the owning session back to the checkpoint's phase and makes
// it active, in one transaction. The checkpoint need not be the latest. It
// returns the checkpoint for the caller to replay, or nil if it doesn't
// exist. Completed sessions cannot be restored.
func (m *CheckpointManager) Restore(ctx context.Context, checkpointID string) (cp *Checkpoint, err error) {
	ctx, done := m.opts.track(ctx, "checkpoint.restore", "")
	defer func() { done(err) }()

	var from Status
	err = m.store.Atomically(ctx, func(tx store.Store) error {
		var err error
		if cp, err = tx.GetCheckpoint(ctx, checkpointID); err != nil {
			return err
		}
		sess, err := tx.GetSession(ctx, cp.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		from = sess.Status
		if _, err := (SessionUpdate{CurrentPhase: cp.Phase, Status: StatusActive}).apply(sess); err != nil {
			return err
		}
		sess.UpdatedAt = m.opts.timestamp()
		return tx.UpdateSession(ctx, sess)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("restore checkpoint", err)
	}

	observability.LogCheckpointRestored(m.opts.logger, cp.SessionID, cp.ID, cp.Phase)
	observability.LogStatusChange(m.opts.logger, cp.SessionID, string(from), string(StatusActive))
	return cp, nil
}

// encodeData turns a checkpoint payload into JSON.
func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return append(json.RawMessage(nil), store.EmptyData...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return append(json.RawMessage(nil), store.EmptyData...), nil
		}
		if !json.Valid(v) {
			return nil, invalid("data", "not valid JSON")
		}
		return append(json.RawMessage(nil), v...), nil
	case config.Map:
		raw, err := v.JSON()
		if err != nil {
			return nil, &ValidationError{Field: "data", Message: err.Error(), Err: err}
		}
		return raw, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, &ValidationError{Field: "data", Message: err.Error(), Err: err}
		}
		return raw, nil
	}
}
