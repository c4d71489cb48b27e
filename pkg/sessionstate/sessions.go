package sessionstate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// SessionManager creates, reads and updates sessions.
type SessionManager struct {
	store store.Store
	opts  options
}

// NewSessionManager creates a SessionManager over st.
func NewSessionManager(st store.Store, opts ...Option) *SessionManager {
	return &SessionManager{store: st, opts: buildOptions(opts)}
}

// Create starts a new active session in InitialPhase.
func (m *SessionManager) Create(ctx context.Context, workflowName string, metadata map[string]any) (sess *Session, err error) {
	ctx, done := m.opts.track(ctx, "session.create", "")
	defer func() { done(err) }()

	if strings.TrimSpace(workflowName) == "" {
		return nil, invalid("workflow_name", "must not be blank")
	}
	meta, err := normalizeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	now := m.opts.timestamp()
	sess = &Session{
		WorkflowName:    workflowName,
		CurrentPhase:    InitialPhase,
		Status:          StatusActive,
		CompletedPhases: []string{},
		Artifacts:       map[string]string{},
		Metadata:        meta,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; ; attempt++ {
		sess.ID = m.opts.newID(sessionIDLength)
		err = m.store.InsertSession(ctx, sess)
		if !errors.Is(err, store.ErrDuplicateID) || attempt == maxIDAttempts {
			break
		}
	}
	if err != nil {
		return nil, wrapStoreErr("create session", err)
	}

	observability.LogSessionCreated(m.opts.logger, sess.ID, workflowName)
	return sess, nil
}

// Get returns the session, or nil if it doesn't exist.
func (m *SessionManager) Get(ctx context.Context, id string) (sess *Session, err error) {
	ctx, done := m.opts.track(ctx, "session.get", id)
	defer func() { done(err) }()

	sess, err = m.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("get session", err)
	}
	return sess, nil
}

// Update applies upd to the session in one transaction and returns the
// refreshed record, or nil if the session doesn't exist. An empty update
// returns the stored record without writing.
func (m *SessionManager) Update(ctx context.Context, id string, upd SessionUpdate) (*Session, error) {
	if upd.Status != "" && !upd.Status.Valid() {
		return nil, invalid("status", "unknown status %q", upd.Status)
	}
	if upd.Metadata != nil {
		meta, err := normalizeMetadata(upd.Metadata)
		if err != nil {
			return nil, err
		}
		upd.Metadata = meta
	}
	return m.mutate(ctx, "session.update", id, func(*Session) (SessionUpdate, error) {
		return upd, nil
	})
}

// CompletePhase appends phase to the completed phases. Repeated phases are
// kept.
func (m *SessionManager) CompletePhase(ctx context.Context, id, phase string) (*Session, error) {
	if strings.TrimSpace(phase) == "" {
		return nil, invalid("phase", "must not be blank")
	}
	return m.mutate(ctx, "session.complete_phase", id, func(s *Session) (SessionUpdate, error) {
		phases := make([]string, 0, len(s.CompletedPhases)+1)
		phases = append(phases, s.CompletedPhases...)
		return SessionUpdate{CompletedPhases: append(phases, phase)}, nil
	})
}

// Archive marks the session completed. Only an active session can be
// archived.
func (m *SessionManager) Archive(ctx context.Context, id string) (*Session, error) {
	return m.setStatus(ctx, "session.archive", id, StatusCompleted)
}

// Pause marks an active session paused.
func (m *SessionManager) Pause(ctx context.Context, id string) (*Session, error) {
	return m.setStatus(ctx, "session.pause", id, StatusPaused)
}

// Fail marks an active session failed.
func (m *SessionManager) Fail(ctx context.Context, id string) (*Session, error) {
	return m.setStatus(ctx, "session.fail", id, StatusFailed)
}

func (m *SessionManager) setStatus(ctx context.Context, op, id string, status Status) (*Session, error) {
	return m.mutate(ctx, op, id, func(*Session) (SessionUpdate, error) {
		return SessionUpdate{Status: status}, nil
	})
}

// List returns sessions, most recently updated first. An empty status
// returns every session.
func (m *SessionManager) List(ctx context.Context, status Status) (sessions []*Session, err error) {
	ctx, done := m.opts.track(ctx, "session.list", "")
	defer func() { done(err) }()

	if status != "" && !status.Valid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	sessions, err = m.store.ListSessions(ctx, &store.ListFilter{Status: status})
	if err != nil {
		return nil, wrapStoreErr("list sessions", err)
	}
	return sessions, nil
}

// mutate loads the session, derives an update from it and writes the result,
// all in one transaction.
func (m *SessionManager) mutate(ctx context.Context, op, id string, build func(*Session) (SessionUpdate, error)) (out *Session, err error) {
	ctx, done := m.opts.track(ctx, op, id)
	defer func() { done(err) }()

	var (
		fields []string
		from   Status
	)
	err = m.store.Atomically(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		from = sess.Status

		upd, err := build(sess.Clone())
		if err != nil {
			return err
		}
		if upd.IsEmpty() {
			out = sess
			return nil
		}
		if fields, err = upd.apply(sess); err != nil {
			return err
		}
		sess.UpdatedAt = m.opts.timestamp()
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr("update session", err)
	}

	if len(fields) > 0 {
		observability.LogSessionUpdated(m.opts.logger, id, fields)
		observability.LogStatusChange(m.opts.logger, id, string(from), string(out.Status))
	}
	return out, nil
}

// normalizeMetadata returns a copy of meta holding the values a JSON round
// trip produces, so numbers are float64 on every backend.
func normalizeMetadata(meta map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(meta) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, invalid("metadata", "not JSON encodable: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, invalid("metadata", "%v", err)
	}
	return out, nil
}
