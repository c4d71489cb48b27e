// Package store provides durable storage for workflow sessions and their
// checkpoints.
//
// Two implementations are provided:
//   - SQLiteStore: a single database file shared by every process that opens it
//   - MemoryStore: an isolated in-process store for tests
//
// Both satisfy the same contract, exercised by the contract tests in this
// package.
package store

import (
	"context"
	"errors"
	"time"
)

// Store persists sessions, checkpoints and artifact records.
// Implementations must be safe for concurrent use.
//
// Every call is independently committed. Callers that need several calls to
// succeed or fail together use Atomically.
type Store interface {
	// InsertSession stores a new session.
	// Returns ErrDuplicateID if the ID is taken.
	InsertSession(ctx context.Context, s *Session) error

	// GetSession retrieves a session.
	// Returns ErrNotFound if it doesn't exist.
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpdateSession overwrites every mutable field of an existing session.
	// Returns ErrNotFound if it doesn't exist.
	UpdateSession(ctx context.Context, s *Session) error

	// ListSessions returns sessions ordered by UpdatedAt, newest first.
	// A nil filter matches everything.
	ListSessions(ctx context.Context, filter *ListFilter) ([]*Session, error)

	// InsertCheckpoint appends a checkpoint and assigns its Sequence.
	// Returns ErrNotFound if the owning session doesn't exist and
	// ErrDuplicateID if the checkpoint ID is taken.
	InsertCheckpoint(ctx context.Context, cp *Checkpoint) error

	// GetCheckpoint retrieves a checkpoint by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)

	// LastCheckpoint returns the session's checkpoint with the greatest
	// (CreatedAt, Sequence).
	// Returns ErrNotFound if the session has no checkpoints.
	LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error)

	// ListCheckpoints returns all checkpoints for a session, oldest first.
	// Returns empty slice (not error) if there are none.
	ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error)

	// InsertArtifact appends an artifact ledger entry.
	// Returns ErrNotFound if the owning session doesn't exist.
	InsertArtifact(ctx context.Context, a *ArtifactRecord) error

	// ListArtifacts returns a session's ledger entries, oldest first.
	ListArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error)

	// DeleteCompletedBefore removes completed sessions last updated before
	// cutoff, along with their checkpoints and artifact records.
	// Returns the number of sessions removed.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Atomically runs fn against a view of the store in which every call
	// belongs to one transaction. The transaction commits if fn returns nil
	// and rolls back otherwise. fn must use only the view it is given and may
	// be run more than once if the backend reports lock contention.
	Atomically(ctx context.Context, fn func(tx Store) error) error

	// Close releases any resources (connections, files).
	Close() error
}

// ListFilter specifies criteria for listing sessions.
type ListFilter struct {
	// Status filters by session status.
	Status Status

	// WorkflowName filters by workflow name.
	WorkflowName string

	// Limit is the maximum number of results.
	Limit int
}

func (f *ListFilter) matches(s *Session) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.WorkflowName != "" && s.WorkflowName != f.WorkflowName {
		return false
	}
	return true
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID indicates an insert reused an existing primary key.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)
