package sessionstate

import (
	"fmt"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// Manager bundles every component over one store.
type Manager struct {
	Sessions    *SessionManager
	Checkpoints *CheckpointManager
	Recovery    *RecoveryCoordinator
	Retention   *Retention
	Artifacts   *ArtifactLedger

	store store.Store
}

// New creates a Manager whose components share st and opts.
func New(st store.Store, opts ...Option) *Manager {
	return &Manager{
		Sessions:    NewSessionManager(st, opts...),
		Checkpoints: NewCheckpointManager(st, opts...),
		Recovery:    NewRecoveryCoordinator(st, opts...),
		Retention:   NewRetention(st, opts...),
		Artifacts:   NewArtifactLedger(st, opts...),
		store:       st,
	}
}

// Open opens the SQLite database at path and returns a Manager over it.
func Open(path string, opts ...Option) (*Manager, error) {
	o := buildOptions(opts)
	st, err := store.NewSQLiteStore(path, store.WithStoreLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return New(st, opts...), nil
}

// Store returns the underlying store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
