package sessionstate_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// stepClock returns strictly increasing times, one second apart.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// Advance moves the clock forward without returning a time.
func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// backends lists the stores every behavioural test runs against.
var backends = []struct {
	name string
	open func(t *testing.T) store.Store
}{
	{"memory", func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	}},
	{"sqlite", func(t *testing.T) store.Store {
		st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
		require.NoError(t, err)
		return st
	}},
}

// forEachBackend runs fn once per store implementation with a fresh Manager.
func forEachBackend(t *testing.T, fn func(t *testing.T, m *sessionstate.Manager, clock *stepClock), opts ...sessionstate.Option) {
	t.Helper()
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := newStepClock()
			st := b.open(t)
			m := sessionstate.New(st, append([]sessionstate.Option{sessionstate.WithClock(clock.Now)}, opts...)...)
			t.Cleanup(func() { _ = m.Close() })
			fn(t, m, clock)
		})
	}
}

// mustCreate creates a session or fails the test.
func mustCreate(t *testing.T, m *sessionstate.Manager, workflow string) *sessionstate.Session {
	t.Helper()
	sess, err := m.Sessions.Create(context.Background(), workflow, nil)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

// mustSave saves a checkpoint or fails the test.
func mustSave(t *testing.T, m *sessionstate.Manager, sessionID, phase string, data any) *sessionstate.Checkpoint {
	t.Helper()
	cp, err := m.Checkpoints.Save(context.Background(), sessionID, phase, data)
	require.NoError(t, err)
	require.NotNil(t, cp)
	return cp
}

var errDiskFull = errors.New("disk full")

// failingUpdates is a store whose session updates always fail, inside and
// outside transactions.
type failingUpdates struct {
	store.Store
}

func (f failingUpdates) UpdateSession(context.Context, *store.Session) error {
	return errDiskFull
}

func (f failingUpdates) Atomically(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.Atomically(ctx, func(tx store.Store) error {
		return fn(failingUpdates{Store: tx})
	})
}

// failingReads is a store whose reads fail.
type failingReads struct {
	store.Store
}

func (f failingReads) GetSession(context.Context, string) (*store.Session, error) {
	return nil, errDiskFull
}

func (f failingReads) Atomically(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.Atomically(ctx, func(tx store.Store) error {
		return fn(failingReads{Store: tx})
	})
}
