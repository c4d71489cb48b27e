package sessionstate_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		meta := map[string]any{"owner": "ops", "priority": 2.0, "retries": 3, "tags": []string{"a"}}
		created, err := m.Sessions.Create(ctx, "cycle", meta)
		require.NoError(t, err)

		assert.Len(t, created.ID, 12)
		assert.Equal(t, "cycle", created.WorkflowName)
		assert.Equal(t, sessionstate.InitialPhase, created.CurrentPhase)
		assert.Equal(t, sessionstate.StatusActive, created.Status)
		assert.Empty(t, created.CompletedPhases)
		assert.Empty(t, created.Artifacts)
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)
		assert.Equal(t, map[string]any{
			"owner":    "ops",
			"priority": 2.0,
			"retries":  3.0,
			"tags":     []any{"a"},
		}, created.Metadata)

		got, err := m.Sessions.Get(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.WorkflowName, got.WorkflowName)
		assert.Equal(t, created.CurrentPhase, got.CurrentPhase)
		assert.Equal(t, created.Status, got.Status)
		assert.Equal(t, created.Metadata, got.Metadata)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

		// The caller's map is copied, not retained.
		meta["owner"] = "changed"
		got, err = m.Sessions.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ops", got.Metadata["owner"])
	})
}

func TestSessionManager_CreateValidation(t *testing.T) {
	m := sessionstate.New(store.NewMemoryStore())
	for _, name := range []string{"", "   "} {
		sess, err := m.Sessions.Create(context.Background(), name, nil)
		assert.Nil(t, sess)

		var ve *sessionstate.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "workflow_name", ve.Field)
	}
}

func TestSessionManager_CreateRetriesIDCollision(t *testing.T) {
	ids := []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	next := 0
	gen := func(int) string {
		id := ids[next]
		next++
		return id
	}
	m := sessionstate.New(store.NewMemoryStore(), sessionstate.WithIDGenerator(gen))

	first := mustCreate(t, m, "wf")
	second := mustCreate(t, m, "wf")
	assert.Equal(t, "aaaaaaaaaaaa", first.ID)
	assert.Equal(t, "bbbbbbbbbbbb", second.ID)
}

func TestSessionManager_GetUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess, err := m.Sessions.Get(context.Background(), "nope")
		assert.NoError(t, err)
		assert.Nil(t, sess)
	})
}

func TestSessionManager_UpdateMerges(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		_, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
			Artifacts: map[string]string{"a": "1"},
			Metadata:  map[string]any{"x": "1", "keep": true},
		})
		require.NoError(t, err)

		updated, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
			Artifacts: map[string]string{"b": "2"},
			Metadata:  map[string]any{"x": "2", "count": 7},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, updated.Artifacts)
		assert.Equal(t, map[string]any{"x": "2", "keep": true, "count": 7.0}, updated.Metadata)
		assert.True(t, updated.UpdatedAt.After(sess.UpdatedAt))

		got, err := m.Sessions.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.Artifacts, got.Artifacts)
		assert.Equal(t, updated.Metadata, got.Metadata)
	})
}

func TestSessionManager_MetadataMustEncode(t *testing.T) {
	ctx := context.Background()
	m := sessionstate.New(store.NewMemoryStore())

	_, err := m.Sessions.Create(ctx, "wf", map[string]any{"ch": make(chan int)})
	var ve *sessionstate.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "metadata", ve.Field)

	sess := mustCreate(t, m, "wf")
	_, err = m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
		Metadata: map[string]any{"bad": math.Inf(1)},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "metadata", ve.Field)
}

func TestSessionManager_UpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		updated, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
			CurrentPhase:    "build",
			Status:          sessionstate.StatusPaused,
			CompletedPhases: []string{"plan"},
		})
		require.NoError(t, err)
		assert.Equal(t, "build", updated.CurrentPhase)
		assert.Equal(t, sessionstate.StatusPaused, updated.Status)
		assert.Equal(t, []string{"plan"}, updated.CompletedPhases)
	})
}

func TestSessionManager_UpdateEmptyDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		got, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.UpdatedAt.Equal(sess.UpdatedAt))
	})
}

func TestSessionManager_UpdateUnknown(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess, err := m.Sessions.Update(context.Background(), "nope", sessionstate.SessionUpdate{CurrentPhase: "x"})
		assert.NoError(t, err)
		assert.Nil(t, sess)
	})
}

func TestSessionManager_UpdateRejectsUnknownStatus(t *testing.T) {
	m := sessionstate.New(store.NewMemoryStore())
	sess := mustCreate(t, m, "wf")

	_, err := m.Sessions.Update(context.Background(), sess.ID, sessionstate.SessionUpdate{Status: "running"})
	assert.True(t, sessionstate.IsValidationError(err))
}

func TestSessionManager_UpdateRejectsHistoryRewrite(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		_, err := m.Sessions.CompletePhase(ctx, sess.ID, "plan")
		require.NoError(t, err)
		_, err = m.Sessions.CompletePhase(ctx, sess.ID, "build")
		require.NoError(t, err)

		for _, phases := range [][]string{{}, {"plan"}, {"build", "plan"}, {"plan", "test"}} {
			_, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{CompletedPhases: phases})
			assert.ErrorIs(t, err, sessionstate.ErrPhaseHistoryRewrite, "phases %v", phases)
			assert.True(t, sessionstate.IsValidationError(err))
		}

		// Extending is fine.
		got, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
			CompletedPhases: []string{"plan", "build", "test"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"plan", "build", "test"}, got.CompletedPhases)
	})
}

func TestSessionManager_RejectedUpdateWritesNothing(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		_, err := m.Sessions.Archive(ctx, sess.ID)
		require.NoError(t, err)

		_, err = m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{
			CurrentPhase: "build",
			Status:       sessionstate.StatusActive,
		})
		assert.ErrorIs(t, err, sessionstate.ErrInvalidTransition)

		got, err := m.Sessions.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.InitialPhase, got.CurrentPhase)
		assert.Equal(t, sessionstate.StatusCompleted, got.Status)
	})
}

func TestSessionManager_CompletePhase(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		phases := []string{"plan", "build", "test", "build"}
		var got *sessionstate.Session
		for _, p := range phases {
			var err error
			got, err = m.Sessions.CompletePhase(ctx, sess.ID, p)
			require.NoError(t, err)
		}
		assert.Equal(t, phases, got.CompletedPhases)

		_, err := m.Sessions.CompletePhase(ctx, sess.ID, " ")
		assert.True(t, sessionstate.IsValidationError(err))

		missing, err := m.Sessions.CompletePhase(ctx, "nope", "plan")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestSessionManager_StatusMarks(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		got, err := m.Sessions.Pause(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusPaused, got.Status)

		// paused -> failed is not allowed.
		_, err = m.Sessions.Fail(ctx, sess.ID)
		assert.ErrorIs(t, err, sessionstate.ErrInvalidTransition)

		got, err = m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{Status: sessionstate.StatusActive})
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusActive, got.Status)

		got, err = m.Sessions.Fail(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusFailed, got.Status)

		// Only active sessions can be archived.
		_, err = m.Sessions.Archive(ctx, sess.ID)
		assert.ErrorIs(t, err, sessionstate.ErrInvalidTransition)

		missing, err := m.Sessions.Archive(ctx, "nope")
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestSessionManager_ArchiveIsTerminal(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")

		got, err := m.Sessions.Archive(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusCompleted, got.Status)

		// Archiving again is a no-op transition.
		_, err = m.Sessions.Archive(ctx, sess.ID)
		require.NoError(t, err)

		for _, s := range []sessionstate.Status{sessionstate.StatusActive, sessionstate.StatusPaused, sessionstate.StatusFailed} {
			_, err := m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{Status: s})
			assert.ErrorIs(t, err, sessionstate.ErrInvalidTransition, "completed -> %s", s)
		}
	})
}

func TestSessionManager_List(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		a := mustCreate(t, m, "a")
		b := mustCreate(t, m, "b")
		c := mustCreate(t, m, "c")

		// Touch a so it becomes the most recently updated.
		_, err := m.Sessions.CompletePhase(ctx, a.ID, "plan")
		require.NoError(t, err)
		_, err = m.Sessions.Pause(ctx, b.ID)
		require.NoError(t, err)

		all, err := m.Sessions.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{b.ID, a.ID, c.ID}, sessionIDs(all))

		active, err := m.Sessions.List(ctx, sessionstate.StatusActive)
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID, c.ID}, sessionIDs(active))

		none, err := m.Sessions.List(ctx, sessionstate.StatusFailed)
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = m.Sessions.List(ctx, "bogus")
		assert.True(t, sessionstate.IsValidationError(err))
	})
}

func TestSessionManager_StoreErrorsSurface(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	sess := mustCreate(t, sessionstate.New(st), "wf")

	m := sessionstate.New(failingReads{Store: st})

	_, err := m.Sessions.Get(ctx, sess.ID)
	require.Error(t, err)
	assert.True(t, sessionstate.IsStoreError(err))
	assert.ErrorIs(t, err, errDiskFull)

	_, err = m.Sessions.Update(ctx, sess.ID, sessionstate.SessionUpdate{CurrentPhase: "x"})
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, sessionstate.IsStoreError(err))

	var se *sessionstate.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "update session", se.Op)
}

func TestSessionManager_UsesClock(t *testing.T) {
	fixed := time.Date(2030, 6, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	m := sessionstate.New(store.NewMemoryStore(), sessionstate.WithClock(func() time.Time { return fixed }))

	sess := mustCreate(t, m, "wf")
	assert.True(t, sess.CreatedAt.Equal(fixed))
	assert.Equal(t, time.UTC, sess.CreatedAt.Location())
}

func sessionIDs(sessions []*sessionstate.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
