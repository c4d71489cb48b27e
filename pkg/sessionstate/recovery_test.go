package sessionstate_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
)

func TestRecovery_ResumesFromLastCheckpoint(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "cycle")
		mustSave(t, m, sess.ID, "plan", map[string]any{"step": 1})
		mustSave(t, m, sess.ID, "build", map[string]any{"step": 2})
		_, err := m.Sessions.Fail(ctx, sess.ID)
		require.NoError(t, err)

		res, err := m.Recovery.Recover(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, res)

		assert.Equal(t, sessionstate.StatusActive, res.Session.Status)
		assert.Equal(t, "build", res.ResumeFrom)
		assert.Equal(t, "build", res.StartPhase())
		require.NotNil(t, res.Checkpoint)
		assert.JSONEq(t, `{"step":2}`, string(res.Checkpoint.Data))

		data, err := res.Data()
		require.NoError(t, err)
		assert.Equal(t, 2, data.Int("step", 0))

		got, err := m.Sessions.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusActive, got.Status)
	})
}

func TestRecovery_PausedSessionReactivated(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		mustSave(t, m, sess.ID, "plan", nil)
		_, err := m.Sessions.Pause(ctx, sess.ID)
		require.NoError(t, err)

		res, err := m.Recovery.Recover(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusActive, res.Session.Status)
		assert.Equal(t, "plan", res.ResumeFrom)
	})
}

func TestRecovery_WithoutCheckpoint(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		_, err := m.Sessions.Fail(ctx, sess.ID)
		require.NoError(t, err)

		res, err := m.Recovery.Recover(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Nil(t, res.Checkpoint)
		assert.Empty(t, res.ResumeFrom)
		assert.Equal(t, sessionstate.InitialPhase, res.StartPhase())

		// Nothing to resume from, so the status is left alone.
		assert.Equal(t, sessionstate.StatusFailed, res.Session.Status)

		var v map[string]any
		require.NoError(t, res.Decode(&v))
		assert.Empty(t, v)

		data, err := res.Data()
		require.NoError(t, err)
		assert.Equal(t, 0, data.Len())
	})
}

func TestRecovery_CompletedUntouched(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		mustSave(t, m, sess.ID, "done", nil)
		archived, err := m.Sessions.Archive(ctx, sess.ID)
		require.NoError(t, err)

		res, err := m.Recovery.Recover(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sessionstate.StatusCompleted, res.Session.Status)
		assert.Equal(t, "done", res.ResumeFrom)
		assert.True(t, res.Session.UpdatedAt.Equal(archived.UpdatedAt))
	})
}

func TestRecovery_ActiveSessionNotRewritten(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "wf")
		cp := mustSave(t, m, sess.ID, "plan", nil)

		res, err := m.Recovery.Recover(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, res.Session.UpdatedAt.Equal(cp.CreatedAt))
	})
}

func TestRecovery_UnknownSession(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		res, err := m.Recovery.Recover(context.Background(), "nope")
		assert.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestRecovery_ActiveSessions(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		a := mustCreate(t, m, "a")
		b := mustCreate(t, m, "b")
		c := mustCreate(t, m, "c")
		_, err := m.Sessions.Pause(ctx, b.ID)
		require.NoError(t, err)

		active, err := m.Recovery.ActiveSessions(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID, a.ID}, sessionIDs(active))
	})
}

func TestRecovery_RecoverAll(t *testing.T) {
	ctx := context.Background()
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		var ids []string
		for i := range 6 {
			sess := mustCreate(t, m, "wf")
			mustSave(t, m, sess.ID, "phase", map[string]any{"i": i})
			_, err := m.Sessions.Fail(ctx, sess.ID)
			require.NoError(t, err)
			ids = append(ids, sess.ID)
		}
		ids = append(ids, "missing")

		results, err := m.Recovery.RecoverAll(ctx, ids, 3)
		require.NoError(t, err)
		require.Len(t, results, len(ids))

		for i, res := range results[:6] {
			require.NotNil(t, res)
			assert.Equal(t, ids[i], res.Session.ID)
			assert.Equal(t, sessionstate.StatusActive, res.Session.Status)

			var v struct{ I int }
			require.NoError(t, res.Decode(&v))
			assert.Equal(t, i, v.I)
		}
		assert.Nil(t, results[6])
	})
}

func TestRecovery_RecoverAllStopsOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := sessionstate.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, err = m.Recovery.RecoverAll(ctx, []string{"a", "b"}, 0)
	assert.Error(t, err)
}

func TestRecoveryResult_JSON(t *testing.T) {
	res := sessionstate.RecoveryResult{Session: &sessionstate.Session{ID: "abc"}}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "resume_from")
	assert.Contains(t, string(b), `"checkpoint":null`)
}

func TestRecovery_ThreePhaseResume(t *testing.T) {
	forEachBackend(t, func(t *testing.T, m *sessionstate.Manager, _ *stepClock) {
		sess := mustCreate(t, m, "pipeline")
		for i, p := range []string{"plan", "build", "test"} {
			mustSave(t, m, sess.ID, p, buildState{Step: i + 1})
		}

		res, err := m.Recovery.Recover(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "test", res.ResumeFrom)

		var st buildState
		require.NoError(t, res.Decode(&st))
		assert.Equal(t, 3, st.Step)
	})
}
