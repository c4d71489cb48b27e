package sessionstate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusActive, StatusPaused}:    true,
		{StatusActive, StatusFailed}:    true,
		{StatusActive, StatusCompleted}: true,
		{StatusPaused, StatusActive}:    true,
		{StatusFailed, StatusActive}:    true,
	}
	for _, from := range store.Statuses {
		for _, to := range store.Statuses {
			want := from == to || allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSessionUpdate_Apply(t *testing.T) {
	base := func() *Session {
		return &Session{
			ID:              "s1",
			CurrentPhase:    "plan",
			Status:          StatusActive,
			CompletedPhases: []string{"plan"},
			Artifacts:       map[string]string{"a": "1"},
			Metadata:        map[string]any{"k": "v"},
		}
	}

	t.Run("fields reported in order", func(t *testing.T) {
		s := base()
		fields, err := SessionUpdate{
			CurrentPhase:    "build",
			Status:          StatusPaused,
			CompletedPhases: []string{"plan", "build"},
			Artifacts:       map[string]string{"b": "2"},
			Metadata:        map[string]any{"n": 1},
		}.apply(s)
		require.NoError(t, err)
		assert.Equal(t, []string{"status", "completed_phases", "current_phase", "artifacts", "metadata"}, fields)
		assert.Equal(t, "build", s.CurrentPhase)
		assert.Equal(t, StatusPaused, s.Status)
		assert.Equal(t, map[string]string{"a": "1", "b": "2"}, s.Artifacts)
		assert.Equal(t, map[string]any{"k": "v", "n": 1}, s.Metadata)
	})

	t.Run("nil maps initialised", func(t *testing.T) {
		s := &Session{Status: StatusActive}
		_, err := SessionUpdate{Artifacts: map[string]string{"x": "y"}, Metadata: map[string]any{"m": true}}.apply(s)
		require.NoError(t, err)
		assert.Equal(t, "y", s.Artifacts["x"])
		assert.Equal(t, true, s.Metadata["m"])
	})

	t.Run("history copied", func(t *testing.T) {
		s := base()
		phases := []string{"plan", "build"}
		_, err := SessionUpdate{CompletedPhases: phases}.apply(s)
		require.NoError(t, err)
		phases[1] = "mutated"
		assert.Equal(t, []string{"plan", "build"}, s.CompletedPhases)
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := SessionUpdate{Status: "bogus"}.apply(base())
		assert.True(t, IsValidationError(err))
		assert.False(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("failure leaves status alone", func(t *testing.T) {
		s := base()
		s.Status = StatusCompleted
		_, err := SessionUpdate{Status: StatusActive, CurrentPhase: "x"}.apply(s)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, "plan", s.CurrentPhase)
	})
}

func TestSessionUpdate_IsEmpty(t *testing.T) {
	assert.True(t, SessionUpdate{}.IsEmpty())
	assert.False(t, SessionUpdate{CompletedPhases: []string{}}.IsEmpty())
	assert.False(t, SessionUpdate{Metadata: map[string]any{}}.IsEmpty())
	assert.False(t, SessionUpdate{Status: StatusPaused}.IsEmpty())
}

func TestEncodeData_CopiesRaw(t *testing.T) {
	in := json.RawMessage(`{"a":1}`)
	out, err := encodeData(in)
	require.NoError(t, err)
	in[2] = 'b'
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestWrapStoreErr(t *testing.T) {
	assert.NoError(t, wrapStoreErr("op", nil))

	ve := invalid("f", "bad %d", 1)
	assert.Same(t, ve, wrapStoreErr("op", ve))
	assert.Equal(t, "invalid f: bad 1", ve.Error())

	assert.Same(t, ErrSessionNotFound, wrapStoreErr("op", ErrSessionNotFound))

	err := wrapStoreErr("get session", store.ErrStoreClosed)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get session", se.Op)
	assert.ErrorIs(t, err, store.ErrStoreClosed)

	assert.Same(t, err, wrapStoreErr("outer", err))
}
