package store

import (
	"fmt"
	"time"
)

// InitialPhase is the phase every new session starts in.
const InitialPhase = "init"

// Status is the lifecycle state of a session.
type Status string

// Session status constants.
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusActive, StatusPaused, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown session status %q", s)
	}
	return st, nil
}

// Session tracks one long-running workflow instance and its progress.
type Session struct {
	ID              string            `json:"id"`
	WorkflowName    string            `json:"workflow_name"`
	CurrentPhase    string            `json:"current_phase"`
	Status          Status            `json:"status"`
	CompletedPhases []string          `json:"completed_phases"`
	Artifacts       map[string]string `json:"artifacts"`
	Metadata        map[string]any    `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.CompletedPhases = append([]string{}, s.CompletedPhases...)
	c.Artifacts = make(map[string]string, len(s.Artifacts))
	for k, v := range s.Artifacts {
		c.Artifacts[k] = v
	}
	c.Metadata = cloneMap(s.Metadata)
	return &c
}

// normalize replaces nil collections with empty ones so that stored and
// loaded sessions compare equal.
func (s *Session) normalize() {
	if s.CompletedPhases == nil {
		s.CompletedPhases = []string{}
	}
	if s.Artifacts == nil {
		s.Artifacts = map[string]string{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
