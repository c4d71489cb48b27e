package sessionstate

import (
	"encoding/json"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/config"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// Record types are defined by the store package.
type (
	Session        = store.Session
	Checkpoint     = store.Checkpoint
	ArtifactRecord = store.ArtifactRecord
	Status         = store.Status
)

// Session statuses.
const (
	StatusActive    = store.StatusActive
	StatusPaused    = store.StatusPaused
	StatusCompleted = store.StatusCompleted
	StatusFailed    = store.StatusFailed
)

// InitialPhase is the phase of a new session and the start phase of a
// recovery without checkpoints.
const InitialPhase = store.InitialPhase

// transitions lists the allowed status changes besides staying put.
var transitions = map[Status][]Status{
	StatusActive: {StatusPaused, StatusFailed, StatusCompleted},
	StatusPaused: {StatusActive},
	StatusFailed: {StatusActive},
}

// CanTransition reports whether a session may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SessionUpdate describes a partial update. Zero-valued fields are left
// unchanged.
type SessionUpdate struct {
	// CurrentPhase overwrites the current phase when non-empty.
	CurrentPhase string

	// Status overwrites the status when non-empty. The change must satisfy
	// CanTransition.
	Status Status

	// CompletedPhases overwrites the phase history when non-nil. It must
	// start with the stored history.
	CompletedPhases []string

	// Artifacts are merged into the stored artifacts when non-nil.
	Artifacts map[string]string

	// Metadata is merged into the stored metadata when non-nil.
	Metadata map[string]any
}

// IsEmpty reports whether the update supplies no fields.
func (u SessionUpdate) IsEmpty() bool {
	return u.CurrentPhase == "" && u.Status == "" && u.CompletedPhases == nil &&
		u.Artifacts == nil && u.Metadata == nil
}

// apply mutates s and returns the names of the supplied fields.
func (u SessionUpdate) apply(s *Session) ([]string, error) {
	var fields []string

	if u.Status != "" {
		if !u.Status.Valid() {
			return nil, invalid("status", "unknown status %q", u.Status)
		}
		if !CanTransition(s.Status, u.Status) {
			return nil, &ValidationError{
				Field:   "status",
				Message: string(s.Status) + " -> " + string(u.Status),
				Err:     ErrInvalidTransition,
			}
		}
		s.Status = u.Status
		fields = append(fields, "status")
	}

	if u.CompletedPhases != nil {
		if !hasPrefix(u.CompletedPhases, s.CompletedPhases) {
			return nil, &ValidationError{
				Field:   "completed_phases",
				Message: "new history does not start with the stored history",
				Err:     ErrPhaseHistoryRewrite,
			}
		}
		s.CompletedPhases = append([]string{}, u.CompletedPhases...)
		fields = append(fields, "completed_phases")
	}

	if u.CurrentPhase != "" {
		s.CurrentPhase = u.CurrentPhase
		fields = append(fields, "current_phase")
	}

	if u.Artifacts != nil {
		if s.Artifacts == nil {
			s.Artifacts = make(map[string]string, len(u.Artifacts))
		}
		for k, v := range u.Artifacts {
			s.Artifacts[k] = v
		}
		fields = append(fields, "artifacts")
	}

	if u.Metadata != nil {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			s.Metadata[k] = v
		}
		fields = append(fields, "metadata")
	}

	return fields, nil
}

func hasPrefix(list, prefix []string) bool {
	if len(prefix) > len(list) {
		return false
	}
	for i := range prefix {
		if list[i] != prefix[i] {
			return false
		}
	}
	return true
}

// RecoveryResult is the resumable context for a session.
type RecoveryResult struct {
	Session *Session `json:"session"`

	// Checkpoint is the latest checkpoint, nil if the session never saved one.
	Checkpoint *Checkpoint `json:"checkpoint"`

	// ResumeFrom is the checkpoint's phase, empty without a checkpoint.
	ResumeFrom string `json:"resume_from,omitempty"`
}

// StartPhase returns the phase to re-enter: ResumeFrom, or InitialPhase when
// there is no checkpoint.
func (r *RecoveryResult) StartPhase() string {
	if r.Checkpoint == nil {
		return InitialPhase
	}
	return r.ResumeFrom
}

// Decode unmarshals the checkpoint data into v. Without a checkpoint v is
// decoded from an empty object.
func (r *RecoveryResult) Decode(v any) error {
	if r.Checkpoint == nil {
		return json.Unmarshal(store.EmptyData, v)
	}
	return r.Checkpoint.Decode(v)
}

// Data returns the checkpoint data as a typed map.
func (r *RecoveryResult) Data() (config.Map, error) {
	if r.Checkpoint == nil {
		return config.New(nil), nil
	}
	return config.FromRaw(r.Checkpoint.Data)
}
