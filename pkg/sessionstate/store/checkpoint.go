package store

import (
	"encoding/json"
	"time"
)

// EmptyData is stored when a checkpoint carries no payload.
var EmptyData = json.RawMessage(`{}`)

// Checkpoint is an immutable snapshot of resumable state for a session at a
// given phase.
type Checkpoint struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`

	// Sequence is assigned by the store and strictly increases per session.
	// It orders checkpoints that share a timestamp.
	Sequence int `json:"sequence"`

	// Data is the caller's JSON-encoded snapshot.
	Data json.RawMessage `json:"data"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the checkpoint.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Data = append(json.RawMessage(nil), c.Data...)
	return &cp
}

// Size returns the payload size in bytes.
func (c *Checkpoint) Size() int {
	return len(c.Data)
}

// Decode unmarshals the checkpoint payload into v.
func (c *Checkpoint) Decode(v any) error {
	data := c.Data
	if len(data) == 0 {
		data = EmptyData
	}
	return json.Unmarshal(data, v)
}

// ArtifactRecord is a ledger entry for an output file produced by a session.
// The referenced file is owned by the caller.
type ArtifactRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Path      string `json:"path"`

	// Checksum is the hex SHA-256 of the file at record time, empty if the
	// file could not be read.
	Checksum string `json:"checksum,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy of the record.
func (a *ArtifactRecord) Clone() *ArtifactRecord {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
