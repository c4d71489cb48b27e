package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.Mutex
	data   *memData
	closed bool
}

// memData is the full contents of a MemoryStore. Atomically works on a
// clone and swaps it in on success.
type memData struct {
	sessions    map[string]*Session
	checkpoints map[string]*Checkpoint
	artifacts   map[string]*ArtifactRecord
	sequences   map[string]int // sessionID -> last assigned sequence
}

func newMemData() *memData {
	return &memData{
		sessions:    make(map[string]*Session),
		checkpoints: make(map[string]*Checkpoint),
		artifacts:   make(map[string]*ArtifactRecord),
		sequences:   make(map[string]int),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.sessions {
		c.sessions[k] = v.Clone()
	}
	for k, v := range d.checkpoints {
		c.checkpoints[k] = v.Clone()
	}
	for k, v := range d.artifacts {
		c.artifacts[k] = v.Clone()
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	return c
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

// view runs fn with the lock held against the live data.
func (m *MemoryStore) view(fn func(v *memView) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	return fn(&memView{d: m.data})
}

// InsertSession implements Store.
func (m *MemoryStore) InsertSession(ctx context.Context, s *Session) error {
	return m.view(func(v *memView) error { return v.InsertSession(ctx, s) })
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var out *Session
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.GetSession(ctx, id)
		return err
	})
	return out, err
}

// UpdateSession implements Store.
func (m *MemoryStore) UpdateSession(ctx context.Context, s *Session) error {
	return m.view(func(v *memView) error { return v.UpdateSession(ctx, s) })
}

// ListSessions implements Store.
func (m *MemoryStore) ListSessions(ctx context.Context, filter *ListFilter) ([]*Session, error) {
	var out []*Session
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.ListSessions(ctx, filter)
		return err
	})
	return out, err
}

// InsertCheckpoint implements Store.
func (m *MemoryStore) InsertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	return m.view(func(v *memView) error { return v.InsertCheckpoint(ctx, cp) })
}

// GetCheckpoint implements Store.
func (m *MemoryStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	var out *Checkpoint
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.GetCheckpoint(ctx, id)
		return err
	})
	return out, err
}

// LastCheckpoint implements Store.
func (m *MemoryStore) LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	var out *Checkpoint
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.LastCheckpoint(ctx, sessionID)
		return err
	})
	return out, err
}

// ListCheckpoints implements Store.
func (m *MemoryStore) ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	var out []*Checkpoint
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.ListCheckpoints(ctx, sessionID)
		return err
	})
	return out, err
}

// InsertArtifact implements Store.
func (m *MemoryStore) InsertArtifact(ctx context.Context, a *ArtifactRecord) error {
	return m.view(func(v *memView) error { return v.InsertArtifact(ctx, a) })
}

// ListArtifacts implements Store.
func (m *MemoryStore) ListArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error) {
	var out []*ArtifactRecord
	err := m.view(func(v *memView) error {
		var err error
		out, err = v.ListArtifacts(ctx, sessionID)
		return err
	})
	return out, err
}

// DeleteCompletedBefore implements Store.
func (m *MemoryStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := m.view(func(v *memView) error {
		var err error
		n, err = v.DeleteCompletedBefore(ctx, cutoff)
		return err
	})
	return n, err
}

// Atomically implements Store. fn sees a private copy of the data which
// replaces the live data only if fn returns nil.
func (m *MemoryStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := m.data.clone()
	if err := fn(&memView{d: snapshot}); err != nil {
		return err
	}
	m.data = snapshot
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = newMemData()
	return nil
}

// memView implements Store over a memData without locking. The owning
// MemoryStore holds its lock for the lifetime of the view.
type memView struct {
	d *memData
}

func (v *memView) InsertSession(_ context.Context, s *Session) error {
	if _, ok := v.d.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	c := s.Clone()
	c.normalize()
	v.d.sessions[s.ID] = c
	return nil
}

func (v *memView) GetSession(_ context.Context, id string) (*Session, error) {
	s, ok := v.d.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (v *memView) UpdateSession(_ context.Context, s *Session) error {
	old, ok := v.d.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	c := s.Clone()
	c.normalize()
	c.CreatedAt = old.CreatedAt
	v.d.sessions[s.ID] = c
	return nil
}

func (v *memView) ListSessions(_ context.Context, filter *ListFilter) ([]*Session, error) {
	sessions := []*Session{}
	for _, s := range v.d.sessions {
		if filter.matches(s) {
			sessions = append(sessions, s.Clone())
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if filter != nil && filter.Limit > 0 && len(sessions) > filter.Limit {
		sessions = sessions[:filter.Limit]
	}
	return sessions, nil
}

func (v *memView) InsertCheckpoint(_ context.Context, cp *Checkpoint) error {
	if _, ok := v.d.sessions[cp.SessionID]; !ok {
		return ErrNotFound
	}
	if _, ok := v.d.checkpoints[cp.ID]; ok {
		return ErrDuplicateID
	}
	v.d.sequences[cp.SessionID]++
	cp.Sequence = v.d.sequences[cp.SessionID]

	c := cp.Clone()
	if len(c.Data) == 0 {
		c.Data = append(c.Data, EmptyData...)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	v.d.checkpoints[cp.ID] = c
	return nil
}

func (v *memView) GetCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	cp, ok := v.d.checkpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.Clone(), nil
}

func (v *memView) LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	all, _ := v.ListCheckpoints(ctx, sessionID)
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[len(all)-1], nil
}

func (v *memView) ListCheckpoints(_ context.Context, sessionID string) ([]*Checkpoint, error) {
	checkpoints := []*Checkpoint{}
	for _, cp := range v.d.checkpoints {
		if cp.SessionID == sessionID {
			checkpoints = append(checkpoints, cp.Clone())
		}
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		a, b := checkpoints[i], checkpoints[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Sequence < b.Sequence
	})
	return checkpoints, nil
}

func (v *memView) InsertArtifact(_ context.Context, a *ArtifactRecord) error {
	if _, ok := v.d.sessions[a.SessionID]; !ok {
		return ErrNotFound
	}
	if _, ok := v.d.artifacts[a.ID]; ok {
		return ErrDuplicateID
	}
	c := a.Clone()
	c.CreatedAt = c.CreatedAt.UTC()
	v.d.artifacts[a.ID] = c
	return nil
}

func (v *memView) ListArtifacts(_ context.Context, sessionID string) ([]*ArtifactRecord, error) {
	records := []*ArtifactRecord{}
	for _, a := range v.d.artifacts {
		if a.SessionID == sessionID {
			records = append(records, a.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (v *memView) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	n := 0
	for id, s := range v.d.sessions {
		if s.Status != StatusCompleted || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		for cid, cp := range v.d.checkpoints {
			if cp.SessionID == id {
				delete(v.d.checkpoints, cid)
			}
		}
		for aid, a := range v.d.artifacts {
			if a.SessionID == id {
				delete(v.d.artifacts, aid)
			}
		}
		delete(v.d.sequences, id)
		delete(v.d.sessions, id)
		n++
	}
	return n, nil
}

// Atomically joins the enclosing transaction.
func (v *memView) Atomically(_ context.Context, fn func(tx Store) error) error {
	return fn(v)
}

// Close is a no-op on a view.
func (v *memView) Close() error {
	return nil
}

// Len returns the number of stored checkpoints.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.checkpoints)
}
