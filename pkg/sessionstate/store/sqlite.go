package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	serrors "github.com/randalmurphal/sessionstate/pkg/sessionstate/errors"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in schema_migrations once the schema is applied.
const schemaVersion = 1

// timeLayout is fixed width so that text comparison in SQL orders
// timestamps chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultBusyTimeout is how long a connection waits on a locked database
// before SQLite reports SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteStore persists sessions and checkpoints to a SQLite database file.
// Several processes may open the same file; SQLite serializes their writes.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	mu      sync.RWMutex
	closed  bool
	handler *serrors.Handler
}

type sqliteConfig struct {
	busyTimeout time.Duration
	retry       serrors.RetryConfig
	logger      *slog.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*sqliteConfig)

// WithBusyTimeout sets the SQLite busy_timeout pragma.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(c *sqliteConfig) {
		c.busyTimeout = d
	}
}

// WithRetry sets the policy used when the database reports lock contention.
func WithRetry(cfg serrors.RetryConfig) SQLiteOption {
	return func(c *sqliteConfig) {
		c.retry = cfg
	}
}

// WithStoreLogger sets the logger used to report contention retries.
func WithStoreLogger(logger *slog.Logger) SQLiteOption {
	return func(c *sqliteConfig) {
		c.logger = logger
	}
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. The path is a file path or ":memory:" for a private database.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	cfg := sqliteConfig{
		busyTimeout: DefaultBusyTimeout,
		retry:       serrors.DefaultRetry,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, cfg.busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	handlerOpts := []serrors.HandlerOption{serrors.WithRetryConfig(cfg.retry)}
	if cfg.logger != nil {
		handlerOpts = append(handlerOpts, serrors.WithLogger(cfg.logger))
	}

	return &SQLiteStore{
		db:      db,
		path:    path,
		handler: serrors.NewHandler(handlerOpts...),
	}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		schemaVersion, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// SchemaVersion returns the highest applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, wrapErr("read schema version", err)
	}
	return version, nil
}

// read runs fn under the read lock with contention retry.
func (s *SQLiteStore) read(ctx context.Context, op string, fn func(q sqlOps) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.handler.Execute(ctx, op, func(ctx context.Context) error {
		return fn(sqlOps{q: s.db})
	})
}

// InsertSession implements Store.
func (s *SQLiteStore) InsertSession(ctx context.Context, sess *Session) error {
	return s.Atomically(ctx, func(tx Store) error {
		return tx.InsertSession(ctx, sess)
	})
}

// GetSession implements Store.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var out *Session
	err := s.read(ctx, "get session", func(q sqlOps) error {
		var err error
		out, err = q.getSession(ctx, id)
		return err
	})
	return out, err
}

// UpdateSession implements Store.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *Session) error {
	return s.Atomically(ctx, func(tx Store) error {
		return tx.UpdateSession(ctx, sess)
	})
}

// ListSessions implements Store.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter *ListFilter) ([]*Session, error) {
	var out []*Session
	err := s.read(ctx, "list sessions", func(q sqlOps) error {
		var err error
		out, err = q.listSessions(ctx, filter)
		return err
	})
	return out, err
}

// InsertCheckpoint implements Store.
func (s *SQLiteStore) InsertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	return s.Atomically(ctx, func(tx Store) error {
		return tx.InsertCheckpoint(ctx, cp)
	})
}

// GetCheckpoint implements Store.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	var out *Checkpoint
	err := s.read(ctx, "get checkpoint", func(q sqlOps) error {
		var err error
		out, err = q.getCheckpoint(ctx, id)
		return err
	})
	return out, err
}

// LastCheckpoint implements Store.
func (s *SQLiteStore) LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	var out *Checkpoint
	err := s.read(ctx, "last checkpoint", func(q sqlOps) error {
		var err error
		out, err = q.lastCheckpoint(ctx, sessionID)
		return err
	})
	return out, err
}

// ListCheckpoints implements Store.
func (s *SQLiteStore) ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	var out []*Checkpoint
	err := s.read(ctx, "list checkpoints", func(q sqlOps) error {
		var err error
		out, err = q.listCheckpoints(ctx, sessionID)
		return err
	})
	return out, err
}

// InsertArtifact implements Store.
func (s *SQLiteStore) InsertArtifact(ctx context.Context, a *ArtifactRecord) error {
	return s.Atomically(ctx, func(tx Store) error {
		return tx.InsertArtifact(ctx, a)
	})
}

// ListArtifacts implements Store.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error) {
	var out []*ArtifactRecord
	err := s.read(ctx, "list artifacts", func(q sqlOps) error {
		var err error
		out, err = q.listArtifacts(ctx, sessionID)
		return err
	})
	return out, err
}

// DeleteCompletedBefore implements Store.
func (s *SQLiteStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.Atomically(ctx, func(tx Store) error {
		var err error
		n, err = tx.DeleteCompletedBefore(ctx, cutoff)
		return err
	})
	return n, err
}

// Atomically implements Store. The whole transaction is retried when SQLite
// reports the database busy or locked.
func (s *SQLiteStore) Atomically(ctx context.Context, fn func(tx Store) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	return s.handler.Execute(ctx, "transaction", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return wrapErr("begin transaction", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		if err := fn(&sqliteTx{ops: sqlOps{q: tx}}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return wrapErr("commit transaction", err)
		}
		return nil
	})
}

// Backup writes a consistent copy of the database to dst using VACUUM INTO.
// dst must not already exist.
func (s *SQLiteStore) Backup(ctx context.Context, dst string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup destination %s already exists", dst)
	}

	return s.handler.Execute(ctx, "backup", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
			return wrapErr("backup database", err)
		}
		return nil
	})
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// sqliteTx is the transaction-bound view handed to Atomically callbacks.
type sqliteTx struct {
	ops sqlOps
}

func (t *sqliteTx) InsertSession(ctx context.Context, s *Session) error {
	return t.ops.insertSession(ctx, s)
}

func (t *sqliteTx) GetSession(ctx context.Context, id string) (*Session, error) {
	return t.ops.getSession(ctx, id)
}

func (t *sqliteTx) UpdateSession(ctx context.Context, s *Session) error {
	return t.ops.updateSession(ctx, s)
}

func (t *sqliteTx) ListSessions(ctx context.Context, filter *ListFilter) ([]*Session, error) {
	return t.ops.listSessions(ctx, filter)
}

func (t *sqliteTx) InsertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	return t.ops.insertCheckpoint(ctx, cp)
}

func (t *sqliteTx) GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	return t.ops.getCheckpoint(ctx, id)
}

func (t *sqliteTx) LastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	return t.ops.lastCheckpoint(ctx, sessionID)
}

func (t *sqliteTx) ListCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	return t.ops.listCheckpoints(ctx, sessionID)
}

func (t *sqliteTx) InsertArtifact(ctx context.Context, a *ArtifactRecord) error {
	return t.ops.insertArtifact(ctx, a)
}

func (t *sqliteTx) ListArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error) {
	return t.ops.listArtifacts(ctx, sessionID)
}

func (t *sqliteTx) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return t.ops.deleteCompletedBefore(ctx, cutoff)
}

// Atomically joins the enclosing transaction.
func (t *sqliteTx) Atomically(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

// Close is a no-op; the transaction ends with its Atomically call.
func (t *sqliteTx) Close() error {
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlOps holds the SQL for every store operation, independent of whether it
// runs inside a transaction.
type sqlOps struct {
	q querier
}

const sessionColumns = `id, workflow_name, current_phase, status, completed_phases,
	artifacts, metadata, created_at, updated_at`

const checkpointColumns = `id, session_id, phase, sequence, data, created_at`

func (o sqlOps) insertSession(ctx context.Context, s *Session) error {
	phases, artifacts, metadata, err := encodeSession(s)
	if err != nil {
		return err
	}
	_, err = o.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.WorkflowName, s.CurrentPhase, string(s.Status), phases, artifacts, metadata,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return wrapErr("insert session", err)
	}
	return nil
}

func (o sqlOps) getSession(ctx context.Context, id string) (*Session, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get session", err)
	}
	return s, nil
}

func (o sqlOps) updateSession(ctx context.Context, s *Session) error {
	phases, artifacts, metadata, err := encodeSession(s)
	if err != nil {
		return err
	}
	res, err := o.q.ExecContext(ctx, `
		UPDATE sessions SET
			workflow_name = ?, current_phase = ?, status = ?, completed_phases = ?,
			artifacts = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, s.WorkflowName, s.CurrentPhase, string(s.Status), phases, artifacts, metadata,
		formatTime(s.UpdatedAt), s.ID)
	if err != nil {
		return wrapErr("update session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("update session", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (o sqlOps) listSessions(ctx context.Context, filter *ListFilter) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var (
		where []string
		args  []any
	)
	if filter != nil && filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter != nil && filter.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, created_at DESC, id"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list sessions", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr("scan session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate sessions", err)
	}
	return sessions, nil
}

func (o sqlOps) sessionExists(ctx context.Context, id string) error {
	var one int
	err := o.q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrapErr("check session", err)
	}
	return nil
}

func (o sqlOps) insertCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if err := o.sessionExists(ctx, cp.SessionID); err != nil {
		return err
	}
	data := cp.Data
	if len(data) == 0 {
		data = EmptyData
	}

	err := o.q.QueryRowContext(ctx, `
		INSERT INTO checkpoints (id, session_id, phase, sequence, data, created_at)
		VALUES (
			?, ?, ?,
			COALESCE((SELECT MAX(sequence) FROM checkpoints WHERE session_id = ?), 0) + 1,
			?, ?
		)
		RETURNING sequence
	`, cp.ID, cp.SessionID, cp.Phase, cp.SessionID, string(data), formatTime(cp.CreatedAt)).Scan(&cp.Sequence)
	if err != nil {
		return wrapErr("insert checkpoint", err)
	}
	return nil
}

func (o sqlOps) getCheckpoint(ctx context.Context, id string) (*Checkpoint, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("get checkpoint", err)
	}
	return cp, nil
}

func (o sqlOps) lastCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := o.q.QueryRowContext(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at DESC, sequence DESC
		LIMIT 1
	`, sessionID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("last checkpoint", err)
	}
	return cp, nil
}

func (o sqlOps) listCheckpoints(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT `+checkpointColumns+` FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at ASC, sequence ASC
	`, sessionID)
	if err != nil {
		return nil, wrapErr("list checkpoints", err)
	}
	defer rows.Close()

	checkpoints := []*Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, wrapErr("scan checkpoint", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate checkpoints", err)
	}
	return checkpoints, nil
}

func (o sqlOps) insertArtifact(ctx context.Context, a *ArtifactRecord) error {
	if err := o.sessionExists(ctx, a.SessionID); err != nil {
		return err
	}
	_, err := o.q.ExecContext(ctx, `
		INSERT INTO session_artifacts (id, session_id, name, path, checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.SessionID, a.Name, a.Path, a.Checksum, formatTime(a.CreatedAt))
	if err != nil {
		return wrapErr("insert artifact", err)
	}
	return nil
}

func (o sqlOps) listArtifacts(ctx context.Context, sessionID string) ([]*ArtifactRecord, error) {
	rows, err := o.q.QueryContext(ctx, `
		SELECT id, session_id, name, path, checksum, created_at
		FROM session_artifacts
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, wrapErr("list artifacts", err)
	}
	defer rows.Close()

	records := []*ArtifactRecord{}
	for rows.Next() {
		var (
			a         ArtifactRecord
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Name, &a.Path, &a.Checksum, &createdAt); err != nil {
			return nil, wrapErr("scan artifact", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate artifacts", err)
	}
	return records, nil
}

func (o sqlOps) deleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const expired = `SELECT id FROM sessions WHERE status = 'completed' AND updated_at < ?`
	ts := formatTime(cutoff)

	if _, err := o.q.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id IN (`+expired+`)`, ts); err != nil {
		return 0, wrapErr("delete checkpoints", err)
	}
	if _, err := o.q.ExecContext(ctx, `DELETE FROM session_artifacts WHERE session_id IN (`+expired+`)`, ts); err != nil {
		return 0, wrapErr("delete artifacts", err)
	}
	res, err := o.q.ExecContext(ctx, `DELETE FROM sessions WHERE status = 'completed' AND updated_at < ?`, ts)
	if err != nil {
		return 0, wrapErr("delete sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete sessions", err)
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                           Session
		status                      string
		phases, artifacts, metadata string
		createdAt, updatedAt        string
	)
	if err := row.Scan(&s.ID, &s.WorkflowName, &s.CurrentPhase, &status, &phases,
		&artifacts, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	if err := json.Unmarshal([]byte(phases), &s.CompletedPhases); err != nil {
		return nil, fmt.Errorf("decode completed_phases of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(artifacts), &s.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &s.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", s.ID, err)
	}
	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	s.normalize()
	return &s, nil
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		data      string
		createdAt string
	)
	if err := row.Scan(&cp.ID, &cp.SessionID, &cp.Phase, &cp.Sequence, &data, &createdAt); err != nil {
		return nil, err
	}
	cp.Data = json.RawMessage(data)
	var err error
	if cp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &cp, nil
}

func encodeSession(s *Session) (phases, artifacts, metadata string, err error) {
	c := s.Clone()
	c.normalize()
	p, err := json.Marshal(c.CompletedPhases)
	if err != nil {
		return "", "", "", fmt.Errorf("encode completed_phases: %w", err)
	}
	a, err := json.Marshal(c.Artifacts)
	if err != nil {
		return "", "", "", fmt.Errorf("encode artifacts: %w", err)
	}
	m, err := json.Marshal(c.Metadata)
	if err != nil {
		return "", "", "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(p), string(a), string(m), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// wrapErr annotates a driver error with the operation. Lock contention
// becomes a BusyError so the retry handler treats it as transient, and key
// collisions become ErrDuplicateID.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return &serrors.BusyError{Op: op, Err: err}
	}
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateID)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isPrimaryKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
