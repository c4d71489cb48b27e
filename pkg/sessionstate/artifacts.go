package sessionstate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate/observability"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// ArtifactLedger records the output files a session produces. The files
// themselves belong to the caller; the ledger keeps their location and a
// checksum taken at record time.
type ArtifactLedger struct {
	store store.Store
	opts  options
}

// NewArtifactLedger creates an ArtifactLedger over st.
func NewArtifactLedger(st store.Store, opts ...Option) *ArtifactLedger {
	return &ArtifactLedger{store: st, opts: buildOptions(opts)}
}

// Record adds a ledger entry and merges name -> path into the session's
// artifacts, in one transaction. The checksum is left empty when the file
// can't be read.
func (l *ArtifactLedger) Record(ctx context.Context, sessionID, name, path string) (rec *ArtifactRecord, err error) {
	ctx, done := l.opts.track(ctx, "artifact.record", sessionID)
	defer func() { done(err) }()

	if strings.TrimSpace(name) == "" {
		return nil, invalid("name", "must not be blank")
	}
	if strings.TrimSpace(path) == "" {
		return nil, invalid("path", "must not be blank")
	}

	rec = &ArtifactRecord{
		SessionID: sessionID,
		Name:      name,
		Path:      path,
		Checksum:  fileChecksum(path),
	}

	err = l.store.Atomically(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		rec.CreatedAt = l.opts.timestamp()
		for attempt := 1; ; attempt++ {
			rec.ID = l.opts.newID(artifactIDLength)
			err = tx.InsertArtifact(ctx, rec)
			if !errors.Is(err, store.ErrDuplicateID) || attempt == maxIDAttempts {
				break
			}
		}
		if err != nil {
			return err
		}

		if _, err := (SessionUpdate{Artifacts: map[string]string{name: path}}).apply(sess); err != nil {
			return err
		}
		sess.UpdatedAt = rec.CreatedAt
		return tx.UpdateSession(ctx, sess)
	})
	if err != nil {
		return nil, wrapStoreErr("record artifact", err)
	}

	observability.LogArtifactRecorded(l.opts.logger, sessionID, name, path, rec.Checksum)
	return rec, nil
}

// List returns the session's ledger entries, oldest first.
func (l *ArtifactLedger) List(ctx context.Context, sessionID string) (recs []*ArtifactRecord, err error) {
	ctx, done := l.opts.track(ctx, "artifact.list", sessionID)
	defer func() { done(err) }()

	recs, err = l.store.ListArtifacts(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr("list artifacts", err)
	}
	return recs, nil
}

func fileChecksum(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
