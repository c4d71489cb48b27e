/*
Package sessionstate persists the progress of long-running, multi-phase
workflows so they can resume correctly after a crash or restart.

# Overview

A workflow engine creates a Session, saves a Checkpoint each time it reaches
a phase worth resuming from, and on startup asks the RecoveryCoordinator
where to pick up again:

	st, err := store.NewSQLiteStore("state.db")
	if err != nil {
	    return err
	}
	m := sessionstate.New(st, sessionstate.WithLogger(logger))
	defer m.Close()

	sess, err := m.Sessions.Create(ctx, "nightly-build", nil)
	if err != nil {
	    return err
	}
	if _, err := m.Checkpoints.Save(ctx, sess.ID, "plan", planState); err != nil {
	    return err
	}

	// after a restart
	res, err := m.Recovery.Recover(ctx, sess.ID)
	if err != nil {
	    return err
	}
	if res == nil {
	    // unknown session
	}
	var state PlanState
	if err := res.Decode(&state); err != nil {
	    return err
	}
	resumeAt(res.StartPhase(), state)

# Absent Records

Read paths (Get, Last, Recover, Restore, Update) return nil and a nil error
for an unknown id. Errors are reserved for invalid input (*ValidationError)
and backend failures (*StoreError). Write paths that need an existing session
(Save, ArtifactLedger.Record) return ErrSessionNotFound.

# Atomicity

Saving a checkpoint inserts the checkpoint and advances the session's
current phase in one transaction, so Session.CurrentPhase always names the
phase of the latest checkpoint unless Restore deliberately moved it back.
Update, Restore, Recover, Record and DeleteOld are transactional too.

# Status

Status changes are always requested by the caller and checked by
CanTransition. A completed session is terminal until Retention deletes it.

# Concurrency

Every component is safe for concurrent use and keeps no state between calls;
each read goes to the store. Several processes may share one SQLite file.
*/
package sessionstate
