package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/sessionstate/internal/logging"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

// Output formats accepted by -o.
const (
	formatTable = "table"
	formatJSON  = "json"
)

// openManager opens the configured database. The caller must Close it.
func openManager(cmd *cobra.Command) (*sessionstate.Manager, *store.SQLiteStore, error) {
	logger := logging.New(logging.Config{
		Level:  viper.GetString(keyLogLevel),
		Format: viper.GetString(keyLogFormat),
		Output: cmd.ErrOrStderr(),
	})

	path := viper.GetString(keyStorePath)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(path,
		store.WithBusyTimeout(busyTimeout()),
		store.WithRetry(retryConfig()),
		store.WithStoreLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return sessionstate.New(st, sessionstate.WithLogger(logger)), st, nil
}

// withManager runs fn against an open manager and closes it afterwards.
func withManager(cmd *cobra.Command, fn func(m *sessionstate.Manager) error) error {
	m, _, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessions(w io.Writer, sessions []*sessionstate.Session, format string) error {
	switch format {
	case formatJSON:
		if sessions == nil {
			sessions = []*sessionstate.Session{}
		}
		return printJSON(w, sessions)
	case formatTable, "":
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatTable, formatJSON)
	}

	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tPHASE\tSTATUS\tCOMPLETED\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.WorkflowName, s.CurrentPhase, s.Status,
			len(s.CompletedPhases), s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printCheckpoints(w io.Writer, cps []*sessionstate.Checkpoint, format string) error {
	switch format {
	case formatJSON:
		if cps == nil {
			cps = []*sessionstate.Checkpoint{}
		}
		return printJSON(w, cps)
	case formatTable, "":
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, formatTable, formatJSON)
	}

	if len(cps) == 0 {
		_, err := fmt.Fprintln(w, "No checkpoints found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tPHASE\tSIZE\tCREATED")
	for _, cp := range cps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			cp.Sequence, cp.ID, cp.Phase, cp.Size(), cp.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func sessionNotFound(id string) error {
	return fmt.Errorf("session not found: %s", id)
}
