package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/store"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact <session-id> <name> <path>",
	Short: "Record an output file produced by a session",
	Args:  cobra.ExactArgs(3),
	RunE:  runArtifact,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed sessions older than the retention window",
	Long: `Delete completed sessions last updated more than --days days ago, together
with their checkpoints and artifact records. Sessions that are active, paused
or failed are never deleted.

The window defaults to retention.days from the configuration.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var backupCmd = &cobra.Command{
	Use:   "backup <destination>",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackup,
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id> <file>",
	Short: "Export a session with its checkpoints and artifacts as JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "sessionstate %s (commit %s, built %s)\n",
			valueOr(appVersion, "dev"), valueOr(appCommit, "none"), valueOr(appDate, "unknown"))
		return err
	},
}

func init() {
	rootCmd.AddCommand(artifactCmd, cleanupCmd, backupCmd, exportCmd, versionCmd)

	cleanupCmd.Flags().Int("days", sessionstate.DefaultRetentionDays, "retention window in days")
}

func runArtifact(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(m *sessionstate.Manager) error {
		rec, err := m.Artifacts.Record(cmd.Context(), args[0], args[1], args[2])
		if errors.Is(err, sessionstate.ErrSessionNotFound) {
			return sessionNotFound(args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	})
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	days := viper.GetInt(keyRetention)
	if cmd.Flags().Changed("days") {
		days, _ = cmd.Flags().GetInt("days")
	}

	return withManager(cmd, func(m *sessionstate.Manager) error {
		deleted, err := m.Retention.DeleteOld(cmd.Context(), days)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s) completed more than %d day(s) ago.\n", deleted, days)
		return err
	})
}

func runBackup(cmd *cobra.Command, args []string) error {
	m, st, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := st.Backup(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Backed up %s to %s\n", st.Path(), args[0])
	return err
}

// sessionExport is the document written by the export command.
type sessionExport struct {
	Session     *sessionstate.Session          `json:"session"`
	Checkpoints []*sessionstate.Checkpoint     `json:"checkpoints"`
	Artifacts   []*sessionstate.ArtifactRecord `json:"artifacts"`
}

func runExport(cmd *cobra.Command, args []string) error {
	id, file := args[0], args[1]

	return withManager(cmd, func(m *sessionstate.Manager) error {
		ctx := cmd.Context()

		// One read transaction so a concurrent save or sweep can't tear the
		// snapshot.
		var doc sessionExport
		err := m.Store().Atomically(ctx, func(tx store.Store) error {
			sess, err := tx.GetSession(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return sessionNotFound(id)
			}
			if err != nil {
				return err
			}
			doc = sessionExport{Session: sess}
			if doc.Checkpoints, err = tx.ListCheckpoints(ctx, id); err != nil {
				return err
			}
			doc.Artifacts, err = tx.ListArtifacts(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		if doc.Checkpoints == nil {
			doc.Checkpoints = []*sessionstate.Checkpoint{}
		}
		if doc.Artifacts == nil {
			doc.Artifacts = []*sessionstate.ArtifactRecord{}
		}

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding export: %w", err)
		}
		if err := renameio.WriteFile(file, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported session %s (%d checkpoint(s), %d artifact(s)) to %s\n",
			id, len(doc.Checkpoints), len(doc.Artifacts), file)
		return err
	})
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
