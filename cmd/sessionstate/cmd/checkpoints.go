package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/config"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <session-id> <phase>",
	Short: "Save a checkpoint and advance the session to phase",
	Long: `Save a checkpoint for a session. The session's current phase becomes the
checkpoint's phase.

Data is given inline as JSON with --data or read from a YAML or JSON file
with --data-file. Without either an empty object is stored.`,
	Example: `  sessionstate checkpoint 3f2a9c1b7d4e build --data '{"step":2}'
  sessionstate checkpoint 3f2a9c1b7d4e build --data-file state.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runCheckpoint,
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <session-id>",
	Short: "List a session's checkpoints, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoints,
}

var recoverCmd = &cobra.Command{
	Use:   "recover <session-id>",
	Short: "Print the resumable context of a session",
	Long: `Load the session and its latest checkpoint and print them with the phase to
resume from. A paused or failed session with a checkpoint is made active.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecover,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Roll a session back to a checkpoint",
	Long: `Set the owning session's phase to the checkpoint's phase, make it active and
print the checkpoint data. The checkpoint need not be the latest.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(checkpointCmd, checkpointsCmd, recoverCmd, restoreCmd)

	checkpointCmd.Flags().String("data", "", "checkpoint data as a JSON document")
	checkpointCmd.Flags().String("data-file", "", "read checkpoint data from a YAML or JSON file")
	checkpointCmd.MarkFlagsMutuallyExclusive("data", "data-file")

	checkpointsCmd.Flags().StringP("output", "o", formatTable, "output format (table, json)")
}

func checkpointData(cmd *cobra.Command) (any, error) {
	inline, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("data-file")

	switch {
	case file != "":
		m, err := config.FromFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading data file: %w", err)
		}
		return m, nil
	case inline != "":
		return json.RawMessage(inline), nil
	default:
		return nil, nil
	}
}

func runCheckpoint(cmd *cobra.Command, args []string) error {
	data, err := checkpointData(cmd)
	if err != nil {
		return err
	}

	return withManager(cmd, func(m *sessionstate.Manager) error {
		cp, err := m.Checkpoints.Save(cmd.Context(), args[0], args[1], data)
		if errors.Is(err, sessionstate.ErrSessionNotFound) {
			return sessionNotFound(args[0])
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), cp.ID)
		return err
	})
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")

	return withManager(cmd, func(m *sessionstate.Manager) error {
		sess, err := m.Sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return sessionNotFound(args[0])
		}
		cps, err := m.Checkpoints.All(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCheckpoints(cmd.OutOrStdout(), cps, format)
	})
}

func runRecover(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(m *sessionstate.Manager) error {
		res, err := m.Recovery.Recover(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if res == nil {
			return sessionNotFound(args[0])
		}
		return printJSON(cmd.OutOrStdout(), res)
	})
}

func runRestore(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(m *sessionstate.Manager) error {
		cp, err := m.Checkpoints.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cp == nil {
			return fmt.Errorf("checkpoint not found: %s", args[0])
		}
		return printJSON(cmd.OutOrStdout(), cp.Data)
	})
}
