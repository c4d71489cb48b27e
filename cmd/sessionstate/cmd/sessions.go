package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/sessionstate/pkg/sessionstate"
	"github.com/randalmurphal/sessionstate/pkg/sessionstate/config"
)

var createCmd = &cobra.Command{
	Use:   "create <workflow-name>",
	Short: "Create a new session",
	Long: `Create a new active session for a workflow and print its ID.

Metadata is given as repeated key=value pairs; true/false and numbers are
stored as booleans and numbers, everything else as strings.`,
	Example: `  sessionstate create nightly-build --meta owner=ci --meta retries=3`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCreate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently updated first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var getCmd = &cobra.Command{
	Use:   "get <session-id>",
	Short: "Show a session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "List active sessions that may need recovery",
	Long: `List every session whose status is active.

After a crash these are the sessions that were interrupted, but an active
session may also still be running in another process.`,
	Args: cobra.NoArgs,
	RunE: runActive,
}

var completePhaseCmd = &cobra.Command{
	Use:   "complete-phase <session-id> <phase>",
	Short: "Append a phase to the session's completed phases",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateAndPrint(cmd, args[0], func(ctx context.Context, m *sessionstate.Manager) (*sessionstate.Session, error) {
			return m.Sessions.CompletePhase(ctx, args[0], args[1])
		})
	},
}

var pauseCmd = statusCommand("pause", "Mark an active session paused",
	func(m *sessionstate.Manager) statusFunc { return m.Sessions.Pause })

var failCmd = statusCommand("fail", "Mark an active session failed",
	func(m *sessionstate.Manager) statusFunc { return m.Sessions.Fail })

var archiveCmd = statusCommand("archive", "Mark an active session completed",
	func(m *sessionstate.Manager) statusFunc { return m.Sessions.Archive })

func init() {
	rootCmd.AddCommand(createCmd, listCmd, getCmd, activeCmd, completePhaseCmd,
		pauseCmd, failCmd, archiveCmd)

	createCmd.Flags().StringArray("meta", nil, "metadata as key=value (repeatable)")

	listCmd.Flags().String("status", "", "only list sessions with this status (active, paused, completed, failed)")
	listCmd.Flags().StringP("output", "o", formatTable, "output format (table, json)")

	activeCmd.Flags().StringP("output", "o", formatTable, "output format (table, json)")
}

func runCreate(cmd *cobra.Command, args []string) error {
	pairs, _ := cmd.Flags().GetStringArray("meta")
	meta, err := config.ParseKeyValues(pairs)
	if err != nil {
		return err
	}

	return withManager(cmd, func(m *sessionstate.Manager) error {
		sess, err := m.Sessions.Create(cmd.Context(), args[0], meta)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
		return err
	})
}

func runList(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetString("status")
	format, _ := cmd.Flags().GetString("output")

	return withManager(cmd, func(m *sessionstate.Manager) error {
		sessions, err := m.Sessions.List(cmd.Context(), sessionstate.Status(status))
		if err != nil {
			return err
		}
		return printSessions(cmd.OutOrStdout(), sessions, format)
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withManager(cmd, func(m *sessionstate.Manager) error {
		sess, err := m.Sessions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return sessionNotFound(args[0])
		}
		return printJSON(cmd.OutOrStdout(), sess)
	})
}

func runActive(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("output")

	return withManager(cmd, func(m *sessionstate.Manager) error {
		sessions, err := m.Recovery.ActiveSessions(cmd.Context())
		if err != nil {
			return err
		}
		return printSessions(cmd.OutOrStdout(), sessions, format)
	})
}

type statusFunc func(ctx context.Context, id string) (*sessionstate.Session, error)

func statusCommand(use, short string, pick func(m *sessionstate.Manager) statusFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateAndPrint(cmd, args[0], func(ctx context.Context, m *sessionstate.Manager) (*sessionstate.Session, error) {
				return pick(m)(ctx, args[0])
			})
		},
	}
}

// updateAndPrint runs a session update and prints the resulting record.
func updateAndPrint(cmd *cobra.Command, id string, update func(context.Context, *sessionstate.Manager) (*sessionstate.Session, error)) error {
	return withManager(cmd, func(m *sessionstate.Manager) error {
		sess, err := update(cmd.Context(), m)
		if err != nil {
			return err
		}
		if sess == nil {
			return sessionNotFound(id)
		}
		return printJSON(cmd.OutOrStdout(), sess)
	})
}
