// File: cmd/session.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vibepilot/api/schemas"
	"github.com/xkilldash9x/vibepilot/internal/agent"
	"github.com/xkilldash9x/vibepilot/internal/config"
	"github.com/xkilldash9x/vibepilot/internal/observability"
	"github.com/xkilldash9x/vibepilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newSessionCmd groups the commands that inspect saved sessions without
// starting the agent loop.
func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage saved sessions",
	}
	cmd.AddCommand(newSessionListCmd(), newSessionShowCmd(), newSessionDeleteCmd(), newSessionSummaryCmd())
	return cmd
}

// withStore runs fn against the configured store and closes it afterwards,
// flushing any change fn made.
func withStore(cmd *cobra.Command, fn func(*config.Config, *store.Store) error) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cmd.Context(), cfg, observability.GetLogger())
	if err != nil {
		return err
	}
	runErr := fn(cfg, st)
	if err := st.Close(context.Background()); err != nil && runErr == nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return runErr
}

func newSessionListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(_ *config.Config, st *store.Store) error {
				sessions := st.List()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), sessions)
				}
				printSessionTable(cmd.OutOrStdout(), sessions, st.ActiveID())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print sessions as JSON")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a session and its log (the active session by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(_ *config.Config, st *store.Store) error {
				sess, err := sessionArg(st, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, sess)
				}
				fmt.Fprintf(out, "ID:       %s\n", sess.ID)
				fmt.Fprintf(out, "Name:     %s\n", sess.Name)
				fmt.Fprintf(out, "Platform: %s\n", sess.Platform)
				fmt.Fprintf(out, "Status:   %s\n", stepLabel(sess.Status, sess.CurrentStep, sess.TotalSteps))
				fmt.Fprintf(out, "Updated:  %s\n", sess.LastUpdated.Format(time.RFC3339))
				if sess.Goal != "" {
					fmt.Fprintf(out, "Goal:     %s\n", sess.Goal)
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, agent.FormatLogs(sess.Logs))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the session as JSON")
	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(_ *config.Config, st *store.Store) error {
				active, err := st.Delete(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s. Active session is now %s.\n", args[0], active)
				return nil
			})
		},
	}
}

func newSessionSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [id]",
		Short: "Summarize the recent activity of a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(cfg *config.Config, st *store.Store) error {
				sess, err := sessionArg(st, args)
				if err != nil {
					return err
				}
				if len(sess.Logs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No activity yet.")
					return nil
				}

				logger := observability.GetLogger()
				client, flows, err := newLLMFlows(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer client.Close()

				summary, err := flows.Summarize(cmd.Context(), agent.FormatLogs(tailLogs(sess.Logs, cfg.Agent().SummaryLogLimit)))
				if err != nil {
					logger.Warn("Summary failed.", zap.String("session_id", sess.ID), zap.Error(err))
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
}

// sessionArg resolves the optional id argument, defaulting to the active
// session.
func sessionArg(st *store.Store, args []string) (schemas.Session, error) {
	if len(args) == 1 {
		return st.Get(args[0])
	}
	return st.Active()
}

func tailLogs(logs []schemas.LogEntry, n int) []schemas.LogEntry {
	if n > 0 && len(logs) > n {
		return logs[len(logs)-n:]
	}
	return logs
}

func printSessionTable(out io.Writer, sessions []schemas.Session, active string) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tPLATFORM\tSTATUS\tUPDATED\tGOAL")
	now := time.Now()
	for _, sess := range sessions {
		marker := ""
		if sess.ID == active {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, sess.ID, sess.Name, sess.Platform,
			stepLabel(sess.Status, sess.CurrentStep, sess.TotalSteps),
			relativeTime(now, sess.LastUpdated), goalPreview(sess.Goal))
	}
	tw.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
