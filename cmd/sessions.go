package cmd

import (
	"fmt"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/report"
)

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List finished sessions that were never logged",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		pending := w.agent.PendingSessions()
		if len(pending) == 0 {
			cmd.Println("no pending sessions")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTART\tTIME\tISSUE\tCONFIDENCE\tSTATUS")
		for _, s := range pending {
			issue := s.DetectedIssue
			if issue == "" {
				issue = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
				s.ID,
				s.StartTime.Local().Format("2006-01-02 15:04"),
				report.FormatMinutes(int(s.Duration/time.Minute)),
				issue,
				s.Confidence,
				s.LogStatus,
			)
		}
		return tw.Flush()
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Log a saved session now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		ok, err := w.agent.ApproveSession(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("session %s not found or already logged", args[0])
		}
		cmd.Printf("Session %s logged.\n", args[0])
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <session-id>",
	Short: "Mark a saved session as handled without logging it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		w.agent.RejectSession(args[0])
		cmd.Printf("Session %s rejected.\n", args[0])
		return nil
	},
}

var setIssueCmd = &cobra.Command{
	Use:   "set-issue <session-id> <ISSUE-KEY>",
	Short: "Attribute a saved session to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToUpper(strings.TrimSpace(args[1]))
		if !issueKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid issue key %q", args[1])
		}
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		if !w.agent.UpdateSessionIssue(args[0], key) {
			return fmt.Errorf("session %s not found", args[0])
		}
		cmd.Printf("Session %s now attributed to %s.\n", args[0], key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd, approveCmd, rejectCmd, setIssueCmd)
}
