package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/report"
	"github.com/fakeyudi/timeslice/internal/tui"
)

var (
	plainOutput bool
	viewDays    int
)

var viewCmd = &cobra.Command{
	Use:   "view [report-file]",
	Short: "Browse recent sessions, or a saved report file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			h    *report.History
			name = "sessions"
		)
		if len(args) == 1 {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("file not found: %s", path)
				}
				return err
			}
			if h, err = report.ParserFor(path).Parse(data); err != nil {
				return err
			}
			name = path
		} else {
			w, err := loadAgent(cmd.Context())
			if err != nil {
				return err
			}
			h = buildHistory(w.agent, viewDays)
		}

		if plainOutput {
			printHistory(cmd.OutOrStdout(), h)
			return nil
		}
		return tui.Run(h, name)
	},
}

// printHistory writes a plain-text summary.
func printHistory(out io.Writer, h *report.History) {
	fmt.Fprintln(out, "## Summary")
	fmt.Fprintf(out, "  Days:      %d\n", h.Meta.Days)
	fmt.Fprintf(out, "  Tracked:   %s\n", report.FormatMinutes(h.Meta.TotalMinutes))
	fmt.Fprintf(out, "  Logged:    %s\n", report.FormatMinutes(h.Meta.LoggedMinutes))
	fmt.Fprintf(out, "  Pending:   %d\n", h.Meta.Pending)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## By Issue")
	if len(h.Totals) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, t := range h.Totals {
		fmt.Fprintf(out, "  %-14s %8s  %d sessions\n", t.Issue, report.FormatMinutes(t.Minutes), t.Sessions)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "## Sessions")
	if len(h.Entries) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	for _, e := range h.Entries {
		issue := e.Issue
		if issue == "" {
			issue = "-"
		}
		fmt.Fprintf(out, "  [%s] %s %s (%s) %s\n",
			e.Start.Local().Format("2006-01-02 15:04"), report.FormatMinutes(e.Minutes), issue, e.Activity, e.Status)
	}
	fmt.Fprintln(out)
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	viewCmd.Flags().IntVar(&viewDays, "days", 7, "days of saved sessions to browse")
	rootCmd.AddCommand(viewCmd)
}
