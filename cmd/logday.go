package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/worklog"
)

var logDayCmd = &cobra.Command{
	Use:   "log-day <file|->",
	Short: "Submit a day of structured time blocks from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if args[0] == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}
		day, err := worklog.ParseDay(raw)
		if err != nil {
			return err
		}

		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		res := w.agent.LogDailyBlocks(ctx, day)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tISSUE\tMINUTES\tSTATUS\tDETAIL")
		failed := 0
		for _, r := range res.Results {
			detail := r.Reason
			if r.WorklogID != "" {
				detail = r.WorklogID
			}
			if r.Status == "error" {
				failed++
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Block.Type, r.Block.IssueKey, r.Block.Minutes, r.Status, detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d blocks failed", failed, len(res.Results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logDayCmd)
}
