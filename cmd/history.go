package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/report"
	"github.com/fakeyudi/timeslice/internal/tracker"
)

var (
	historyDays   int
	historyFormat string
	historyOut    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Render recent sessions as a Markdown or JSON report",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}

		format := historyFormat
		if format == "" && GetProfile() != nil {
			format = GetProfile().DefaultFormat
		}
		renderer, _ := report.RendererFor(format)
		data, err := renderer.Render(buildHistory(w.agent, historyDays))
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}

		if historyOut == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(historyOut, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		cmd.Printf("Report written to %s\n", historyOut)
		return nil
	},
}

func buildHistory(a *tracker.Agent, days int) *report.History {
	return report.Build(a.SessionHistory(days), a.Classifier(), time.Now(), days, GetProfile().Author())
}

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 7, "number of days to include")
	historyCmd.Flags().StringVar(&historyFormat, "format", "", "markdown or json (default from profile)")
	historyCmd.Flags().StringVarP(&historyOut, "out", "o", "", "write to a file instead of stdout")
	rootCmd.AddCommand(historyCmd)
}
