package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var (
	reconcileDays int
	reconcileJSON bool
	reconcileMet  bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare saved sessions with Tempo and re-submit missing worklogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		days := reconcileDays
		if days <= 0 {
			days = GetConfig().ReconcileDaysBack
		}
		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		sum := w.agent.TriggerReconciliation(ctx, days)
		if reconcileJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
		} else {
			cmd.Printf("Window: %s .. %s\n", sum.From, sum.To)
			cmd.Printf("Remote worklogs: %d\n", sum.RemoteCount)
			cmd.Printf("Candidate sessions: %d\n", sum.CandidateSessions)
			cmd.Printf("Missing: %d\n", sum.MissingBeforeRelog)
			for _, m := range sum.Missing {
				cmd.Printf("  %s  %s  %s  %dm  %s\n", m.ID, m.Date, m.Issue, m.Minutes, m.Status)
			}
			for _, r := range sum.Relogged {
				cmd.Printf("Relogged %s as worklog %s\n", r.ID, r.WorklogID)
			}
		}
		if reconcileMet {
			if err := w.metrics.WriteText(cmd.OutOrStdout()); err != nil {
				return err
			}
		}
		if sum.Error != "" {
			return errors.New(sum.Error)
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileDays, "days", 0, "days to look back (default from config)")
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print the summary as JSON")
	reconcileCmd.Flags().BoolVar(&reconcileMet, "metrics", false, "print the worklog counters after the run")
	rootCmd.AddCommand(reconcileCmd)
}
