package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved tracking state",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := loadAgent(cmd.Context())
		if err != nil {
			return err
		}
		st := w.agent.Status()

		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		mode := "live"
		switch {
		case st.TestMode && st.DryRun:
			mode = "test, dry run"
		case st.TestMode:
			mode = "test"
		case st.DryRun:
			mode = "dry run"
		}
		cmd.Printf("Mode: %s\n", mode)
		cmd.Printf("State: %s\n", w.store.Path())
		cmd.Printf("Sessions: %d\n", st.TotalSessions)
		cmd.Printf("Logged: %d\n", st.LoggedSessions)
		cmd.Printf("Pending: %d\n", st.PendingSessions)
		cmd.Printf("Monitoring interval: %s\n", st.Config.MonitoringInterval)
		cmd.Printf("Minimum session: %s\n", st.Config.WorkSessionThreshold)
		cmd.Printf("Auto-log after: %s\n", st.Config.AutoLogThreshold)
		if r := st.LastReconcile; r != nil {
			cmd.Printf("Last reconcile: %s (%d missing, %d relogged)\n", r.At.Format(time.RFC3339), len(r.Missing), len(r.Relogged))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}
