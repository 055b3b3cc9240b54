package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/logging"
	"github.com/fakeyudi/timeslice/internal/profile"
)

// cfg holds the effective configuration, populated in PersistentPreRunE.
var cfg config.Config

// baseCfg is cfg before runtime overrides; the daemon re-applies the
// override file on top of it.
var baseCfg config.Config

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

var logger = zerolog.Nop()
var closeLog = func() error { return nil }

var (
	flagTestMode bool
	flagDryRun   bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "timeslice",
	Short:         "Track desktop work sessions and log them as worklogs",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// First-run: profile missing → run setup wizard automatically.
		// Only do this when stdin is an interactive terminal.
		if !profile.Exists() && term.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to timeslice! Looks like this is your first time.")
			if err := runSetup(cmd, true); err != nil {
				return err
			}
		}

		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		if flagTestMode {
			os.Setenv("TIMESLICE_TEST_MODE", "1")
		}
		base, err := config.LoadBase()
		if err != nil {
			return err
		}
		base = applyFlags(activeProfile.Apply(base))
		path, err := config.OverridesPath()
		if err != nil {
			return err
		}
		effective, err := config.Reload(base, path)
		if err != nil {
			return fmt.Errorf("applying runtime overrides: %w", err)
		}
		baseCfg, cfg = base, effective

		logger, closeLog, err = logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func applyFlags(c config.Config) config.Config {
	if flagDryRun {
		c.DryRun = true
	}
	if flagLogLevel != "" {
		c.LogLevel = flagLogLevel
	}
	return c
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the effective configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// GetProfile returns the active user profile.
func GetProfile() *profile.Profile {
	return activeProfile
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagTestMode, "test-mode", false, "use short timings and a separate state file")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "never submit worklogs")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
}
