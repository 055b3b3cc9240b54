package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/timeslice/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration and manage runtime overrides",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		c.Jira.APIToken = redact(c.Jira.APIToken)
		c.Tempo.APIToken = redact(c.Tempo.APIToken)
		data, err := yaml.Marshal(c)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Set runtime overrides; a running agent applies them on its next tick",
	Long: `Set runtime overrides. Keys: monitoringInterval, workSessionThreshold,
autoLogThreshold, maxSessionDuration (Go durations such as 90s or 15m, or
milliseconds), workHoursStart and workHoursEnd (hours 0-24).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.OverridesPath()
		if err != nil {
			return err
		}
		o, err := config.LoadOverrides(path)
		if err != nil {
			return err
		}
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", arg)
			}
			if err := setOverride(&o, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return err
			}
		}
		next := baseCfg.WithOverrides(o)
		if (o.WorkHoursStart != nil && next.WorkHoursStart != *o.WorkHoursStart) ||
			(o.WorkHoursEnd != nil && next.WorkHoursEnd != *o.WorkHoursEnd) {
			return fmt.Errorf("work hours must satisfy 0 <= start < end <= 24")
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := config.SaveOverrides(path, o); err != nil {
			return err
		}
		return printOverrides(cmd, o)
	},
}

var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every runtime override",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.OverridesPath()
		if err != nil {
			return err
		}
		if err := config.ClearOverrides(path); err != nil {
			return err
		}
		cmd.Println("Runtime overrides cleared.")
		return nil
	},
}

func setOverride(o *config.Overrides, key, value string) error {
	dur := func() (*config.Duration, error) {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return &config.Duration{Duration: time.Duration(ms) * time.Millisecond}, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s: invalid duration %q", key, value)
		}
		return &config.Duration{Duration: d}, nil
	}
	hour := func() (*int, error) {
		h, err := strconv.Atoi(value)
		if err != nil || h < 0 || h > 24 {
			return nil, fmt.Errorf("%s: invalid hour %q", key, value)
		}
		return &h, nil
	}

	var err error
	switch key {
	case "monitoringInterval":
		o.MonitoringInterval, err = dur()
	case "workSessionThreshold":
		o.WorkSessionThreshold, err = dur()
	case "autoLogThreshold":
		o.AutoLogThreshold, err = dur()
	case "maxSessionDuration":
		o.MaxSessionDuration, err = dur()
	case "workHoursStart":
		o.WorkHoursStart, err = hour()
	case "workHoursEnd":
		o.WorkHoursEnd, err = hour()
	default:
		return fmt.Errorf("unknown override %q", key)
	}
	return err
}

func printOverrides(cmd *cobra.Command, o config.Overrides) error {
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configClearCmd)
	rootCmd.AddCommand(configCmd)
}
