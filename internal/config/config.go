package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the agent. A Config is built once at startup
// and passed by value; runtime changes produce a new Config via WithOverrides.
type Config struct {
	MonitoringInterval   time.Duration `yaml:"monitoring_interval"`
	WorkSessionThreshold time.Duration `yaml:"work_session_threshold"`
	AutoLogThreshold     time.Duration `yaml:"auto_log_threshold"`
	MaxSessionDuration   time.Duration `yaml:"max_session_duration"`

	WorkHoursStart int  `yaml:"work_hours_start"`
	WorkHoursEnd   int  `yaml:"work_hours_end"`
	IncludeWeekend bool `yaml:"include_weekend"`

	DefaultMeetingIssue string `yaml:"default_meeting_issue"`

	WindowSampleInterval time.Duration `yaml:"window_sample_interval"`
	AppsRefreshInterval  time.Duration `yaml:"apps_refresh_interval"`
	EnumBackoffBase      time.Duration `yaml:"enum_backoff_base"`
	EnumBackoffMax       time.Duration `yaml:"enum_backoff_max"`

	MaxConcurrentExec int           `yaml:"max_concurrent_exec"`
	MaxExecPerMinute  int           `yaml:"max_exec_per_minute"`
	ExecTimeout       time.Duration `yaml:"exec_timeout"`
	EAGAINCooldown    time.Duration `yaml:"eagain_cooldown"`

	SliceLength        time.Duration `yaml:"slice_length"`
	DisableSlicing     bool          `yaml:"disable_slicing"`
	IdleThreshold      time.Duration `yaml:"idle_threshold"`
	RemainderThreshold time.Duration `yaml:"remainder_threshold"`

	MeetingScoreThreshold  int  `yaml:"meeting_score_threshold"`
	LegacyMeetingDetection bool `yaml:"legacy_meeting_detection"`
	SimpleDescription      bool `yaml:"simple_description"`
	UseLocalDate           bool `yaml:"use_local_date"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileDaysBack int           `yaml:"reconcile_days_back"`

	TestMode bool `yaml:"test_mode"`
	DryRun   bool `yaml:"dry_run"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Jira  JiraConfig  `yaml:"jira"`
	Tempo TempoConfig `yaml:"tempo"`
}

// JiraConfig identifies the issue tracker account.
type JiraConfig struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

// TempoConfig identifies the time-logging account.
type TempoConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIToken  string `yaml:"api_token"`
	AccountID string `yaml:"account_id"`
}

// Defaults returns the production configuration.
func Defaults() Config {
	return Config{
		MonitoringInterval:    5 * time.Minute,
		WorkSessionThreshold:  15 * time.Minute,
		AutoLogThreshold:      time.Hour,
		MaxSessionDuration:    8 * time.Hour,
		WorkHoursStart:        11,
		WorkHoursEnd:          20,
		DefaultMeetingIssue:   "CON22-2208",
		WindowSampleInterval:  30 * time.Second,
		AppsRefreshInterval:   5 * time.Minute,
		EnumBackoffBase:       10 * time.Second,
		EnumBackoffMax:        10 * time.Minute,
		MaxConcurrentExec:     2,
		MaxExecPerMinute:      120,
		ExecTimeout:           5 * time.Second,
		EAGAINCooldown:        2 * time.Minute,
		SliceLength:           time.Hour,
		IdleThreshold:         300 * time.Second,
		RemainderThreshold:    5 * time.Minute,
		MeetingScoreThreshold: 7,
		ReconcileInterval:     6 * time.Hour,
		ReconcileDaysBack:     2,
		LogLevel:              "info",
		Tempo:                 TempoConfig{BaseURL: "https://api.tempo.io/4"},
	}
}

// TestDefaults returns the shortened timings used when test mode is on.
func TestDefaults() Config {
	c := Defaults()
	c.TestMode = true
	c.MonitoringInterval = 10 * time.Second
	c.WorkSessionThreshold = 30 * time.Second
	c.AutoLogThreshold = 60 * time.Second
	c.MaxSessionDuration = 15 * time.Minute
	c.WorkHoursStart = 0
	c.WorkHoursEnd = 24
	c.IncludeWeekend = true
	c.WindowSampleInterval = 5 * time.Second
	c.AppsRefreshInterval = 30 * time.Second
	c.MaxExecPerMinute = 240
	c.EAGAINCooldown = 30 * time.Second
	c.SliceLength = 5 * time.Minute
	c.IdleThreshold = 30 * time.Second
	c.RemainderThreshold = time.Minute
	c.LogLevel = "debug"
	return c
}

// Validate reports the first setting that would make the agent misbehave.
func (c Config) Validate() error {
	switch {
	case c.MonitoringInterval <= 0:
		return errors.New("monitoring_interval must be positive")
	case c.WindowSampleInterval <= 0:
		return errors.New("window_sample_interval must be positive")
	case c.WorkSessionThreshold <= 0:
		return errors.New("work_session_threshold must be positive")
	case c.SliceLength <= 0 && !c.DisableSlicing:
		return errors.New("slice_length must be positive when slicing is enabled")
	case c.WorkHoursStart < 0 || c.WorkHoursEnd > 24 || c.WorkHoursStart >= c.WorkHoursEnd:
		return fmt.Errorf("invalid work hours %d..%d", c.WorkHoursStart, c.WorkHoursEnd)
	case c.MaxConcurrentExec < 1:
		return errors.New("max_concurrent_exec must be at least 1")
	case c.MaxExecPerMinute < 1:
		return errors.New("max_exec_per_minute must be at least 1")
	}
	return nil
}

// WithinWorkHours reports whether t falls in the configured working window.
func (c Config) WithinWorkHours(t time.Time) bool {
	if !c.IncludeWeekend {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	h := t.Hour()
	return h >= c.WorkHoursStart && h < c.WorkHoursEnd
}

// Dir returns the timeslice configuration directory
// ($XDG_CONFIG_HOME/timeslice or ~/.config/timeslice).
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "timeslice"), nil
}

// LoadGlobal reads config.yaml from the configuration directory.
// Returns nil (no error) if the file is absent.
func LoadGlobal() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return loadFile(filepath.Join(dir, "config.yaml"))
}

// LoadProject reads .timeslice.yaml in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".timeslice.yaml")
}

// loadFile reads and parses a YAML config file at path.
// Returns nil when the file is absent.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Load assembles the effective configuration: LoadBase plus the runtime
// override file.
func Load() (Config, error) {
	base, err := LoadBase()
	if err != nil {
		return Config{}, err
	}
	path, err := OverridesPath()
	if err != nil {
		return Config{}, err
	}
	return Reload(base, path)
}

// LoadBase assembles the configuration without runtime overrides: defaults
// (test-mode defaults when TIMESLICE_TEST_MODE is set), then the global
// file, the project file and the environment.
func LoadBase() (Config, error) {
	loadDotEnv()

	base := Defaults()
	if envBool(os.Getenv, "TIMESLICE_TEST_MODE") {
		base = TestDefaults()
	}

	global, err := LoadGlobal()
	if err != nil {
		return Config{}, fmt.Errorf("loading global config: %w", err)
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, fmt.Errorf("loading project config: %w", err)
	}

	cfg := ApplyEnv(Merge(base, global, project), os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge layers global and then project over base. Zero values in a layer
// leave the lower layer untouched.
func Merge(base Config, global, project *Config) Config {
	result := base
	if global != nil {
		overlay(&result, global)
	}
	if project != nil {
		overlay(&result, project)
	}
	return result
}

func overlay(dst *Config, src *Config) {
	setDur(&dst.MonitoringInterval, src.MonitoringInterval)
	setDur(&dst.WorkSessionThreshold, src.WorkSessionThreshold)
	setDur(&dst.AutoLogThreshold, src.AutoLogThreshold)
	setDur(&dst.MaxSessionDuration, src.MaxSessionDuration)
	setInt(&dst.WorkHoursStart, src.WorkHoursStart)
	setInt(&dst.WorkHoursEnd, src.WorkHoursEnd)
	setBool(&dst.IncludeWeekend, src.IncludeWeekend)
	setStr(&dst.DefaultMeetingIssue, src.DefaultMeetingIssue)
	setDur(&dst.WindowSampleInterval, src.WindowSampleInterval)
	setDur(&dst.AppsRefreshInterval, src.AppsRefreshInterval)
	setDur(&dst.EnumBackoffBase, src.EnumBackoffBase)
	setDur(&dst.EnumBackoffMax, src.EnumBackoffMax)
	setInt(&dst.MaxConcurrentExec, src.MaxConcurrentExec)
	setInt(&dst.MaxExecPerMinute, src.MaxExecPerMinute)
	setDur(&dst.ExecTimeout, src.ExecTimeout)
	setDur(&dst.EAGAINCooldown, src.EAGAINCooldown)
	setDur(&dst.SliceLength, src.SliceLength)
	setBool(&dst.DisableSlicing, src.DisableSlicing)
	setDur(&dst.IdleThreshold, src.IdleThreshold)
	setDur(&dst.RemainderThreshold, src.RemainderThreshold)
	setInt(&dst.MeetingScoreThreshold, src.MeetingScoreThreshold)
	setBool(&dst.LegacyMeetingDetection, src.LegacyMeetingDetection)
	setBool(&dst.SimpleDescription, src.SimpleDescription)
	setBool(&dst.UseLocalDate, src.UseLocalDate)
	setDur(&dst.ReconcileInterval, src.ReconcileInterval)
	setInt(&dst.ReconcileDaysBack, src.ReconcileDaysBack)
	setBool(&dst.TestMode, src.TestMode)
	setBool(&dst.DryRun, src.DryRun)
	setStr(&dst.LogLevel, src.LogLevel)
	setStr(&dst.LogFile, src.LogFile)
	setStr(&dst.Jira.BaseURL, src.Jira.BaseURL)
	setStr(&dst.Jira.Email, src.Jira.Email)
	setStr(&dst.Jira.APIToken, src.Jira.APIToken)
	setStr(&dst.Tempo.BaseURL, src.Tempo.BaseURL)
	setStr(&dst.Tempo.APIToken, src.Tempo.APIToken)
	setStr(&dst.Tempo.AccountID, src.Tempo.AccountID)
}

func setDur(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v bool) {
	if v {
		*dst = true
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
