package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loadDotEnv populates the process environment from a .env file in the
// working directory. Variables that are already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overlays environment variables onto c. lookup is usually os.Getenv.
func ApplyEnv(c Config, lookup func(string) string) Config {
	if envBool(lookup, "TIMESLICE_TEST_MODE") {
		c.TestMode = true
	}
	if envBool(lookup, "TIMESLICE_DRY_RUN") {
		c.DryRun = true
	}
	if envBool(lookup, "TIMESLICE_LOCAL_DATE") {
		c.UseLocalDate = true
	}
	if envBool(lookup, "TIMESLICE_SIMPLE_DESCRIPTION") {
		c.SimpleDescription = true
	}
	if envBool(lookup, "TIMESLICE_LEGACY_MEETING_DETECTION") {
		c.LegacyMeetingDetection = true
	}
	if n, ok := envInt(lookup, "TIMESLICE_MEETING_SCORE_THRESHOLD"); ok {
		c.MeetingScoreThreshold = n
	}
	if n, ok := envInt(lookup, "TIMESLICE_RECONCILE_INTERVAL_HOURS"); ok && n > 0 {
		c.ReconcileInterval = time.Duration(n) * time.Hour
	}
	if n, ok := envInt(lookup, "TIMESLICE_RECONCILE_DAYS_BACK"); ok && n > 0 {
		c.ReconcileDaysBack = n
	}
	if v := lookup("TIMESLICE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	setStr(&c.Jira.BaseURL, strings.TrimRight(lookup("JIRA_BASE_URL"), "/"))
	setStr(&c.Jira.Email, lookup("JIRA_EMAIL"))
	setStr(&c.Jira.APIToken, lookup("JIRA_API_TOKEN"))
	setStr(&c.Tempo.BaseURL, strings.TrimRight(lookup("TEMPO_BASE_URL"), "/"))
	setStr(&c.Tempo.APIToken, lookup("TEMPO_API_TOKEN"))
	setStr(&c.Tempo.AccountID, lookup("TEMPO_ACCOUNT_ID"))
	return c
}

func envBool(lookup func(string) string, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(lookup(key)))
	return err == nil && v
}

func envInt(lookup func(string) string, key string) (int, bool) {
	raw := strings.TrimSpace(lookup(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
