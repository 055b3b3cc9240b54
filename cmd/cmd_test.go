package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timeslice/internal/session"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// in package variables between executions.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolate points every XDG directory and credential at test-local values.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir+"/config")
	t.Setenv("XDG_DATA_HOME", dir+"/data")
	t.Setenv("XDG_STATE_HOME", dir+"/state")
	for _, k := range []string{
		"JIRA_BASE_URL", "JIRA_EMAIL", "JIRA_API_TOKEN",
		"TEMPO_API_TOKEN", "TEMPO_ACCOUNT_ID", "TEMPO_BASE_URL",
		"TIMESLICE_TEST_MODE", "TIMESLICE_DRY_RUN", "TIMESLICE_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func devSession(id string, start time.Time, d time.Duration, issue string) *session.Session {
	s := session.New(start)
	s.ID = id
	s.End(start.Add(d))
	s.DetectedIssue = issue
	s.Confidence = 70
	s.Applications.Add("Code")
	s.WindowTitles.Add("handler.go - api")
	return s
}

// seedState writes a state document with sessions; logged lists the ids
// already reported.
func seedState(t *testing.T, sessions []*session.Session, logged ...string) {
	t.Helper()
	store, err := session.NewStore(false)
	require.NoError(t, err)
	if logged == nil {
		logged = []string{}
	}
	require.NoError(t, store.Save(&session.State{
		Sessions:       sessions,
		LoggedSessions: logged,
		LastSaved:      time.Now(),
	}))
}

func loadState(t *testing.T) *session.State {
	t.Helper()
	store, err := session.NewStore(false)
	require.NoError(t, err)
	st, err := store.Load()
	require.NoError(t, err)
	return st
}
