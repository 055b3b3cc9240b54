// Package profile manages the user's persistent timeslice profile: who
// they are on the issue tracker and how to reach the time-logging service.
// The profile is stored next to config.yaml as profile.json and is created
// once via the interactive setup flow, then layered under the environment
// on every command.
package profile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fakeyudi/timeslice/internal/config"
)

// Profile holds user-level identity and preferences set during setup.
type Profile struct {
	Name                string `json:"name"`
	JiraBaseURL         string `json:"jira_base_url"`
	JiraEmail           string `json:"jira_email"`
	JiraAPIToken        string `json:"jira_api_token,omitempty"`
	TempoAPIToken       string `json:"tempo_api_token,omitempty"`
	TempoAccountID      string `json:"tempo_account_id"`
	DefaultMeetingIssue string `json:"default_meeting_issue"`
	DefaultFormat       string `json:"default_format"` // "markdown" | "json"
}

// Path returns the path to the profile file.
func Path() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.json"), nil
}

// Exists reports whether a profile file is present on disk.
func Exists() bool {
	p, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Load reads the profile from disk. Returns an error if the file is missing or malformed.
func Load() (*Profile, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("profile not found, run 'timeslice setup' to configure: %w", err)
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return nil, fmt.Errorf("malformed profile at %s: %w", p, err)
	}
	return &prof, nil
}

// Save writes the profile to disk. The file holds API tokens and is
// readable by the owner only.
func Save(prof *Profile) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// Apply fills the fields of cfg that are still empty from the profile.
// Config files and the environment win over the profile.
func (p *Profile) Apply(cfg config.Config) config.Config {
	if p == nil {
		return cfg
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.Jira.BaseURL, strings.TrimRight(p.JiraBaseURL, "/"))
	fill(&cfg.Jira.Email, p.JiraEmail)
	fill(&cfg.Jira.APIToken, p.JiraAPIToken)
	fill(&cfg.Tempo.APIToken, p.TempoAPIToken)
	fill(&cfg.Tempo.AccountID, p.TempoAccountID)
	fill(&cfg.DefaultMeetingIssue, p.DefaultMeetingIssue)
	return cfg
}

// Author returns the name shown in reports.
func (p *Profile) Author() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.JiraEmail
}

var issueKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

// ErrInvalidIssueKey is returned by setup for a malformed meeting issue.
var ErrInvalidIssueKey = errors.New("invalid issue key")

// Prompter reads setup answers. ReadSecret reads a line without echo; when
// nil, secrets are read like any other answer.
type Prompter struct {
	In         io.Reader
	Out        io.Writer
	ReadSecret func() (string, error)
}

// RunSetup runs the interactive setup wizard and returns the resulting profile.
// If existing is non-nil, it is used as the default for each prompt (edit mode).
func RunSetup(pr Prompter, existing *Profile) (*Profile, error) {
	r := bufio.NewReader(pr.In)
	out := pr.Out

	ask := func(prompt, defaultVal string) (string, error) {
		if defaultVal != "" {
			fmt.Fprintf(out, "%s [%s]: ", prompt, defaultVal)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return defaultVal, nil
		}
		return line, nil
	}

	askSecret := func(prompt, current string) (string, error) {
		if pr.ReadSecret == nil {
			hint := ""
			if current != "" {
				hint = "(keep)"
			}
			v, err := ask(prompt, hint)
			if err != nil || v == "(keep)" {
				return current, err
			}
			return v, nil
		}
		suffix := ""
		if current != "" {
			suffix = " [enter to keep]"
		}
		fmt.Fprintf(out, "%s%s: ", prompt, suffix)
		v, err := pr.ReadSecret()
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v == "" {
			return current, nil
		}
		return v, nil
	}

	prof := &Profile{DefaultFormat: "markdown"}
	if existing != nil {
		*prof = *existing
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "  ┌─────────────────────────────────┐")
	fmt.Fprintln(out, "  │  timeslice · first-time setup   │")
	fmt.Fprintln(out, "  └─────────────────────────────────┘")
	fmt.Fprintln(out)

	var err error

	if prof.Name, err = ask("  Your name (shown in reports)", prof.Name); err != nil {
		return nil, err
	}
	url, err := ask("  Jira site URL (https://<site>.atlassian.net)", prof.JiraBaseURL)
	if err != nil {
		return nil, err
	}
	prof.JiraBaseURL = strings.TrimRight(url, "/")
	if prof.JiraEmail, err = ask("  Jira account email", prof.JiraEmail); err != nil {
		return nil, err
	}
	if prof.JiraAPIToken, err = askSecret("  Jira API token", prof.JiraAPIToken); err != nil {
		return nil, err
	}
	if prof.TempoAPIToken, err = askSecret("  Tempo API token", prof.TempoAPIToken); err != nil {
		return nil, err
	}
	if prof.TempoAccountID, err = ask("  Jira account ID (author of worklogs)", prof.TempoAccountID); err != nil {
		return nil, err
	}

	meeting, err := ask("  Issue for meetings without a detected issue", prof.DefaultMeetingIssue)
	if err != nil {
		return nil, err
	}
	meeting = strings.ToUpper(strings.TrimSpace(meeting))
	if meeting != "" && !issueKeyRe.MatchString(meeting) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIssueKey, meeting)
	}
	prof.DefaultMeetingIssue = meeting

	format, err := ask("  Default report format (markdown/json)", prof.DefaultFormat)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		prof.DefaultFormat = "json"
	} else {
		prof.DefaultFormat = "markdown"
	}

	fmt.Fprintln(out)
	return prof, nil
}
