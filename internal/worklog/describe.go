package worklog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/session"
)

const clockLayout = "15:04:05"

// contextStopwords are words too generic to say anything about the work.
var contextStopwords = map[string]bool{}

func init() {
	for _, w := range []string{
		"meeting", "standup", "daily", "teams", "zoom", "microsoft", "google", "chrome",
		"discussion", "https", "local", "project", "console", "development", "branch",
		"merge", "issue", "board", "story", "review", "retro", "sprint", "planning",
		"demo", "work", "window", "code", "github", "tempo",
	} {
		contextStopwords[w] = true
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

type cue struct {
	label string
	re    *regexp.Regexp
}

var topicCues = []cue{
	{"progress update", regexp.MustCompile(`progress|update|status`)},
	{"defect triage", regexp.MustCompile(`bug|defect|issue|error|fix`)},
	{"UI adjustments", regexp.MustCompile(`ui|frontend|button|layout|css`)},
	{"performance", regexp.MustCompile(`perf|latency|speed|optimi[sz]e`)},
	{"auth/session", regexp.MustCompile(`auth|session|token|login`)},
	{"test coverage", regexp.MustCompile(`test|coverage|qa|regression`)},
	{"deployment readiness", regexp.MustCompile(`deploy|release|build`)},
}

var decisionCues = []cue{
	{"Reuse existing component", regexp.MustCompile(`reuse|existing component`)},
	{"Deferred low priority items", regexp.MustCompile(`defer|later sprint|next sprint`)},
	{"Add null-state UX", regexp.MustCompile(`null[- ]state|empty state`)},
	{"Add analytics event", regexp.MustCompile(`analytics|telemetry|metric`)},
}

var actionCues = []cue{
	{"Finalize test checklist", regexp.MustCompile(`test|coverage`)},
	{"Create auth edge-case ticket", regexp.MustCompile(`auth|session`)},
	{"Monitor performance metrics", regexp.MustCompile(`latency|perf`)},
}

// Describe builds the worklog description of a session. A custom
// description always wins. The structured form is several lines; the
// simple form is a single sentence list for services with tight limits.
func Describe(s *session.Session, a classify.Activity, simple bool) string {
	if s.CustomDescription != "" {
		return s.CustomDescription
	}
	if simple {
		return describeSimple(s, a)
	}

	start, end := s.StartTime, s.Finish()
	dur := s.Duration
	if dur == 0 {
		dur = end.Sub(start)
	}

	var apps []string
	for _, app := range s.Applications {
		if app != "unknown" {
			apps = append(apps, app)
		}
	}
	if len(apps) > 4 {
		apps = apps[:4]
	}
	branch := s.Branches.First()

	corpus := textCorpus(s)
	keywords := contextKeywords(corpus, 12)
	topics := matchCues(corpus, topicCues, 5)
	decisions := matchCues(corpus, decisionCues, 4)
	actions := matchCues(corpus, actionCues, 5)
	if branch != "" && len(actions) < 5 {
		actions = append(actions, "Complete work on "+branch)
	}

	issue := s.DetectedIssue
	if issue == "" {
		issue = "Unassigned"
		if a.IsMeeting {
			issue = "General Meeting"
		}
	}

	var lines []string
	switch {
	case a.IsMeeting && a.MeetingType != "":
		lines = append(lines, fmt.Sprintf("%s (%s) (%s)", issue, strings.Replace(a.MeetingType, "-", " ", 1), shortDuration(dur)))
	case a.IsMeeting:
		lines = append(lines, fmt.Sprintf("%s meeting (%s)", issue, shortDuration(dur)))
	default:
		lines = append(lines, fmt.Sprintf("%s development session (%s)", issue, shortDuration(dur)))
	}
	lines = append(lines, fmt.Sprintf("Time: %s–%s", start.Local().Format(clockLayout), end.Local().Format(clockLayout)))
	if len(apps) > 0 {
		lines = append(lines, "Apps: "+strings.Join(apps, ", "))
	}
	if branch != "" && !a.IsMeeting {
		lines = append(lines, "Branch: "+branch)
	}
	if len(topics) > 0 {
		lines = append(lines, "Topics: "+strings.Join(topics, "; "))
	}
	if len(keywords) > 0 {
		if len(keywords) > 6 {
			keywords = keywords[:6]
		}
		lines = append(lines, "Context: "+strings.Join(keywords, ", "))
	}
	if len(decisions) > 0 {
		lines = append(lines, "Decisions: "+strings.Join(decisions, " | "))
	}
	if len(actions) > 0 {
		lines = append(lines, "Actions: "+strings.Join(actions, " | "))
	}
	lines = append(lines, fmt.Sprintf("Confidence: %d%%", s.Confidence))
	return strings.Join(lines, "\n")
}

func describeSimple(s *session.Session, a classify.Activity) string {
	var parts []string
	apps := []string(s.Applications)
	if len(apps) > 3 {
		apps = apps[:3]
	}
	if len(apps) > 0 {
		if a.IsMeeting {
			parts = append(parts, "Meeting using "+strings.Join(apps, ", "))
		} else {
			parts = append(parts, "Dev work in "+strings.Join(apps, ", "))
		}
	}
	if b := s.Branches.First(); b != "" && !a.IsMeeting {
		parts = append(parts, "Branch: "+b)
	}
	parts = append(parts, fmt.Sprintf("Time: %s - %s",
		s.StartTime.Local().Format(clockLayout), s.Finish().Local().Format(clockLayout)))
	parts = append(parts, fmt.Sprintf("Confidence %d%%", s.Confidence))
	return strings.Join(parts, ". ")
}

// textCorpus joins window titles and the titles of the latest 50
// micro-events, lowercased.
func textCorpus(s *session.Session) string {
	parts := append([]string(nil), s.WindowTitles...)
	events := s.MicroEvents.All()
	if len(events) > 50 {
		events = events[len(events)-50:]
	}
	for _, ev := range events {
		if ev.Title != "" {
			parts = append(parts, ev.Title)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func contextKeywords(corpus string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range nonAlnum.Split(corpus, -1) {
		if len(w) <= 3 || contextStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

func matchCues(corpus string, cues []cue, limit int) []string {
	var out []string
	for _, c := range cues {
		if len(out) == limit {
			break
		}
		if c.re.MatchString(corpus) {
			out = append(out, c.label)
		}
	}
	return out
}

// shortDuration renders "1h 5m" or "42m".
func shortDuration(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
