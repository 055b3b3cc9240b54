package classify

import (
	"strings"
	"sync"
	"time"

	"github.com/fakeyudi/timeslice/internal/session"
)

// DefaultMeetingThreshold is the score at which a session counts as a meeting.
const DefaultMeetingThreshold = 7

// Activity is the classification of one session.
type Activity struct {
	IsMeeting   bool
	MeetingType string // empty unless IsMeeting and a sub-type matched
	Description string
	Score       int
	Threshold   int

	AppTriggers    []string
	StrongHits     []string
	WeakHits       []string
	DevAppHits     []string
	DevKeywordHits []string
}

// IsStoryDevelopment reports whether a non-meeting session has an issue.
func (a Activity) IsStoryDevelopment(issue string) bool {
	return !a.IsMeeting && issue != ""
}

var (
	meetingApps    = []string{"microsoft teams", "teams", "zoom", "skype", "meet", "webex", "google meet", "cisco webex"}
	strongKeywords = []string{"standup", "all hands", "all-hands", "town hall", "retro", "retrospective", "sprint planning", "kickoff", "brainstorm", "brainstorming", "demo"}
	weakKeywords   = []string{"meeting", "call", "sync", "discussion", "review", "planning", "huddle"}
	devApps        = []string{"visual studio code", "code", "intellij", "webstorm", "pycharm", "iterm", "terminal", "xcode", "android studio"}
	devKeywords    = []string{"localhost", "git", "commit", "branch", "merge", "pull request", "pr ", "src/", "package.json", "node_modules", "jira", "tempo", "api"}

	legacyApps     = []string{"Teams", "Microsoft Teams", "Zoom", "Meet", "WebEx", "Google Meet"}
	legacyKeywords = []string{"meeting", "standup", "retro", "planning"}
)

// meetingTypes is checked in order; the first type with a matching
// phrase wins.
var meetingTypes = []struct {
	name    string
	phrases []string
}{
	{"standup", []string{"standup", "daily standup", "daily standup meeting", "daily", "scrum"}},
	{"sprint-planning", []string{"sprint planning", "planning", "sprint plan", "iteration planning"}},
	{"code-review", []string{"code review", "pr review", "pull request review", "review meeting", "architecture review", "arch review"}},
	{"test-case-review", []string{"test case review", "test review", "qa review"}},
	{"sprint-demo", []string{"sprint demo", "demo", "demonstration", "showcase"}},
	{"sprint-retro", []string{"retrospective", "retro", "sprint retro"}},
	{"kickoff", []string{"kickoff", "project kickoff"}},
	{"all-hands", []string{"all hands", "all-hands", "town hall", "townhall"}},
	{"brainstorming", []string{"brainstorm", "brainstorming", "ideation", "design jam"}},
}

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	Threshold int           // zero means DefaultMeetingThreshold
	Legacy    bool          // any meeting app or keyword makes a meeting
	TTL       time.Duration // zero means 5s
	Now       func() time.Time
}

// Classifier labels sessions as meeting or development work. Results are
// cached per session id for a short TTL.
type Classifier struct {
	opts ClassifierOptions

	mu    sync.Mutex
	cache map[string]cachedActivity
}

type cachedActivity struct {
	at       time.Time
	activity Activity
}

// NewClassifier returns a Classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultMeetingThreshold
	}
	if opts.TTL == 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Classifier{opts: opts, cache: make(map[string]cachedActivity)}
}

// Classify returns the activity type of s, reusing a cached result for
// the same session id within the TTL.
func (c *Classifier) Classify(s *session.Session) Activity {
	now := c.opts.Now()

	c.mu.Lock()
	if hit, ok := c.cache[s.ID]; ok && now.Sub(hit.at) < c.opts.TTL {
		c.mu.Unlock()
		return hit.activity
	}
	c.mu.Unlock()

	var a Activity
	switch {
	case s.ForceMeeting:
		a = forcedMeeting(s.WindowTitles)
	case c.opts.Legacy:
		a = classifyLegacy(s.Applications, s.WindowTitles)
	default:
		a = Score(s.Applications, s.WindowTitles, c.opts.Threshold)
	}

	c.mu.Lock()
	c.cache[s.ID] = cachedActivity{at: now, activity: a}
	if len(c.cache) > 512 {
		for id, e := range c.cache {
			if now.Sub(e.at) >= c.opts.TTL {
				delete(c.cache, id)
			}
		}
	}
	c.mu.Unlock()
	return a
}

// Score classifies applications and window titles with the weighted
// heuristic: meeting apps +5, strong keywords +3, weak keywords +1 (only
// with two distinct weak words or a meeting app), dev apps -2, dev
// keywords -1. A meeting carried by fewer than three distinct weak words
// alone is demoted.
func Score(apps, titles []string, threshold int) Activity {
	a := Activity{Threshold: threshold}

	lowerApps := lowerAll(apps)
	lowerTitles := lowerAll(titles)

	for _, app := range lowerApps {
		if containsAny(app, meetingApps) {
			a.AppTriggers = append(a.AppTriggers, app)
		}
		if containsAny(app, devApps) {
			a.DevAppHits = append(a.DevAppHits, app)
		}
	}
	for _, t := range lowerTitles {
		for _, k := range strongKeywords {
			if strings.Contains(t, k) {
				a.StrongHits = append(a.StrongHits, k)
			}
		}
		for _, k := range weakKeywords {
			if strings.Contains(t, k) {
				a.WeakHits = append(a.WeakHits, k)
			}
		}
		for _, k := range devKeywords {
			if strings.Contains(t, k) {
				a.DevKeywordHits = append(a.DevKeywordHits, k)
			}
		}
	}

	distinctWeak := len(distinct(a.WeakHits))
	a.Score += 5 * len(a.AppTriggers)
	a.Score += 3 * len(a.StrongHits)
	if distinctWeak >= 2 || len(a.AppTriggers) > 0 {
		a.Score += len(a.WeakHits)
	}
	a.Score -= 2 * len(a.DevAppHits)
	a.Score -= len(a.DevKeywordHits)

	a.IsMeeting = a.Score >= threshold
	if a.IsMeeting && len(a.AppTriggers) == 0 && len(a.StrongHits) == 0 && distinctWeak < 3 {
		a.IsMeeting = false
	}
	if a.IsMeeting {
		a.MeetingType = MeetingType(lowerTitles)
	}
	a.Description = describe(a)

	a.AppTriggers = distinct(a.AppTriggers)
	a.StrongHits = distinct(a.StrongHits)
	a.WeakHits = distinct(a.WeakHits)
	a.DevAppHits = distinct(a.DevAppHits)
	a.DevKeywordHits = distinct(a.DevKeywordHits)
	return a
}

// MeetingType returns the first meeting sub-type whose phrase occurs in
// the joined lowercase titles, or "".
func MeetingType(lowerTitles []string) string {
	all := strings.Join(lowerTitles, " ")
	for _, mt := range meetingTypes {
		for _, p := range mt.phrases {
			if strings.Contains(all, p) {
				return mt.name
			}
		}
	}
	return ""
}

func classifyLegacy(apps, titles []string) Activity {
	a := Activity{}
	for _, app := range apps {
		la := strings.ToLower(app)
		for _, m := range legacyApps {
			if strings.Contains(la, strings.ToLower(m)) {
				a.IsMeeting = true
			}
		}
	}
	for _, t := range lowerAll(titles) {
		if containsAny(t, legacyKeywords) {
			a.IsMeeting = true
		}
	}
	if a.IsMeeting {
		a.Description = "Meeting/Collaboration (legacy)"
	} else {
		a.Description = "Story Development"
	}
	return a
}

func forcedMeeting(titles []string) Activity {
	a := Activity{IsMeeting: true, MeetingType: MeetingType(lowerAll(titles))}
	a.Description = describe(a)
	return a
}

func describe(a Activity) string {
	switch {
	case a.IsMeeting && a.MeetingType != "":
		return "Meeting: " + strings.Replace(a.MeetingType, "-", " ", 1)
	case a.IsMeeting:
		return "Meeting/Collaboration"
	default:
		return "Story Development"
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func distinct(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
