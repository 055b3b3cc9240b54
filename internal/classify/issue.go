package classify

import (
	"sort"
	"strings"

	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/session"
)

// Resolution records which step of the cascade produced an issue.
type Resolution struct {
	Key    string
	Source string // "micro-events", "pattern", "browser", "keywords"
	Score  int    // keyword hits when Source is "keywords"
}

// Resolver resolves the issue a snapshot belongs to.
type Resolver struct {
	Known    KnownIssues
	Keywords *KeywordMap
}

// Resolve runs the attribution cascade, first match wins:
//  1. the ten newest micro-events, newest first, carrying a known key
//  2. a known key in the title, open files or branch
//  3. a tracker key from the browser on the newest micro-event
//  4. the issue with most keyword hits (ties go to the earlier map entry)
//
// events may be nil when no session is active.
func (r *Resolver) Resolve(snap collector.Snapshot, events *session.EventRing) Resolution {
	if events != nil {
		for _, ev := range events.Last(10) {
			if r.Known.Has(ev.Key) {
				return Resolution{Key: ev.Key, Source: "micro-events"}
			}
		}
	}

	text := searchText(snap)
	for _, key := range ExtractKeys(text) {
		if r.Known.Has(key) {
			return Resolution{Key: key, Source: "pattern"}
		}
	}

	if events != nil {
		if ev, ok := events.Newest(); ok && ev.Browser != nil && ev.Browser.IsJira && ev.Key != "" {
			return Resolution{Key: ev.Key, Source: "browser"}
		}
	}

	return r.byKeywords(text)
}

func (r *Resolver) byKeywords(text string) Resolution {
	if r.Keywords.Len() == 0 {
		return Resolution{}
	}
	scores := make(map[string]int)
	for _, kw := range ExtractKeywords(text) {
		for _, key := range r.Keywords.Lookup(kw) {
			scores[key]++
		}
	}
	if len(scores) == 0 {
		return Resolution{}
	}
	rank := r.Keywords.rank()
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return rank[keys[i]] < rank[keys[j]]
	})
	return Resolution{Key: keys[0], Source: "keywords", Score: scores[keys[0]]}
}

func searchText(snap collector.Snapshot) string {
	return snap.WindowTitle + " " + strings.Join(snap.OpenFiles, " ") + " " + snap.Branch
}

var (
	confidenceMeetingApps = []string{"Microsoft Teams", "Teams", "MSTeams", "Zoom", "Skype", "Meet", "WebEx"}
	confidenceDevApps     = []string{"Visual Studio Code", "Code", "IntelliJ IDEA", "WebStorm", "Terminal", "iTerm2"}
	confidenceMeetingKW   = []string{"meeting", "call", "teams", "zoom", "standup", "sync", "discussion"}
)

// Confidence weights.
const (
	weightMeetingApp     = 40
	weightDevApp         = 30
	weightTitleKey       = 30
	capKeySignals        = 50
	weightMeetingKeyword = 30
	weightBranch         = 20
	weightDevDirectory   = 10
	maxConfidence        = 100
)

// Confidence scores 0..100 how sure the attribution of snap is. events
// contributes the browser-URL key signal from the five newest
// micro-events; it may be nil.
func Confidence(snap collector.Snapshot, events *session.EventRing) int {
	score := 0

	active := strings.ToLower(snap.ActiveApp)
	if active != "" {
		for _, app := range confidenceMeetingApps {
			a := strings.ToLower(app)
			if strings.Contains(active, a) || strings.Contains(a, active) {
				score += weightMeetingApp
				break
			}
		}
	}
	for _, app := range confidenceDevApps {
		if strings.Contains(snap.ActiveApp, app) {
			score += weightDevApp
			break
		}
	}

	titleKey := 0
	if keyPattern.MatchString(snap.WindowTitle) {
		titleKey = weightTitleKey
		score += titleKey
	}
	if events != nil {
		for _, ev := range events.Last(5) {
			if ev.Source == session.SourceURL && ev.Key != "" {
				score += capKeySignals - titleKey
				break
			}
		}
	}

	title := strings.ToLower(snap.WindowTitle)
	for _, kw := range confidenceMeetingKW {
		if strings.Contains(title, kw) {
			score += weightMeetingKeyword
			break
		}
	}
	if snap.Branch != "" {
		score += weightBranch
	}
	if strings.Contains(snap.Directory, "Development") || strings.Contains(snap.Directory, "Projects") {
		score += weightDevDirectory
	}

	if score > maxConfidence {
		score = maxConfidence
	}
	return score
}
