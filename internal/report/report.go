// Package report renders session history for people and for tools.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/session"
)

// History is the complete, renderable view of a stretch of sessions.
type History struct {
	Meta    Meta         `json:"meta"`
	Entries []Entry      `json:"entries"`
	Totals  []IssueTotal `json:"totals"`
}

// Meta summarizes the window the history covers.
type Meta struct {
	Generated     time.Time `json:"generated"`
	Days          int       `json:"days"`
	Author        string    `json:"author,omitempty"`
	TotalMinutes  int       `json:"total_minutes"`
	LoggedMinutes int       `json:"logged_minutes"`
	Pending       int       `json:"pending"`
}

// Entry is one session row.
type Entry struct {
	ID         string    `json:"id"`
	Parent     string    `json:"parent,omitempty"` // set on slices
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Minutes    int       `json:"minutes"`
	Issue      string    `json:"issue,omitempty"`
	Activity   string    `json:"activity"`
	Meeting    bool      `json:"meeting"`
	Confidence int       `json:"confidence"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	WorklogID  string    `json:"worklog_id,omitempty"`
	Apps       []string  `json:"apps,omitempty"`
	Branch     string    `json:"branch,omitempty"`
}

// IssueTotal sums the minutes spent per issue.
type IssueTotal struct {
	Issue    string `json:"issue"`
	Minutes  int    `json:"minutes"`
	Sessions int    `json:"sessions"`
}

// Classifier labels sessions.
type Classifier interface {
	Classify(s *session.Session) classify.Activity
}

const unassigned = "(unassigned)"

// Build assembles a History from sessions, newest first.
func Build(sessions []*session.Session, c Classifier, now time.Time, days int, author string) *History {
	h := &History{
		Meta:    Meta{Generated: now, Days: days, Author: author},
		Entries: []Entry{},
		Totals:  []IssueTotal{},
	}

	totals := map[string]*IssueTotal{}
	for _, s := range sessions {
		a := c.Classify(s)
		issue := s.LoggedIssueKey
		if issue == "" {
			issue = s.DetectedIssue
		}
		e := Entry{
			ID:         s.ID,
			Parent:     s.ParentID,
			Start:      s.StartTime,
			End:        s.Finish(),
			Minutes:    int(math.Round(s.Duration.Minutes())),
			Issue:      issue,
			Activity:   a.Description,
			Meeting:    a.IsMeeting,
			Confidence: s.Confidence,
			Status:     string(s.LogStatus),
			Reason:     s.LogReason,
			WorklogID:  s.LoggedWorklogID,
			Apps:       append([]string(nil), s.Applications...),
			Branch:     s.Branches.First(),
		}
		if e.Status == "" {
			e.Status = string(session.StatusUnlogged)
		}
		h.Entries = append(h.Entries, e)

		switch s.LogStatus {
		case session.StatusUnlogged, session.StatusSkipped, session.StatusError, "":
			h.Meta.Pending++
		}
		// A slice's time is already part of its parent, which counts as
		// logged once sliced.
		if s.ParentID != "" {
			if s.LogStatus != session.StatusLogged {
				h.Meta.LoggedMinutes -= e.Minutes
			}
			continue
		}

		h.Meta.TotalMinutes += e.Minutes
		if s.LogStatus == session.StatusLogged {
			h.Meta.LoggedMinutes += e.Minutes
		}

		key := issue
		if key == "" {
			key = unassigned
		}
		t, ok := totals[key]
		if !ok {
			t = &IssueTotal{Issue: key}
			totals[key] = t
		}
		t.Minutes += e.Minutes
		t.Sessions++
	}

	sort.SliceStable(h.Entries, func(i, j int) bool { return h.Entries[i].Start.After(h.Entries[j].Start) })
	for _, t := range totals {
		h.Totals = append(h.Totals, *t)
	}
	sort.Slice(h.Totals, func(i, j int) bool {
		if h.Totals[i].Minutes != h.Totals[j].Minutes {
			return h.Totals[i].Minutes > h.Totals[j].Minutes
		}
		return h.Totals[i].Issue < h.Totals[j].Issue
	})
	return h
}

// FormatMinutes renders minutes as "1h 05m" or "42m".
func FormatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}
