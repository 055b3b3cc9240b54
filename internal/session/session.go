package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogStatus is the outcome of the latest attempt to report a session.
type LogStatus string

const (
	StatusUnlogged LogStatus = "unlogged"
	StatusDryRun   LogStatus = "dry-run"
	StatusLogged   LogStatus = "logged"
	StatusError    LogStatus = "error"
	StatusSkipped  LogStatus = "skipped"
)

// Session represents an active or completed block of detected work.
type Session struct {
	ID        string        `json:"id"`
	ParentID  string        `json:"parent_id,omitempty"` // set on slices
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	DetectedIssue string `json:"detected_issue,omitempty"`
	Confidence    int    `json:"confidence"`

	Applications Set `json:"applications"`
	WindowTitles Set `json:"window_titles"`
	Directories  Set `json:"directories"`
	Branches     Set `json:"branches"`

	MicroEvents EventRing `json:"micro_events"`

	// LastActivity is the timestamp of the latest qualifying snapshot.
	LastActivity time.Time `json:"last_activity"`
	// LoggedUntil marks how much of the session slices already cover.
	// Zero until the first slice attempt.
	LoggedUntil time.Time `json:"logged_until,omitempty"`

	LogStatus       LogStatus `json:"log_status,omitempty"`
	LogReason       string    `json:"log_reason,omitempty"`
	LoggedIssueKey  string    `json:"logged_issue_key,omitempty"`
	LoggedWorklogID string    `json:"logged_worklog_id,omitempty"`

	// ForceMeeting, CustomDescription and CustomAttributes are set on
	// synthetic sessions built from daily blocks.
	ForceMeeting      bool        `json:"force_meeting,omitempty"`
	CustomDescription string      `json:"custom_description,omitempty"`
	CustomAttributes  []Attribute `json:"custom_attributes,omitempty"`
}

// Attribute is one remote work attribute (key/value pair).
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewID returns a fresh session identifier.
func NewID(start time.Time) string {
	return fmt.Sprintf("session_%d_%s", start.UnixMilli(), uuid.NewString()[:8])
}

// New starts a session at start.
func New(start time.Time) *Session {
	return &Session{
		ID:           NewID(start),
		StartTime:    start,
		LastActivity: start,
		LogStatus:    StatusUnlogged,
	}
}

// Active reports whether the session has not ended.
func (s *Session) Active() bool { return s.EndTime == nil }

// End closes the session at t and fixes its duration.
func (s *Session) End(t time.Time) {
	if t.Before(s.StartTime) {
		t = s.StartTime
	}
	s.EndTime = &t
	s.Duration = t.Sub(s.StartTime)
}

// Finish returns the end time, or start+duration while active.
func (s *Session) Finish() time.Time {
	if s.EndTime != nil {
		return *s.EndTime
	}
	return s.StartTime.Add(s.Duration)
}

// AdvanceLoggedUntil moves the slice pointer to t, clamped to
// [StartTime, now]. It never moves the pointer backwards and reports
// whether it moved.
func (s *Session) AdvanceLoggedUntil(t, now time.Time) bool {
	if t.After(now) {
		t = now
	}
	if t.Before(s.StartTime) {
		t = s.StartTime
	}
	if !s.LoggedUntil.IsZero() && !t.After(s.LoggedUntil) {
		return false
	}
	s.LoggedUntil = t
	return true
}

// Slice derives an independent sub-segment [start, end) of the session.
// It inherits the issue, confidence and observed sets but carries no
// micro-events.
func (s *Session) Slice(start, end time.Time) *Session {
	e := end
	return &Session{
		ID:            fmt.Sprintf("%s_slice_%d", s.ID, start.UnixMilli()),
		ParentID:      s.ID,
		StartTime:     start,
		EndTime:       &e,
		Duration:      end.Sub(start),
		DetectedIssue: s.DetectedIssue,
		Confidence:    s.Confidence,
		Applications:  s.Applications.Clone(),
		WindowTitles:  s.WindowTitles.Clone(),
		Directories:   s.Directories.Clone(),
		Branches:      s.Branches.Clone(),
		LastActivity:  end,
		LogStatus:     StatusUnlogged,
		ForceMeeting:  s.ForceMeeting,
	}
}

// Clone returns a deep copy safe to hand to readers outside the agent lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		e := *s.EndTime
		c.EndTime = &e
	}
	c.Applications = s.Applications.Clone()
	c.WindowTitles = s.WindowTitles.Clone()
	c.Directories = s.Directories.Clone()
	c.Branches = s.Branches.Clone()
	c.MicroEvents = s.MicroEvents.Clone()
	if s.CustomAttributes != nil {
		c.CustomAttributes = append([]Attribute(nil), s.CustomAttributes...)
	}
	return &c
}

// Set is an insertion-ordered set of strings. Sessions keep a few dozen
// entries at most, so membership is a linear scan.
type Set []string

// Add appends v unless it is empty or already present.
func (s *Set) Add(v string) {
	if v == "" || s.Contains(v) {
		return
	}
	*s = append(*s, v)
}

func (s Set) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// First returns the earliest added value, or "".
func (s Set) First() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return append(Set(nil), s...)
}
