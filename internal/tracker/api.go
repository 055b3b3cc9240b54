package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/runner"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/worklog"
)

// Status is a point-in-time summary of the agent.
type Status struct {
	Running  bool `json:"running"`
	TestMode bool `json:"testMode"`
	DryRun   bool `json:"dryRun"`

	Config struct {
		MonitoringInterval   time.Duration `json:"monitoringInterval"`
		WorkSessionThreshold time.Duration `json:"workSessionThreshold"`
		AutoLogThreshold     time.Duration `json:"autoLogThreshold"`
	} `json:"config"`

	Current *CurrentSession `json:"currentSession"`

	TotalSessions   int `json:"totalSessions"`
	LoggedSessions  int `json:"loggedSessions"`
	PendingSessions int `json:"pendingSessions"`
	AssignedIssues  int `json:"assignedIssues"`

	Exec          *runner.Stats        `json:"exec,omitempty"`
	Enumeration   *collector.EnumStats `json:"enumeration,omitempty"`
	LastReconcile *worklog.Summary     `json:"lastReconcile,omitempty"`
}

// CurrentSession summarizes the active session.
type CurrentSession struct {
	ID         string        `json:"id"`
	Start      time.Time     `json:"start"`
	Duration   time.Duration `json:"duration"`
	Issue      string        `json:"detectedIssue,omitempty"`
	Confidence int           `json:"confidence"`
}

// Status reports the agent state.
func (a *Agent) Status() Status {
	cfg := a.config()

	a.mu.Lock()
	var st Status
	st.Running = a.running
	st.TestMode = cfg.TestMode
	st.DryRun = cfg.DryRun
	st.Config.MonitoringInterval = cfg.MonitoringInterval
	st.Config.WorkSessionThreshold = cfg.WorkSessionThreshold
	st.Config.AutoLogThreshold = cfg.AutoLogThreshold
	if s := a.current; s != nil {
		st.Current = &CurrentSession{
			ID:         s.ID,
			Start:      s.StartTime,
			Duration:   s.Duration,
			Issue:      s.DetectedIssue,
			Confidence: s.Confidence,
		}
	}
	st.TotalSessions = len(a.sessions)
	st.LoggedSessions = len(a.order)
	for _, s := range a.sessions {
		if a.pending(s, cfg) {
			st.PendingSessions++
		}
	}
	st.AssignedIssues = len(a.assigned)
	a.mu.Unlock()

	if a.deps.ExecStats != nil {
		es := a.deps.ExecStats()
		st.Exec = &es
	}
	if a.deps.EnumStats != nil {
		en := a.deps.EnumStats()
		st.Enumeration = &en
	}
	if a.deps.Reconciler != nil {
		st.LastReconcile = a.deps.Reconciler.Last()
	}
	return st
}

// SessionHistory returns copies of the saved sessions that started in
// the last days days, oldest first.
func (a *Agent) SessionHistory(days int) []*session.Session {
	cutoff := a.now().Add(-time.Duration(days) * 24 * time.Hour)

	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*session.Session
	for _, s := range a.sessions {
		if s.StartTime.Before(cutoff) {
			continue
		}
		c := s.Clone()
		if c.LogStatus == "" {
			c.LogStatus = session.StatusUnlogged
		}
		out = append(out, c)
	}
	return out
}

// PendingSessions returns copies of saved sessions that were never
// reported and would be logged: meetings, or work with an issue.
func (a *Agent) PendingSessions() []*session.Session {
	cfg := a.config()

	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*session.Session
	for _, s := range a.sessions {
		if a.pending(s, cfg) {
			out = append(out, s.Clone())
		}
	}
	return out
}

// pending reports whether s awaits a decision. The caller holds mu.
func (a *Agent) pending(s *session.Session, cfg config.Config) bool {
	if a.logged[s.ID] || a.relogging[s.ID] {
		return false
	}
	// Slices were sized when carved; the threshold applies to whole sessions.
	if s.ParentID == "" && s.Duration < cfg.WorkSessionThreshold {
		return false
	}
	return s.DetectedIssue != "" || a.deps.Logger.Classify(s).IsMeeting
}

// ApproveSession logs a saved session now. It reports false when the
// session is unknown or already logged.
func (a *Agent) ApproveSession(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.find(id)
	if s == nil || a.logged[id] || a.relogging[id] {
		a.log.Warn().Str("session", id).Msg("cannot approve: not found or already logged")
		return false, nil
	}
	a.log.Info().Str("session", id).Str("issue", s.DetectedIssue).Dur("duration", s.Duration).Msg("approving session")
	if _, err := a.deps.Logger.LogTime(ctx, s); err != nil {
		a.save()
		return false, fmt.Errorf("approving %s: %w", id, err)
	}
	a.markLogged(id)
	a.save()
	return true, nil
}

// RejectSession marks a session as handled without logging it.
// Reconciliation leaves rejected sessions alone.
func (a *Agent) RejectSession(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s := a.find(id); s != nil {
		s.LogStatus = session.StatusSkipped
		s.LogReason = worklog.ReasonRejected
	}
	a.markLogged(id)
	a.save()
	a.log.Info().Str("session", id).Msg("session rejected")
	return true
}

// UpdateSessionIssue reassigns a saved session to key with full
// confidence. It reports false when the session is unknown.
func (a *Agent) UpdateSessionIssue(id, key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.find(id)
	if s == nil {
		a.log.Warn().Str("session", id).Msg("cannot update issue: session not found")
		return false
	}
	old := s.DetectedIssue
	s.DetectedIssue = key
	s.Confidence = 100
	a.save()
	a.log.Info().Str("session", id).Str("from", old).Str("to", key).Msg("session issue updated")
	return true
}

// TriggerReconciliation compares saved sessions with the remote
// worklogs of the last daysBack days and re-submits missing ones.
// Remote calls run without mu; sessions being re-submitted are held
// out of auto-logging and approval until their outcome is copied back.
func (a *Agent) TriggerReconciliation(ctx context.Context, daysBack int) worklog.Summary {
	rc := a.deps.Reconciler
	if rc == nil {
		return worklog.Summary{At: a.now(), Error: "reconciliation is not configured"}
	}
	rem, err := rc.Fetch(ctx, daysBack)
	if err != nil {
		return *rc.Last()
	}

	a.mu.Lock()
	sum, due := rc.Plan(rem, a.sessions)
	work := make([]*session.Session, 0, len(due))
	for _, s := range due {
		a.relogging[s.ID] = true
		work = append(work, s.Clone())
	}
	a.mu.Unlock()

	rc.Relog(ctx, &sum, work)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range work {
		delete(a.relogging, c.ID)
		s := a.find(c.ID)
		if s == nil {
			continue
		}
		s.LogStatus = c.LogStatus
		s.LogReason = c.LogReason
		s.LoggedIssueKey = c.LoggedIssueKey
		s.LoggedWorklogID = c.LoggedWorklogID
		if s.LogStatus == session.StatusLogged {
			a.markLogged(s.ID)
		}
	}
	if len(work) > 0 {
		a.save()
	}
	return sum
}

// LogDailyBlocks submits a day of structured blocks.
func (a *Agent) LogDailyBlocks(ctx context.Context, day worklog.DailyDay) worklog.DayResult {
	res := a.deps.Logger.LogDailyBlocks(ctx, day)
	a.log.Info().Str("date", day.Date).Int("blocks", len(res.Results)).Msg("daily blocks processed")
	return res
}

// Current returns a copy of the active session, or nil.
func (a *Agent) Current() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Clone()
}

func (a *Agent) find(id string) *session.Session {
	for _, s := range a.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}
