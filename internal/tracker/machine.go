package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/worklog"
)

// Confidence floors for automatic logging.
const (
	autoLogConfidence   = 70
	completedConfidence = 60
)

// tick is one coarse monitoring cycle. OS idle is checked first: when
// it ends the active session the tick collects nothing else.
func (a *Agent) tick(ctx context.Context) {
	cfg := a.config()

	idle, err := a.deps.Sampler.IdleSeconds(ctx)
	if err != nil {
		idle = 0
	}
	a.mu.Lock()
	if a.current != nil && time.Duration(idle*float64(time.Second)) >= cfg.IdleThreshold {
		a.log.Info().Float64("idle_seconds", idle).Dur("threshold", cfg.IdleThreshold).Msg("system idle, ending session")
		a.endSession(ctx, a.now(), "os-idle")
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	snap := a.deps.Sampler.Snapshot(ctx)
	work := collector.IsWorkActivity(snap)
	a.log.Debug().Str("app", snap.ActiveApp).Bool("working_hours", snap.WorkingHours).
		Bool("work", work).Msg("activity detected")

	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	if a.current != nil && cfg.MaxSessionDuration > 0 && now.Sub(a.current.StartTime) >= cfg.MaxSessionDuration {
		a.log.Info().Str("session", a.current.ID).Dur("max", cfg.MaxSessionDuration).Msg("session reached maximum duration")
		a.endSession(ctx, now, "max-duration")
	}
	if work {
		a.handleWork(ctx, snap, now)
	} else {
		a.handleIdle(ctx, now)
	}
	a.autoLogCompleted(ctx)
}

// handleWork starts a session or folds snap into the active one.
func (a *Agent) handleWork(ctx context.Context, snap collector.Snapshot, now time.Time) {
	cfg := a.config()

	if a.current == nil {
		s := session.New(now)
		res := a.resolver().Resolve(snap, nil)
		s.DetectedIssue = res.Key
		s.Confidence = classify.Confidence(snap, nil)
		observe(s, snap)
		a.current = s
		if a.deps.Metrics != nil {
			a.deps.Metrics.ActiveSession.Set(1)
		}
		act := a.deps.Logger.Classify(s)
		a.log.Info().Str("session", s.ID).Str("issue", s.DetectedIssue).Str("source", res.Source).
			Int("confidence", s.Confidence).Bool("meeting", act.IsMeeting).Msg("work session started")
		return
	}

	s := a.current
	observe(s, snap)

	res := a.resolver().Resolve(snap, &s.MicroEvents)
	if res.Key != "" {
		if conf := classify.Confidence(snap, &s.MicroEvents); conf > s.Confidence {
			a.log.Info().Str("session", s.ID).Str("from", s.DetectedIssue).Str("to", res.Key).
				Int("confidence", conf).Str("source", res.Source).Msg("session issue updated")
			s.DetectedIssue = res.Key
			s.Confidence = conf
		}
	}

	prev := s.Duration
	s.Duration = now.Sub(s.StartTime)
	s.LastActivity = now
	if m := int(s.Duration / (15 * time.Minute)); m > 0 && m != int(prev/(15*time.Minute)) {
		a.log.Info().Str("session", s.ID).Dur("duration", s.Duration).Str("issue", s.DetectedIssue).Msg("session progress")
	}

	a.attemptSlice(ctx, s, now)

	if s.Duration >= cfg.AutoLogThreshold {
		a.autoLogCurrent(ctx, s, now)
	}
}

func observe(s *session.Session, snap collector.Snapshot) {
	s.Applications.Add(snap.ActiveApp)
	s.WindowTitles.Add(snap.WindowTitle)
	s.Directories.Add(snap.Directory)
	s.Branches.Add(snap.Branch)
}

// handleIdle ends the active session once no qualifying activity has
// been seen for longer than the minimum session threshold.
func (a *Agent) handleIdle(ctx context.Context, now time.Time) {
	if a.current == nil {
		return
	}
	cfg := a.config()
	gap := now.Sub(a.current.LastActivity)
	a.log.Debug().Str("session", a.current.ID).Dur("idle", gap).Msg("idle activity")
	if gap > cfg.WorkSessionThreshold {
		a.log.Info().Str("session", a.current.ID).Dur("idle", gap).Msg("inactivity exceeded threshold, ending session")
		a.endSession(ctx, now, "inactive")
	}
}

// endSession closes the active session at now: it flushes the remainder
// slice, then keeps the session in history when it is long enough.
func (a *Agent) endSession(ctx context.Context, now time.Time, reason string) {
	s := a.current
	if s == nil {
		return
	}
	cfg := a.config()
	s.End(now)

	if a.flushRemainder(ctx, s) && !a.logged[s.ID] {
		// The slices carry the time; the whole session must never be
		// submitted on top of them.
		s.LogStatus = session.StatusLogged
		s.LogReason = worklog.ReasonSliced
		a.markLogged(s.ID)
	}

	if s.Duration >= cfg.WorkSessionThreshold {
		a.sessions = append(a.sessions, s)
		a.log.Info().Str("session", s.ID).Str("reason", reason).Dur("duration", s.Duration).
			Str("issue", s.DetectedIssue).Msg("session saved")
		a.save()
	} else {
		a.log.Info().Str("session", s.ID).Str("reason", reason).Dur("duration", s.Duration).
			Msg("session too short, discarded")
	}

	a.current = nil
	if a.deps.Metrics != nil {
		a.deps.Metrics.ActiveSession.Set(0)
	}
}

// autoLogCurrent submits the whole in-progress session once it crosses
// the auto-log threshold, unless slices already account for its time.
func (a *Agent) autoLogCurrent(ctx context.Context, s *session.Session, now time.Time) {
	if a.logged[s.ID] {
		if s.LogStatus == session.StatusUnlogged {
			s.LogStatus = session.StatusLogged
			s.LogReason = worklog.ReasonAlreadyLogged
		}
		return
	}
	if s.LoggedUntil.After(s.StartTime) {
		return
	}
	// A failed attempt is not repeated every tick; the completed session
	// is left to reconciliation and approval.
	if s.LogStatus == session.StatusError {
		return
	}

	act := a.deps.Logger.Classify(s)
	shouldLog := act.IsMeeting || (s.DetectedIssue != "" && s.Confidence >= autoLogConfidence)
	a.log.Info().Str("session", s.ID).Bool("meeting", act.IsMeeting).Str("issue", s.DetectedIssue).
		Int("confidence", s.Confidence).Bool("log", shouldLog).Msg("auto-log evaluation")

	if !shouldLog {
		s.LogStatus = session.StatusSkipped
		if s.DetectedIssue == "" && !act.IsMeeting {
			s.LogReason = worklog.ReasonNoIssue
		} else {
			s.LogReason = fmt.Sprintf("low-confidence-%d", s.Confidence)
		}
		return
	}

	res, err := a.deps.Logger.LogTime(ctx, s)
	if err != nil {
		a.log.Warn().Str("session", s.ID).Msg("auto-log failed, not retrying while active")
		a.save()
		return
	}
	// Whatever follows this instant belongs to slices.
	s.AdvanceLoggedUntil(now, now)
	if res.DryRun {
		return
	}
	s.LogReason = worklog.ReasonDevThreshold
	if act.IsMeeting {
		s.LogReason = worklog.ReasonMeetingAuto
	}
	a.markLogged(s.ID)
	a.save()
}

// autoLogCompleted submits finished sessions that qualify and were never
// reported. Failed and dry-run sessions are left to reconciliation and
// manual approval.
func (a *Agent) autoLogCompleted(ctx context.Context) {
	cfg := a.config()
	var due []*session.Session
	for _, s := range a.sessions {
		if a.logged[s.ID] || a.relogging[s.ID] || s.Duration < cfg.WorkSessionThreshold {
			continue
		}
		if s.LogStatus == session.StatusError || s.LogStatus == session.StatusDryRun {
			continue
		}
		act := a.deps.Logger.Classify(s)
		if act.IsMeeting || (s.DetectedIssue != "" && s.Confidence >= completedConfidence) {
			due = append(due, s)
		}
	}
	if len(due) == 0 {
		return
	}

	a.log.Info().Int("sessions", len(due)).Msg("auto-logging completed sessions")
	for _, s := range due {
		act := a.deps.Logger.Classify(s)
		res, err := a.deps.Logger.LogTime(ctx, s)
		if err != nil || res.DryRun {
			continue
		}
		s.LogReason = worklog.ReasonCompletedAuto
		if act.IsMeeting {
			s.LogReason = worklog.ReasonMeetingAuto
		}
		a.markLogged(s.ID)
	}
	a.save()
}
