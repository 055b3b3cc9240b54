package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/fakeyudi/timeslice/internal/session"
)

// attemptSlice logs the next slice of an active session once a full
// slice length has elapsed past its LoggedUntil pointer. Sessions that
// are neither meetings nor attributed to an issue wait.
func (a *Agent) attemptSlice(ctx context.Context, s *session.Session, now time.Time) {
	cfg := a.config()
	if cfg.DisableSlicing || cfg.SliceLength <= 0 {
		return
	}
	if s.LoggedUntil.IsZero() {
		s.AdvanceLoggedUntil(s.StartTime, now)
	}
	if now.Sub(s.LoggedUntil) < cfg.SliceLength {
		return
	}
	if s.DetectedIssue == "" && !a.deps.Logger.Classify(s).IsMeeting {
		return
	}

	start := s.LoggedUntil
	end := start.Add(cfg.SliceLength)
	if end.After(now) {
		end = now
	}
	a.log.Info().Str("session", s.ID).Dur("elapsed", end.Sub(s.StartTime)).
		Dur("slice", end.Sub(start)).Msg("slice boundary reached")
	if _, err := a.logSlice(ctx, s, start, end); err != nil {
		// LoggedUntil stays put; the next tick retries the same span.
		return
	}
	s.AdvanceLoggedUntil(end, now)
}

// flushRemainder logs the span between LoggedUntil and the end of a
// finished session when it is long enough. A remainder that cannot be
// submitted is kept as its own session in error so reconciliation and
// approval can retry it. It reports whether slices account for the
// session's time.
func (a *Agent) flushRemainder(ctx context.Context, s *session.Session) bool {
	if !s.LoggedUntil.After(s.StartTime) {
		return a.sliced(s.ID)
	}
	cfg := a.config()
	end := s.Finish()
	rest := end.Sub(s.LoggedUntil)
	if rest >= cfg.RemainderThreshold {
		a.log.Info().Str("session", s.ID).Dur("remainder", rest).Msg("logging remainder slice")
		if sl, err := a.logSlice(ctx, s, s.LoggedUntil, end); err != nil {
			a.sessions = append(a.sessions, sl)
			a.save()
			a.log.Warn().Str("slice", sl.ID).Dur("duration", sl.Duration).Msg("remainder kept for retry")
		}
		s.AdvanceLoggedUntil(end, end)
	} else {
		a.log.Debug().Str("session", s.ID).Dur("remainder", rest).Msg("remainder below threshold, skipped")
	}
	return a.sliced(s.ID)
}

// logSlice submits [start, end) of parent as an independent worklog and
// returns the slice with the submission error. Slices under a third of
// the minimum session length are noise: nothing is submitted and the
// slice is nil.
func (a *Agent) logSlice(ctx context.Context, parent *session.Session, start, end time.Time) (*session.Session, error) {
	cfg := a.config()
	if end.Sub(start) < cfg.WorkSessionThreshold/3 {
		return nil, nil
	}
	sl := parent.Slice(start, end)
	res, err := a.deps.Logger.LogTime(ctx, sl)
	if err != nil {
		a.log.Error().Err(err).Str("slice", sl.ID).Msg("slice log failed")
		return sl, err
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.Slices.Inc()
	}
	if res.DryRun {
		a.log.Info().Str("slice", sl.ID).Msg("slice logged (dry run)")
		return sl, nil
	}
	a.markLogged(sl.ID)
	a.save()
	a.log.Info().Str("slice", sl.ID).Str("worklog", res.WorklogID).Msg("slice logged")
	return sl, nil
}

// sliced reports whether a slice of the session is in the logged set or
// kept for retry.
func (a *Agent) sliced(id string) bool {
	prefix := id + "_slice_"
	for i := len(a.order) - 1; i >= 0; i-- {
		if strings.HasPrefix(a.order[i], prefix) {
			return true
		}
	}
	for _, s := range a.sessions {
		if s.ParentID == id {
			return true
		}
	}
	return false
}
