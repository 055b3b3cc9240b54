package worklog

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/metrics"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/tempo"
)

// Lister reads remote worklogs.
type Lister interface {
	ListWorklogs(ctx context.Context, from, to time.Time) ([]tempo.Worklog, error)
}

// Missing is a local session with no matching remote worklog.
type Missing struct {
	ID      string            `json:"id"`
	Issue   string            `json:"issue"`
	Date    string            `json:"date"`
	Minutes int               `json:"minutes"`
	Status  session.LogStatus `json:"status,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// Relog is one successful re-submission.
type Relog struct {
	ID        string `json:"id"`
	WorklogID string `json:"worklogId,omitempty"`
}

// Summary is the outcome of one reconciliation pass.
type Summary struct {
	OK                 bool      `json:"ok"`
	At                 time.Time `json:"at"`
	From               string    `json:"from,omitempty"`
	To                 string    `json:"to,omitempty"`
	RemoteCount        int       `json:"remoteCount"`
	CandidateSessions  int       `json:"candidateSessions"`
	MissingBeforeRelog int       `json:"missingBeforeRelog"`
	Missing            []Missing `json:"missing,omitempty"`
	Relogged           []Relog   `json:"relogged,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	// Threshold is the minimum session duration worth reconciling.
	Threshold    time.Duration
	UseLocalDate bool
	Now          func() time.Time
	Metrics      *metrics.Registry
}

// Reconciler compares local sessions with remote worklogs and re-submits
// what is missing. Each session gets at most one re-submission attempt
// per Reconciler, successful or not.
type Reconciler struct {
	list   Lister
	logger *Logger
	opts   ReconcilerOptions
	log    zerolog.Logger

	mu        sync.Mutex
	attempted map[string]bool
	last      *Summary
}

// NewReconciler returns a Reconciler.
func NewReconciler(list Lister, logger *Logger, opts ReconcilerOptions, log zerolog.Logger) *Reconciler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		list:      list,
		logger:    logger,
		opts:      opts,
		log:       log.With().Str("component", "reconcile").Logger(),
		attempted: make(map[string]bool),
	}
}

// SetThreshold updates the minimum duration after a config change.
func (r *Reconciler) SetThreshold(d time.Duration) {
	r.mu.Lock()
	r.opts.Threshold = d
	r.mu.Unlock()
}

// compositeKey identifies a worklog independently of remote ids.
func compositeKey(date, issue string, seconds float64) string {
	return fmt.Sprintf("%s|%s|%d", date, issue, int(math.Round(seconds/60)))
}

// Remote is one fetched window of remote worklogs.
type Remote struct {
	At   time.Time
	From string
	To   string
	Logs []tempo.Worklog
}

// Reconcile checks sessions against the remote worklogs of the last
// daysBack days and re-submits missing ones. Sessions are updated in
// place.
func (r *Reconciler) Reconcile(ctx context.Context, sessions []*session.Session, daysBack int) Summary {
	rem, err := r.Fetch(ctx, daysBack)
	if err != nil {
		return *r.Last()
	}
	sum, due := r.Plan(rem, sessions)
	r.Relog(ctx, &sum, due)
	return sum
}

// Fetch reads the remote worklogs of the last daysBack days. A failure
// is recorded as the latest summary.
func (r *Reconciler) Fetch(ctx context.Context, daysBack int) (*Remote, error) {
	now := r.opts.Now()
	from := now.Add(-time.Duration(daysBack) * 24 * time.Hour).UTC()
	to := now.UTC()
	rem := &Remote{At: now, From: from.Format(time.DateOnly), To: to.Format(time.DateOnly)}

	r.log.Info().Str("from", rem.From).Str("to", rem.To).Msg("reconciliation started")
	logs, err := r.list.ListWorklogs(ctx, from, to)
	if err != nil {
		r.log.Error().Err(err).Msg("reconciliation: fetching worklogs failed")
		r.mu.Lock()
		r.last = &Summary{OK: false, At: now, Error: "Fetch failed"}
		r.mu.Unlock()
		return nil, err
	}
	rem.Logs = logs
	return rem, nil
}

// Plan compares sessions with a fetched window. It returns the summary so
// far and the sessions to re-submit, each claimed so that no later pass
// submits it again. Plan does no I/O.
func (r *Reconciler) Plan(rem *Remote, sessions []*session.Session) (Summary, []*session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := Summary{At: rem.At, From: rem.From, To: rem.To, RemoteCount: len(rem.Logs)}
	remoteKeys := make(map[string]bool, len(rem.Logs))
	for _, w := range rem.Logs {
		remoteKeys[compositeKey(w.StartDate, w.Key(), float64(w.TimeSpentSeconds))] = true
	}

	var due []*session.Session
	for _, s := range sessions {
		if !r.eligible(s) {
			continue
		}
		sum.CandidateSessions++
		// Sliced parents are covered by their slices and rejected
		// sessions are never expected remotely.
		if s.LogStatus == session.StatusLogged && s.LogReason == ReasonSliced {
			continue
		}
		if s.LogStatus == session.StatusSkipped && s.LogReason == ReasonRejected {
			continue
		}

		issue := s.LoggedIssueKey
		if issue == "" {
			issue = s.DetectedIssue
		}
		if issue == "" && r.logger.Classify(s).IsMeeting {
			issue = r.logger.opts.DefaultMeetingIssue
		}
		if issue == "" {
			continue
		}
		date := StartDate(s.StartTime, r.opts.UseLocalDate)
		if remoteKeys[compositeKey(date, issue, s.Duration.Seconds())] {
			continue
		}
		sum.Missing = append(sum.Missing, Missing{
			ID:      s.ID,
			Issue:   issue,
			Date:    date,
			Minutes: int(math.Round(s.Duration.Minutes())),
			Status:  s.LogStatus,
			Reason:  s.LogReason,
		})

		if s.LogStatus == session.StatusLogged && s.LoggedWorklogID != "" {
			continue
		}
		if r.attempted[s.ID] {
			continue
		}
		r.attempted[s.ID] = true
		due = append(due, s)
	}
	sum.MissingBeforeRelog = len(sum.Missing)
	return sum, due
}

// eligible reports whether s is long enough to reconcile. Slices were
// already filtered when they were carved, so any slice qualifies.
func (r *Reconciler) eligible(s *session.Session) bool {
	return s.ParentID != "" || s.Duration >= r.opts.Threshold
}

// Relog re-submits the sessions returned by Plan, records the outcome in
// sum and keeps sum as the latest summary.
func (r *Reconciler) Relog(ctx context.Context, sum *Summary, due []*session.Session) {
	for _, s := range due {
		r.log.Info().Str("session", s.ID).Dur("duration", s.Duration).Msg("re-logging missing session")
		res, err := r.logger.LogTime(ctx, s)
		if err != nil {
			r.log.Warn().Err(err).Str("session", s.ID).Msg("re-log failed")
			continue
		}
		id := s.LoggedWorklogID
		if id == "" {
			id = res.WorklogID
		}
		sum.Relogged = append(sum.Relogged, Relog{ID: s.ID, WorklogID: id})
		if r.opts.Metrics != nil {
			r.opts.Metrics.Reconciled.Inc()
		}
	}

	sum.OK = true
	r.log.Info().Int("remote", sum.RemoteCount).Int("candidates", sum.CandidateSessions).
		Int("missing", sum.MissingBeforeRelog).Int("relogged", len(sum.Relogged)).
		Msg("reconciliation complete")
	r.mu.Lock()
	last := *sum
	r.last = &last
	r.mu.Unlock()
}

// Last returns the most recent summary, or nil before the first pass.
func (r *Reconciler) Last() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}
