// Package worklog turns sessions into time-logging submissions and keeps
// the remote record consistent with the local one.
package worklog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/metrics"
	"github.com/fakeyudi/timeslice/internal/remote"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/tempo"
)

// ErrNoIssue is returned when a session has no issue to log against.
var ErrNoIssue = errors.New("no target issue for session")

// Log reasons recorded on sessions.
const (
	ReasonMeetingAuto   = "meeting-auto"
	ReasonLogged        = "logged"
	ReasonDryRun        = "dry-run-mode"
	ReasonDevThreshold  = "dev-threshold-met"
	ReasonCompletedAuto = "completed-session-auto"
	ReasonNoIssue       = "no-issue-detected"
	ReasonAlreadyLogged = "already-logged"
	ReasonSliced        = "sliced"
	ReasonRejected      = "rejected"
)

// Submitter creates worklogs remotely.
type Submitter interface {
	SubmitWorklog(ctx context.Context, p tempo.Payload) (string, error)
}

// IssueLookup resolves issue keys to numeric ids.
type IssueLookup interface {
	IssueID(ctx context.Context, key string) (string, error)
}

// Classifier labels sessions.
type Classifier interface {
	Classify(s *session.Session) classify.Activity
}

// Options configures a Logger.
type Options struct {
	DefaultMeetingIssue string
	AccountID           string
	DryRun              bool
	UseLocalDate        bool
	SimpleDescription   bool
	Now                 func() time.Time
	Metrics             *metrics.Registry
}

// Result describes one submission.
type Result struct {
	WorklogID string
	IssueKey  string
	DryRun    bool
}

// Logger submits sessions as worklogs. It records the outcome on the
// session it is given and never touches agent state itself.
type Logger struct {
	submit     Submitter
	issues     IssueLookup
	classifier Classifier
	opts       Options
	log        zerolog.Logger
}

// NewLogger returns a Logger. issues may be nil in dry-run mode.
func NewLogger(submit Submitter, issues IssueLookup, c Classifier, opts Options, logger zerolog.Logger) *Logger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Logger{
		submit:     submit,
		issues:     issues,
		classifier: c,
		opts:       opts,
		log:        logger.With().Str("component", "worklog").Logger(),
	}
}

// DryRun reports whether submissions are simulated.
func (l *Logger) DryRun() bool { return l.opts.DryRun }

// Classify exposes the classifier the logger uses.
func (l *Logger) Classify(s *session.Session) classify.Activity {
	return l.classifier.Classify(s)
}

// TargetIssue returns the issue a session would be logged against:
// the default meeting issue for meetings, the detected issue otherwise.
// Forced meetings keep an explicit issue.
func (l *Logger) TargetIssue(s *session.Session, a classify.Activity) string {
	if a.IsMeeting && !(s.ForceMeeting && s.DetectedIssue != "") {
		return l.opts.DefaultMeetingIssue
	}
	return s.DetectedIssue
}

// LogTime submits s and records status, reason, issue key and worklog id
// on it. In dry-run mode nothing is sent and the status is dry-run.
// A 400 answer is retried once with only the time category attribute.
func (l *Logger) LogTime(ctx context.Context, s *session.Session) (Result, error) {
	res, err := l.logTime(ctx, s)
	if err != nil {
		s.LogStatus = session.StatusError
		s.LogReason = err.Error()
		l.count("error")
		l.log.Error().Err(err).Str("session", s.ID).Str("issue", res.IssueKey).Msg("worklog submission failed")
		return res, err
	}
	if res.DryRun {
		l.count("dry_run")
	} else {
		l.count("logged")
	}
	return res, nil
}

func (l *Logger) logTime(ctx context.Context, s *session.Session) (Result, error) {
	a := l.classifier.Classify(s)
	key := l.TargetIssue(s, a)
	res := Result{IssueKey: key}
	if key == "" {
		return res, ErrNoIssue
	}

	seconds := int(math.Round(s.Duration.Seconds()))
	description := Describe(s, a, l.opts.SimpleDescription)

	var issueID int64
	if l.issues != nil {
		raw, err := l.issues.IssueID(ctx, key)
		if err != nil {
			return res, err
		}
		if issueID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return res, fmt.Errorf("issue %s has non-numeric id %q", key, raw)
		}
	} else if !l.opts.DryRun {
		return res, errors.New("issue tracker is not configured")
	}

	attrs := s.CustomAttributes
	if len(attrs) == 0 {
		attrs = Attributes(a)
	}
	payload := tempo.Payload{
		Attributes:       Normalize(attrs),
		AuthorAccountID:  l.opts.AccountID,
		BillableSeconds:  seconds,
		Description:      description,
		IssueID:          issueID,
		StartDate:        StartDate(s.StartTime, l.opts.UseLocalDate),
		StartTime:        s.StartTime.Local().Format(clockLayout),
		TimeSpentSeconds: seconds,
	}

	if l.opts.DryRun {
		s.LogStatus = session.StatusDryRun
		s.LogReason = ReasonDryRun
		res.DryRun = true
		res.WorklogID = fmt.Sprintf("dry-run-%d", l.opts.Now().UnixMilli())
		l.log.Info().Str("session", s.ID).Str("issue", key).Int("seconds", seconds).
			Str("activity", a.Description).Msg("dry run: worklog not submitted")
		return res, nil
	}

	id, err := l.submit.SubmitWorklog(ctx, payload)
	if err != nil {
		if !remote.IsValidation(err, http.StatusBadRequest) {
			return res, err
		}
		l.log.Warn().Err(err).Str("issue", key).Msg("worklog rejected, retrying with time category only")
		payload.Attributes = categoryOnly(payload.Attributes)
		var fbErr error
		if id, fbErr = l.submit.SubmitWorklog(ctx, payload); fbErr != nil {
			return res, fmt.Errorf("worklog for %s rejected even without technology type: %w (fallback: %v)", key, err, fbErr)
		}
	}
	if id == "" {
		l.log.Warn().Str("session", s.ID).Msg("worklog response carried no id")
	}

	s.LoggedIssueKey = key
	s.LoggedWorklogID = id
	s.LogStatus = session.StatusLogged
	s.LogReason = ReasonLogged
	if a.IsMeeting {
		s.LogReason = ReasonMeetingAuto
	}
	res.WorklogID = id
	l.log.Info().Str("session", s.ID).Str("issue", key).Str("worklog", id).
		Dur("duration", s.Duration).Str("activity", a.Description).Msg("worklog submitted")
	return res, nil
}

func (l *Logger) count(status string) {
	if l.opts.Metrics != nil {
		l.opts.Metrics.Worklogs.WithLabelValues(status).Inc()
	}
}

// StartDate renders the worklog date of t: the UTC calendar date unless
// local dates are requested.
func StartDate(t time.Time, local bool) string {
	if local {
		return t.Local().Format(time.DateOnly)
	}
	return t.UTC().Format(time.DateOnly)
}
