package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/jira"
	"github.com/fakeyudi/timeslice/internal/metrics"
	"github.com/fakeyudi/timeslice/internal/runner"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/tempo"
	"github.com/fakeyudi/timeslice/internal/tracker"
	"github.com/fakeyudi/timeslice/internal/worklog"
)

// errTempoMissing is returned for submissions when no Tempo token is set.
var errTempoMissing = errors.New("tempo is not configured, run 'timeslice setup' or set TEMPO_API_TOKEN")

type missingTempo struct{}

func (missingTempo) SubmitWorklog(context.Context, tempo.Payload) (string, error) {
	return "", errTempoMissing
}

// wiring is everything built for one agent.
type wiring struct {
	agent    *tracker.Agent
	metrics  *metrics.Registry
	exec     *runner.Executor
	snapshot *collector.Snapshotter
	store    session.Store
}

func (w *wiring) close() {
	if w.exec != nil {
		w.exec.Close()
	}
}

// offlineLogger keeps one-shot commands quiet unless debug logging is on.
func offlineLogger() zerolog.Logger {
	if logger.GetLevel() <= zerolog.DebugLevel {
		return logger
	}
	return logger.Level(zerolog.WarnLevel)
}

// buildAgent wires an Agent for c. With sample set it also builds the
// executor and the OS probes needed to run the loops.
func buildAgent(ctx context.Context, c config.Config, log zerolog.Logger, sample bool) (*wiring, error) {
	w := &wiring{metrics: metrics.New()}

	store, err := session.NewStore(c.TestMode)
	if err != nil {
		return nil, err
	}
	w.store = store

	classifier := classify.NewClassifier(classify.ClassifierOptions{
		Threshold: c.MeetingScoreThreshold,
		Legacy:    c.LegacyMeetingDetection,
	})

	var (
		issues     worklog.IssueLookup
		source     tracker.IssueSource
		submit     worklog.Submitter = missingTempo{}
		lister     worklog.Lister
		reconciler *worklog.Reconciler
	)

	var jc *jira.Client
	if c.Jira.BaseURL != "" && c.Jira.APIToken != "" {
		if jc, err = jira.New(c.Jira, jira.Options{}, log); err != nil {
			return nil, err
		}
		issues, source = jc, jc
	} else {
		log.Warn().Msg("jira is not configured; issue lookups are disabled")
	}

	accountID := c.Tempo.AccountID
	if c.Tempo.APIToken != "" {
		tc, err := tempo.New(c.Tempo, log)
		if err != nil {
			return nil, err
		}
		submit, lister = tc, tc
		if accountID == "" && jc != nil {
			if me, err := jc.Myself(ctx); err == nil {
				accountID = me.AccountID
			} else {
				log.Warn().Err(err).Msg("could not resolve the worklog author account")
			}
		}
	} else {
		log.Warn().Msg("tempo is not configured; worklogs cannot be submitted")
	}

	wl := worklog.NewLogger(submit, issues, classifier, worklog.Options{
		DefaultMeetingIssue: c.DefaultMeetingIssue,
		AccountID:           accountID,
		DryRun:              c.DryRun,
		UseLocalDate:        c.UseLocalDate,
		SimpleDescription:   c.SimpleDescription,
		Metrics:             w.metrics,
	}, log)

	if lister != nil {
		reconciler = worklog.NewReconciler(lister, wl, worklog.ReconcilerOptions{
			Threshold:    c.WorkSessionThreshold,
			UseLocalDate: c.UseLocalDate,
			Metrics:      w.metrics,
		}, log)
	}

	deps := tracker.Deps{
		Issues:     source,
		Logger:     wl,
		Reconciler: reconciler,
		Store:      store,
		Metrics:    w.metrics,
	}

	if sample {
		w.exec = runner.NewExecutor(runner.ExecRunner{Timeout: c.ExecTimeout}, runner.Options{
			MaxConcurrent: c.MaxConcurrentExec,
			MaxPerMinute:  c.MaxExecPerMinute,
			Cooldown:      c.EAGAINCooldown,
			Metrics:       w.metrics,
			Logger:        log,
		})
		apps := collector.NewAppEnumerator(w.exec, collector.EnumOptions{
			Refresh:     c.AppsRefreshInterval,
			BackoffBase: c.EnumBackoffBase,
			BackoffMax:  c.EnumBackoffMax,
			Metrics:     w.metrics,
			Logger:      log,
		})
		w.snapshot = &collector.Snapshotter{
			Probe:  collector.NewOSProbe(w.exec),
			Apps:   apps,
			Git:    &collector.GitProbe{},
			Editor: &collector.EditorFiles{},
		}
		deps.Sampler = w.snapshot
		deps.ExecStats = w.exec.Stats
		deps.EnumStats = apps.Stats
	}

	w.agent = tracker.New(c, deps, log)
	if w.snapshot != nil {
		w.snapshot.WorkHours = func(t time.Time) bool { return w.agent.Config().WithinWorkHours(t) }
	}
	return w, nil
}

// loadAgent builds an agent that is not started and loads the saved state.
func loadAgent(ctx context.Context) (*wiring, error) {
	c := GetConfig()
	w, err := buildAgent(ctx, c, offlineLogger(), false)
	if err != nil {
		return nil, err
	}
	if err := w.agent.Load(); err != nil {
		return nil, fmt.Errorf("loading state from %s: %w", w.store.Path(), err)
	}
	return w, nil
}

// commandContext bounds one-shot network commands.
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, 2*time.Minute)
}
