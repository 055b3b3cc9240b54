// Package tracker hosts the agent: the coarse and fine sampling loops,
// the session state machine, hourly slicing and the collaborator API.
package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/jira"
	"github.com/fakeyudi/timeslice/internal/metrics"
	"github.com/fakeyudi/timeslice/internal/runner"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/worklog"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sampler collects observations of the desktop.
type Sampler interface {
	Snapshot(ctx context.Context) collector.Snapshot
	Sample(ctx context.Context) collector.Sample
	IdleSeconds(ctx context.Context) (float64, error)
}

// IssueSource lists the issues assigned to the user.
type IssueSource interface {
	AssignedIssues(ctx context.Context) ([]jira.Issue, error)
}

// Deps are the collaborators of an Agent. Sampler may be nil for an
// agent that is never started; Issues and Reconciler may be nil when
// the remote services are not configured.
type Deps struct {
	Sampler    Sampler
	Issues     IssueSource
	Logger     *worklog.Logger
	Reconciler *worklog.Reconciler
	Store      session.Store
	Clock      Clock
	Metrics    *metrics.Registry

	ExecStats func() runner.Stats
	EnumStats func() collector.EnumStats
}

// Agent owns the session state. Every mutation happens under mu, from
// the loops or the public API; readers get clones.
type Agent struct {
	deps Deps
	cfg  atomic.Pointer[config.Config]
	log  zerolog.Logger

	mu        sync.Mutex
	running   bool
	current   *session.Session
	sessions  []*session.Session
	logged    map[string]bool
	order     []string        // logged ids in insertion order
	relogging map[string]bool // ids a reconcile pass is submitting unlocked
	assigned  []jira.Issue
	known     classify.KnownIssues
	keywords  *classify.KeywordMap
	started   time.Time
	lastFP    string // fingerprint of the previous window sample

	refresh singleflight.Group
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an Agent. Call Load before using the API offline, or
// Start to run the loops.
func New(cfg config.Config, deps Deps, logger zerolog.Logger) *Agent {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	a := &Agent{
		deps:      deps,
		log:       logger.With().Str("component", "agent").Logger(),
		logged:    make(map[string]bool),
		relogging: make(map[string]bool),
		known:     classify.NewKnownIssues(),
		keywords:  classify.NewKeywordMap(nil),
	}
	a.cfg.Store(&cfg)
	return a
}

func (a *Agent) config() config.Config { return *a.cfg.Load() }

// Config returns the current configuration snapshot.
func (a *Agent) Config() config.Config { return a.config() }

func (a *Agent) now() time.Time { return a.deps.Clock.Now() }

// ReloadConfig swaps the configuration snapshot. Loops pick up new
// intervals on their next tick.
func (a *Agent) ReloadConfig(cfg config.Config) {
	a.cfg.Store(&cfg)
	if a.deps.Reconciler != nil {
		a.deps.Reconciler.SetThreshold(cfg.WorkSessionThreshold)
	}
	a.log.Info().Dur("monitoring_interval", cfg.MonitoringInterval).
		Dur("work_session_threshold", cfg.WorkSessionThreshold).
		Dur("auto_log_threshold", cfg.AutoLogThreshold).
		Msg("configuration reloaded")
}

// Start loads persisted state, refreshes the assigned issues and starts
// the coarse, fine and reconciliation loops. The loops stop when ctx is
// cancelled or Stop is called.
func (a *Agent) Start(ctx context.Context) error {
	if a.deps.Sampler == nil {
		return errors.New("agent has no sampler")
	}
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		a.log.Warn().Msg("agent is already running")
		return nil
	}
	a.running = true
	a.started = a.now()
	a.mu.Unlock()

	cfg := a.config()
	a.log.Info().Bool("test_mode", cfg.TestMode).Bool("dry_run", cfg.DryRun).
		Dur("monitoring_interval", cfg.MonitoringInterval).
		Dur("work_session_threshold", cfg.WorkSessionThreshold).
		Dur("auto_log_threshold", cfg.AutoLogThreshold).
		Msg("starting agent")

	if err := a.Load(); err != nil {
		a.log.Warn().Err(err).Msg("continuing with empty state")
	}
	if err := a.RefreshAssignedIssues(ctx); err != nil {
		a.log.Error().Err(err).Msg("fetching assigned issues failed")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(3)
	go a.loop(ctx, "coarse", func(c config.Config) time.Duration { return c.MonitoringInterval }, a.tick)
	go a.loop(ctx, "fine", func(c config.Config) time.Duration { return c.WindowSampleInterval }, a.sampleTick)
	go a.reconcileLoop(ctx)

	a.log.Info().Msg("agent started")
	return nil
}

// Stop halts the loops, ends the active session and saves the state.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.log.Warn().Msg("agent is not running")
		return
	}
	a.running = false
	a.mu.Unlock()

	a.log.Info().Msg("stopping agent")
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	// The loops are gone; submit the final remainder without their context.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.mu.Lock()
	if a.current != nil {
		a.endSession(ctx, a.now(), "shutdown")
	}
	a.save()
	a.mu.Unlock()
	a.log.Info().Msg("agent stopped")
}

// loop runs fn immediately and then every interval, re-reading the
// interval from the current configuration each time.
func (a *Agent) loop(ctx context.Context, name string, interval func(config.Config) time.Duration, fn func(context.Context)) {
	defer a.wg.Done()
	log := a.log.With().Str("loop", name).Logger()
	log.Debug().Msg("loop started")

	cycles := 0
	for {
		fn(ctx)
		cycles++
		if name == "coarse" && cycles%10 == 0 {
			log.Info().Int("cycle", cycles).Dur("uptime", a.now().Sub(a.started)).Msg("monitoring")
		}

		t := time.NewTimer(interval(a.config()))
		select {
		case <-ctx.Done():
			t.Stop()
			log.Debug().Msg("loop stopped")
			return
		case <-t.C:
		}
	}
}

func (a *Agent) reconcileLoop(ctx context.Context) {
	defer a.wg.Done()
	if a.deps.Reconciler == nil {
		return
	}
	// First pass shortly after start, then on the configured interval.
	delay := 5 * time.Second
	for {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		cfg := a.config()
		a.TriggerReconciliation(ctx, cfg.ReconcileDaysBack)
		delay = cfg.ReconcileInterval
		if delay <= 0 {
			delay = 6 * time.Hour
		}
	}
}

// Load replaces the in-memory state with the persisted document. A
// missing document leaves the state empty.
func (a *Agent) Load() error {
	st, err := a.deps.Store.Load()
	if errors.Is(err, session.ErrNotFound) {
		a.log.Info().Str("path", a.deps.Store.Path()).Msg("no saved state, starting fresh")
		return nil
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = st.Sessions
	a.logged = make(map[string]bool, len(st.LoggedSessions))
	a.order = a.order[:0]
	for _, id := range st.LoggedSessions {
		a.markLogged(id)
	}
	a.keywords = classify.NewKeywordMap(st.IssueKeywordMap)
	a.log.Info().Int("sessions", len(a.sessions)).Int("logged", len(a.order)).
		Int("keywords", a.keywords.Len()).Msg("state loaded")
	return nil
}

// save writes the state document. Failures are logged and the in-memory
// state is kept. Callers hold mu.
func (a *Agent) save() {
	cfg := a.config()
	st := &session.State{
		Sessions:        a.sessions,
		LoggedSessions:  append([]string(nil), a.order...),
		IssueKeywordMap: a.keywords.Entries(),
		LastSaved:       a.now(),
		IsTestMode:      cfg.TestMode,
		IsDryRun:        cfg.DryRun,
	}
	if st.Sessions == nil {
		st.Sessions = []*session.Session{}
	}
	if err := a.deps.Store.Save(st); err != nil {
		a.log.Error().Err(err).Msg("saving state failed")
		return
	}
	a.log.Debug().Int("sessions", len(st.Sessions)).Int("logged", len(st.LoggedSessions)).Msg("state saved")
}

func (a *Agent) markLogged(id string) {
	if a.logged[id] {
		return
	}
	a.logged[id] = true
	a.order = append(a.order, id)
}

// RefreshAssignedIssues reloads the assigned issues and indexes their
// summaries into the keyword map. Concurrent callers share one request.
func (a *Agent) RefreshAssignedIssues(ctx context.Context) error {
	if a.deps.Issues == nil {
		return nil
	}
	_, err, _ := a.refresh.Do("assigned", func() (any, error) {
		issues, err := a.deps.Issues.AssignedIssues(ctx)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		a.assigned = issues
		keys := make([]string, 0, len(issues))
		added := 0
		for _, is := range issues {
			keys = append(keys, is.Key)
			added += a.keywords.Index(is.Key, is.Fields.Summary)
		}
		a.known = classify.NewKnownIssues(keys...)
		a.log.Info().Int("issues", len(issues)).Int("keywords", added).Msg("assigned issues refreshed")
		a.save()
		return nil, nil
	})
	return err
}

// Classifier returns the classifier sessions are labelled with.
func (a *Agent) Classifier() worklog.Classifier { return a.deps.Logger }

func (a *Agent) resolver() *classify.Resolver {
	return &classify.Resolver{Known: a.known, Keywords: a.keywords}
}
