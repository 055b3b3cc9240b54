package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/config"
	"github.com/fakeyudi/timeslice/internal/jira"
	"github.com/fakeyudi/timeslice/internal/remote"
	"github.com/fakeyudi/timeslice/internal/session"
	"github.com/fakeyudi/timeslice/internal/tempo"
	"github.com/fakeyudi/timeslice/internal/worklog"
)

var t0 = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeSampler struct {
	snap      collector.Snapshot
	sample    collector.Sample
	idle      float64
	snapshots int
}

func (f *fakeSampler) Snapshot(ctx context.Context) collector.Snapshot {
	f.snapshots++
	return f.snap
}

func (f *fakeSampler) Sample(ctx context.Context) collector.Sample { return f.sample }

func (f *fakeSampler) IdleSeconds(ctx context.Context) (float64, error) { return f.idle, nil }

type fakeSubmitter struct {
	payloads []tempo.Payload
	accepted []tempo.Payload
	err      error
	failCall func(n int) error // n counts submissions from 1
	onSubmit func()
}

func (f *fakeSubmitter) SubmitWorklog(ctx context.Context, p tempo.Payload) (string, error) {
	if f.onSubmit != nil {
		f.onSubmit()
	}
	f.payloads = append(f.payloads, p)
	err := f.err
	if err == nil && f.failCall != nil {
		err = f.failCall(len(f.payloads))
	}
	if err != nil {
		return "", err
	}
	f.accepted = append(f.accepted, p)
	return fmt.Sprintf("%d", 500+len(f.payloads)), nil
}

// acceptedLister serves what the submitter accepted as remote worklogs.
type acceptedLister struct {
	sub    *fakeSubmitter
	onList func()
}

func (l *acceptedLister) ListWorklogs(ctx context.Context, from, to time.Time) ([]tempo.Worklog, error) {
	if l.onList != nil {
		l.onList()
	}
	keys := map[int64]string{10001: "ABC-1", 10002: "ABC-2", 20001: "CON-1"}
	var out []tempo.Worklog
	for _, p := range l.sub.accepted {
		w := tempo.Worklog{StartDate: p.StartDate, TimeSpentSeconds: p.TimeSpentSeconds}
		w.Issue.ID = p.IssueID
		w.Issue.Key = keys[p.IssueID]
		out = append(out, w)
	}
	return out, nil
}

type fakeIssues map[string]string

func (f fakeIssues) IssueID(ctx context.Context, key string) (string, error) {
	id, ok := f[key]
	if !ok {
		return "", errors.New("issue " + key + " not found")
	}
	return id, nil
}

type fakeAssigned struct {
	issues []jira.Issue
	calls  int
}

func (f *fakeAssigned) AssignedIssues(ctx context.Context) ([]jira.Issue, error) {
	f.calls++
	return f.issues, nil
}

type harness struct {
	agent   *Agent
	clock   *fakeClock
	sampler *fakeSampler
	sub     *fakeSubmitter
	store   session.Store
}

func newHarness(dir string, mutate func(*config.Config)) *harness {
	cfg := config.TestDefaults()
	cfg.DefaultMeetingIssue = "CON-1"
	cfg.AutoLogThreshold = 24 * time.Hour
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		clock:   &fakeClock{t: t0},
		sampler: &fakeSampler{snap: workSnap("ABC-1 handler.go - api")},
		sub:     &fakeSubmitter{},
		store:   session.NewStoreAt(filepath.Join(dir, "state.json")),
	}
	cls := classify.NewClassifier(classify.ClassifierOptions{Now: h.clock.Now})
	logger := worklog.NewLogger(h.sub, fakeIssues{"ABC-1": "10001", "ABC-2": "10002", "CON-1": "20001"}, cls,
		worklog.Options{DefaultMeetingIssue: cfg.DefaultMeetingIssue, AccountID: "acc-1", Now: h.clock.Now},
		zerolog.Nop())
	h.agent = New(cfg, Deps{
		Sampler: h.sampler,
		Logger:  logger,
		Store:   h.store,
		Clock:   h.clock,
	}, zerolog.Nop())
	h.agent.known = classify.NewKnownIssues("ABC-1", "ABC-2")
	return h
}

func (h *harness) withReconciler() *acceptedLister {
	l := &acceptedLister{sub: h.sub}
	h.agent.deps.Reconciler = worklog.NewReconciler(l, h.agent.deps.Logger, worklog.ReconcilerOptions{
		Threshold: h.agent.config().WorkSessionThreshold,
		Now:       h.clock.Now,
	}, zerolog.Nop())
	return l
}

func workSnap(title string) collector.Snapshot {
	return collector.Snapshot{
		ActiveApp:    "Code",
		WindowTitle:  title,
		Directory:    "/home/dev/Projects/api",
		WorkingHours: true,
	}
}

// run ticks every step for d, starting with a tick at the current time.
func (h *harness) run(d, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += step {
		h.agent.tick(context.Background())
		h.clock.Advance(step)
	}
}

// endByIdle reports OS idle and ticks once.
func (h *harness) endByIdle() {
	h.sampler.idle = 120
	h.agent.tick(context.Background())
	h.sampler.idle = 0
}

func seconds(ps []tempo.Payload) []int {
	var out []int
	for _, p := range ps {
		out = append(out, p.TimeSpentSeconds)
	}
	return out
}

func TestShortSessionsAreDiscarded(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(dir, nil)

	h.agent.tick(context.Background())
	require.NotNil(t, h.agent.current)
	h.clock.Advance(20 * time.Second)
	h.endByIdle()
	assert.Nil(t, h.agent.current)
	assert.Empty(t, h.agent.sessions)

	h.agent.tick(context.Background())
	h.clock.Advance(45 * time.Second)
	h.endByIdle()
	require.Len(t, h.agent.sessions, 1)
	assert.Equal(t, 45*time.Second, h.agent.sessions[0].Duration)
	assert.Equal(t, "ABC-1", h.agent.sessions[0].DetectedIssue)
	assert.Empty(t, h.sub.payloads)

	reloaded := newHarness(dir, nil)
	require.NoError(t, reloaded.agent.Load())
	require.Len(t, reloaded.agent.sessions, 1)
	assert.Equal(t, h.agent.sessions[0].ID, reloaded.agent.sessions[0].ID)
}

func TestOSIdleEndsSessionBeforeSnapshot(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.agent.tick(context.Background())
	require.Equal(t, 1, h.sampler.snapshots)

	h.clock.Advance(time.Minute)
	h.endByIdle()
	assert.Nil(t, h.agent.current)
	assert.Equal(t, 1, h.sampler.snapshots)

	// With no session, an idle machine is still sampled.
	h.sampler.idle = 120
	h.sampler.snap.WorkingHours = false
	h.agent.tick(context.Background())
	assert.Equal(t, 2, h.sampler.snapshots)
	assert.Nil(t, h.agent.current)
}

func TestInactivityEndsSession(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.run(time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	last := h.agent.current.LastActivity

	h.sampler.snap.WorkingHours = false
	h.agent.tick(context.Background()) // gap 10s
	require.NotNil(t, h.agent.current)

	h.clock.Advance(25 * time.Second)
	h.agent.tick(context.Background()) // gap 35s > 30s
	assert.Nil(t, h.agent.current)
	require.Len(t, h.agent.sessions, 1)
	assert.True(t, h.agent.sessions[0].Finish().After(last))
}

func TestSlicesCoverLongSession(t *testing.T) {
	h := newHarness(t.TempDir(), nil)

	h.run(12*time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	parentID := h.agent.current.ID
	assert.Equal(t, t0.Add(10*time.Minute), h.agent.current.LoggedUntil)
	assert.Equal(t, []int{300, 300}, seconds(h.sub.payloads))

	h.endByIdle()
	assert.Equal(t, []int{300, 300, 120}, seconds(h.sub.payloads))
	assert.Len(t, h.agent.order, 4)

	require.Len(t, h.agent.sessions, 1)
	parent := h.agent.sessions[0]
	assert.Equal(t, parentID, parent.ID)
	assert.Equal(t, session.StatusLogged, parent.LogStatus)
	assert.Equal(t, worklog.ReasonSliced, parent.LogReason)
	assert.True(t, h.agent.logged[parentID])
	assert.True(t, h.agent.logged[fmt.Sprintf("%s_slice_%d", parentID, t0.Add(5*time.Minute).UnixMilli())])

	// Already covered by slices: nothing else is submitted.
	h.agent.autoLogCompleted(context.Background())
	assert.Len(t, h.sub.payloads, 3)
	assert.Empty(t, h.agent.PendingSessions())
}

func TestSlicingWaitsForIssue(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.sampler.snap = workSnap("notes.txt - scratch")

	h.run(6*time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	assert.Empty(t, h.sub.payloads)
	assert.Equal(t, t0, h.agent.current.LoggedUntil)
}

func TestAutoLogThenSlicesDoNotOverlap(t *testing.T) {
	h := newHarness(t.TempDir(), func(c *config.Config) { c.AutoLogThreshold = 2 * time.Minute })

	h.run(8*time.Minute, 10*time.Second)
	h.endByIdle()

	assert.Equal(t, []int{120, 300, 60}, seconds(h.sub.payloads))
	require.Len(t, h.agent.sessions, 1)
	s := h.agent.sessions[0]
	assert.Equal(t, session.StatusLogged, s.LogStatus)
	assert.Equal(t, worklog.ReasonDevThreshold, s.LogReason)
	assert.Equal(t, "501", s.LoggedWorklogID)
}

func TestAutoLogCurrentSkipsUnattributedWork(t *testing.T) {
	h := newHarness(t.TempDir(), func(c *config.Config) {
		c.AutoLogThreshold = time.Minute
		c.DisableSlicing = true
	})
	h.sampler.snap = workSnap("notes.txt - scratch")

	h.run(90*time.Second, 10*time.Second)
	require.NotNil(t, h.agent.current)
	assert.Equal(t, session.StatusSkipped, h.agent.current.LogStatus)
	assert.Equal(t, worklog.ReasonNoIssue, h.agent.current.LogReason)
	assert.Empty(t, h.sub.payloads)
}

func TestCompletedSessionsAutoLogOnce(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.run(2*time.Minute, 10*time.Second)
	h.endByIdle()
	require.Len(t, h.agent.sessions, 1)
	assert.Empty(t, h.sub.payloads)

	h.sampler.snap.WorkingHours = false
	h.agent.tick(context.Background())
	require.Len(t, h.sub.payloads, 1)
	assert.Equal(t, 120, h.sub.payloads[0].TimeSpentSeconds)
	s := h.agent.sessions[0]
	assert.Equal(t, session.StatusLogged, s.LogStatus)
	assert.Equal(t, worklog.ReasonCompletedAuto, s.LogReason)

	h.agent.tick(context.Background())
	assert.Len(t, h.sub.payloads, 1)
}

func TestFailedCompletedSessionIsNotResubmitted(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.sub.err = errors.New("connection refused")
	h.run(2*time.Minute, 10*time.Second)
	h.endByIdle()

	h.sampler.snap.WorkingHours = false
	h.agent.tick(context.Background())
	h.agent.tick(context.Background())
	assert.Len(t, h.sub.payloads, 1)
	assert.Equal(t, session.StatusError, h.agent.sessions[0].LogStatus)
}

func TestMaxDurationStartsNewSession(t *testing.T) {
	h := newHarness(t.TempDir(), func(c *config.Config) {
		c.MaxSessionDuration = 2 * time.Minute
		c.DisableSlicing = true
	})
	h.run(2*time.Minute, 10*time.Second)
	first := h.agent.current.ID

	h.agent.tick(context.Background())
	require.NotNil(t, h.agent.current)
	assert.NotEqual(t, first, h.agent.current.ID)
	require.NotEmpty(t, h.agent.sessions)
	assert.Equal(t, first, h.agent.sessions[0].ID)
}

func TestSamplerRefinesIssue(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.sampler.snap = workSnap("main.go - api")
	h.agent.tick(context.Background())
	s := h.agent.current
	require.NotNil(t, s)
	assert.Empty(t, s.DetectedIssue)
	assert.Equal(t, 40, s.Confidence)

	smp := collector.Sample{
		Timestamp: t0,
		App:       "Google Chrome",
		Title:     "ABC-2 Fix login redirect - Jira",
		URL:       "https://acme.atlassian.net/jira/browse/ABC-2?focused=1",
	}
	h.agent.observeSample(smp)
	h.agent.observeSample(smp)
	require.Equal(t, 1, s.MicroEvents.Len())
	ev, _ := s.MicroEvents.Newest()
	assert.Equal(t, "ABC-2", ev.Key)
	assert.Equal(t, session.SourceTitle, ev.Source)
	require.NotNil(t, ev.Browser)
	assert.Equal(t, session.BrowserSignal{Host: "acme.atlassian.net", IsJira: true, HasKey: true}, *ev.Browser)
	assert.Equal(t, "ABC-2", s.DetectedIssue)
	assert.Equal(t, 70, s.Confidence)

	h.agent.observeSample(collector.Sample{App: "Code", Title: "XYZ-9 unrelated"})
	assert.Equal(t, "ABC-2", s.DetectedIssue)
	assert.Equal(t, 2, s.MicroEvents.Len())
}

func TestMicroEventKeyFromURL(t *testing.T) {
	ev := microEvent(collector.Sample{
		App:   "Safari",
		Title: "Board",
		URL:   "https://tracker.example.com/browse/OPS-12",
	})
	assert.Equal(t, "OPS-12", ev.Key)
	assert.Equal(t, session.SourceURL, ev.Source)
	assert.False(t, ev.Browser.IsJira)

	long := microEvent(collector.Sample{App: "Code", Title: string(make([]rune, 300))})
	assert.Len(t, []rune(long.Title), 180)
	assert.Nil(t, long.Browser)
}

func TestApproveRejectAndUpdate(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	a := h.agent
	mk := func(id, issue string) *session.Session {
		s := session.New(t0.Add(-2 * time.Hour))
		s.ID = id
		s.DetectedIssue = issue
		s.Confidence = 40
		s.Applications.Add("Code")
		s.End(t0.Add(-time.Hour))
		return s
	}
	a.sessions = []*session.Session{mk("s1", "ABC-1"), mk("s2", "ABC-2"), mk("s3", "")}

	pending := a.PendingSessions()
	require.Len(t, pending, 2)

	ok, err := a.ApproveSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, h.sub.payloads, 1)
	assert.EqualValues(t, 10001, h.sub.payloads[0].IssueID)

	ok, err = a.ApproveSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = a.ApproveSession(context.Background(), "missing")
	assert.False(t, ok)

	assert.True(t, a.RejectSession("s2"))
	assert.Empty(t, a.PendingSessions())

	assert.False(t, a.UpdateSessionIssue("missing", "ABC-1"))
	require.True(t, a.UpdateSessionIssue("s3", "ABC-2"))
	pending = a.PendingSessions()
	require.Len(t, pending, 1)
	assert.Equal(t, "ABC-2", pending[0].DetectedIssue)
	assert.Equal(t, 100, pending[0].Confidence)

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, st.LoggedSessions)
}

func TestSessionHistoryWindow(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	old := session.New(t0.Add(-72 * time.Hour))
	old.LogStatus = ""
	recent := session.New(t0.Add(-2 * time.Hour))
	recent.LogStatus = ""
	h.agent.sessions = []*session.Session{old, recent}

	got := h.agent.SessionHistory(1)
	require.Len(t, got, 1)
	assert.Equal(t, recent.ID, got[0].ID)
	assert.Equal(t, session.StatusUnlogged, got[0].LogStatus)

	got[0].DetectedIssue = "ABC-1"
	assert.Empty(t, recent.DetectedIssue)
}

func TestRefreshAssignedIssues(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	a1 := jira.Issue{Key: "ABC-7"}
	a1.Fields.Summary = "Payment reconciliation export"
	a2 := jira.Issue{Key: "ABC-8"}
	a2.Fields.Summary = "Login redirect loop"
	src := &fakeAssigned{issues: []jira.Issue{a1, a2}}
	h.agent.deps.Issues = src

	require.NoError(t, h.agent.RefreshAssignedIssues(context.Background()))
	assert.Equal(t, 1, src.calls)
	assert.True(t, h.agent.known.Has("ABC-7"))
	assert.False(t, h.agent.known.Has("ABC-1"))
	assert.Equal(t, []string{"ABC-7"}, h.agent.keywords.Lookup("payment"))
	assert.Equal(t, 2, h.agent.Status().AssignedIssues)

	st, err := h.store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, st.IssueKeywordMap)
}

func TestStatusAndReload(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.run(time.Minute, 10*time.Second)

	st := h.agent.Status()
	assert.False(t, st.Running)
	assert.True(t, st.TestMode)
	require.NotNil(t, st.Current)
	assert.Equal(t, "ABC-1", st.Current.Issue)
	assert.Equal(t, 50*time.Second, st.Current.Duration)
	assert.Equal(t, 10*time.Second, st.Config.MonitoringInterval)
	assert.Nil(t, st.LastReconcile)

	cfg := config.TestDefaults()
	cfg.MonitoringInterval = 20 * time.Second
	h.agent.ReloadConfig(cfg)
	assert.Equal(t, 20*time.Second, h.agent.Status().Config.MonitoringInterval)
}

func TestStopEndsSessionAndSaves(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.agent.Start(ctx))
	assert.True(t, h.agent.Status().Running)

	// Let the coarse loop open a session, then move past the threshold.
	require.Eventually(t, func() bool { return h.agent.Current() != nil }, 2*time.Second, 10*time.Millisecond)
	h.clock.Advance(time.Minute)
	h.agent.Stop()

	assert.False(t, h.agent.Status().Running)
	assert.Nil(t, h.agent.Current())
	st, err := h.store.Load()
	require.NoError(t, err)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, time.Minute, st.Sessions[0].Duration)
}

func total(ps []tempo.Payload) int {
	n := 0
	for _, p := range ps {
		n += p.TimeSpentSeconds
	}
	return n
}

func unavailable() error {
	return &remote.TransportError{Status: http.StatusServiceUnavailable, Err: errors.New("service unavailable")}
}

func TestFailedSliceIsRetried(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.sub.failCall = func(n int) error {
		if n == 2 {
			return unavailable()
		}
		return nil
	}

	h.run(12*time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	assert.Equal(t, t0.Add(10*time.Minute), h.agent.current.LoggedUntil)

	h.endByIdle()
	h.agent.autoLogCompleted(context.Background())

	assert.Equal(t, []int{300, 300, 300, 120}, seconds(h.sub.payloads))
	assert.Equal(t, h.sub.payloads[1].StartTime, h.sub.payloads[2].StartTime)
	assert.Equal(t, []int{300, 300, 120}, seconds(h.sub.accepted))
	assert.Equal(t, 720, total(h.sub.accepted))
	require.Len(t, h.agent.sessions, 1)
	assert.Equal(t, worklog.ReasonSliced, h.agent.sessions[0].LogReason)
}

func TestFailedRemainderIsReconciled(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.sub.failCall = func(n int) error {
		if n >= 2 {
			return unavailable()
		}
		return nil
	}

	h.run(12*time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	assert.Equal(t, t0.Add(5*time.Minute), h.agent.current.LoggedUntil)
	h.endByIdle()

	require.Len(t, h.agent.sessions, 2)
	rest, parent := h.agent.sessions[0], h.agent.sessions[1]
	assert.Equal(t, parent.ID, rest.ParentID)
	assert.Equal(t, t0.Add(5*time.Minute), rest.StartTime)
	assert.Equal(t, 7*time.Minute, rest.Duration)
	assert.Equal(t, session.StatusError, rest.LogStatus)
	assert.False(t, h.agent.logged[rest.ID])
	assert.Equal(t, worklog.ReasonSliced, parent.LogReason)
	assert.True(t, h.agent.logged[parent.ID])

	pending := h.agent.PendingSessions()
	require.Len(t, pending, 1)
	assert.Equal(t, rest.ID, pending[0].ID)

	submitted := len(h.sub.payloads)
	h.agent.autoLogCompleted(context.Background())
	assert.Len(t, h.sub.payloads, submitted)

	h.sub.failCall = nil
	h.withReconciler()
	sum := h.agent.TriggerReconciliation(context.Background(), 2)
	assert.True(t, sum.OK)
	require.Len(t, sum.Missing, 1)
	assert.Equal(t, rest.ID, sum.Missing[0].ID)
	require.Len(t, sum.Relogged, 1)
	assert.Equal(t, rest.ID, sum.Relogged[0].ID)

	assert.Equal(t, []int{300, 420}, seconds(h.sub.accepted))
	assert.Equal(t, 720, total(h.sub.accepted))
	assert.Equal(t, session.StatusLogged, rest.LogStatus)
	assert.True(t, h.agent.logged[rest.ID])
	assert.Empty(t, h.agent.PendingSessions())

	sum = h.agent.TriggerReconciliation(context.Background(), 2)
	assert.Equal(t, 0, sum.MissingBeforeRelog)
	assert.Equal(t, 720, total(h.sub.accepted))
}

func TestRejectedSessionIsNotReconciled(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	h.run(2*time.Minute, 10*time.Second)
	h.endByIdle()
	require.Len(t, h.agent.sessions, 1)
	s := h.agent.sessions[0]

	require.True(t, h.agent.RejectSession(s.ID))
	assert.Equal(t, session.StatusSkipped, s.LogStatus)
	assert.Equal(t, worklog.ReasonRejected, s.LogReason)

	h.withReconciler()
	sum := h.agent.TriggerReconciliation(context.Background(), 2)
	assert.True(t, sum.OK)
	assert.Equal(t, 1, sum.CandidateSessions)
	assert.Empty(t, sum.Missing)
	assert.Empty(t, sum.Relogged)

	h.agent.autoLogCompleted(context.Background())
	assert.Empty(t, h.sub.payloads)

	st, err := h.store.Load()
	require.NoError(t, err)
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, session.StatusSkipped, st.Sessions[0].LogStatus)
}

func TestReconciliationRunsRemoteCallsUnlocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t.TempDir(), nil)
	h.run(2*time.Minute, 10*time.Second)
	h.endByIdle()
	require.Len(t, h.agent.sessions, 1)
	s := h.agent.sessions[0]

	h.sub.err = errors.New("connection refused")
	h.agent.autoLogCompleted(ctx)
	require.Equal(t, session.StatusError, s.LogStatus)
	h.sub.err = nil

	free := func() bool {
		if !h.agent.mu.TryLock() {
			return false
		}
		h.agent.mu.Unlock()
		return true
	}
	var listFree, submitFree, approvedDuring bool
	pendingDuring := -1
	l := h.withReconciler()
	l.onList = func() { listFree = free() }
	h.sub.onSubmit = func() {
		h.sub.onSubmit = nil
		submitFree = free()
		pendingDuring = len(h.agent.PendingSessions())
		approvedDuring, _ = h.agent.ApproveSession(ctx, s.ID)
	}

	sum := h.agent.TriggerReconciliation(ctx, 2)
	assert.True(t, listFree)
	assert.True(t, submitFree)
	assert.Equal(t, 0, pendingDuring)
	assert.False(t, approvedDuring)

	require.Len(t, sum.Relogged, 1)
	assert.Len(t, h.sub.payloads, 2)
	assert.Equal(t, session.StatusLogged, s.LogStatus)
	assert.Equal(t, "502", s.LoggedWorklogID)
	assert.True(t, h.agent.logged[s.ID])
	assert.Empty(t, h.agent.relogging)
}

func TestFailedAutoLogIsNotRepeatedEachTick(t *testing.T) {
	h := newHarness(t.TempDir(), func(c *config.Config) {
		c.AutoLogThreshold = time.Minute
		c.DisableSlicing = true
	})
	h.sub.err = unavailable()

	h.run(3*time.Minute, 10*time.Second)
	require.NotNil(t, h.agent.current)
	assert.Len(t, h.sub.payloads, 1)
	assert.Equal(t, session.StatusError, h.agent.current.LogStatus)

	h.endByIdle()
	h.agent.autoLogCompleted(context.Background())
	assert.Len(t, h.sub.payloads, 1)
}

func TestStatusCountsPendingLikeList(t *testing.T) {
	h := newHarness(t.TempDir(), nil)
	mk := func(id, issue string, d time.Duration) *session.Session {
		s := session.New(t0.Add(-3 * time.Hour))
		s.ID = id
		s.DetectedIssue = issue
		s.Applications.Add("Code")
		s.End(s.StartTime.Add(d))
		return s
	}
	meeting := mk("meet", "", time.Hour)
	meeting.ForceMeeting = true
	done := mk("done", "ABC-1", time.Hour)
	h.agent.sessions = []*session.Session{
		mk("work", "ABC-1", time.Hour),
		meeting,
		mk("short", "ABC-2", 10*time.Second),
		mk("anon", "", time.Hour),
		done,
	}
	h.agent.markLogged(done.ID)

	pending := h.agent.PendingSessions()
	require.Len(t, pending, 2)
	assert.Equal(t, "work", pending[0].ID)
	assert.Equal(t, "meet", pending[1].ID)
	assert.Equal(t, len(pending), h.agent.Status().PendingSessions)
}
