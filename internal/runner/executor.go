package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/metrics"
)

// ErrStopped is returned for tasks still queued when the executor closes.
var ErrStopped = errors.New("executor stopped")

// Options configures an Executor.
type Options struct {
	MaxConcurrent int
	MaxPerMinute  int
	Cooldown      time.Duration // how long an EAGAIN keeps InCooldown true
	RetryDelay    time.Duration // drain retry after the minute quota is hit; default 500ms
	Now           func() time.Time
	Metrics       *metrics.Registry
	Logger        zerolog.Logger
}

// Stats is a point-in-time view of the executor counters.
type Stats struct {
	Queued       int       `json:"queued"`
	InFlight     int       `json:"in_flight"`
	Started      int64     `json:"started"`
	Completed    int64     `json:"completed"`
	Throttled    int64     `json:"throttled"`
	AvgExecMs    float64   `json:"avg_exec_ms"`
	EAGAINEvents int64     `json:"eagain_events"`
	LastEAGAIN   time.Time `json:"last_eagain,omitempty"`
}

type result struct {
	out string
	err error
}

type task struct {
	ctx  context.Context
	name string
	args []string
	done chan result
}

// Executor admits external commands in FIFO order under a concurrency cap
// and a per-minute quota. It never retries a failed command.
type Executor struct {
	runner Runner
	opts   Options
	log    zerolog.Logger

	mu          sync.Mutex
	queue       []*task
	inFlight    int
	windowStart time.Time
	windowCount int
	retry       *time.Timer
	closed      bool
	hasAvg      bool
	stats       Stats
}

// NewExecutor wraps r with admission control.
func NewExecutor(r Runner, opts Options) *Executor {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxPerMinute < 1 {
		opts.MaxPerMinute = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Executor{
		runner: r,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "executor").Logger(),
	}
}

// Submit queues a command and waits for its result or for ctx to end.
func (e *Executor) Submit(ctx context.Context, name string, args ...string) (string, error) {
	t := &task{ctx: ctx, name: name, args: args, done: make(chan result, 1)}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrStopped
	}
	e.queue = append(e.queue, t)
	e.mu.Unlock()

	e.drain()

	select {
	case r := <-t.done:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Run implements Runner so an Executor can stand in wherever a plain runner
// is accepted.
func (e *Executor) Run(ctx context.Context, name string, args ...string) (string, error) {
	return e.Submit(ctx, name, args...)
}

// drain admits queued tasks until the concurrency cap or the minute quota
// is reached. A quota hit re-arms a single delayed drain.
func (e *Executor) drain() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for len(e.queue) > 0 && e.inFlight < e.opts.MaxConcurrent && !e.closed {
		now := e.opts.Now()
		if now.Sub(e.windowStart) > time.Minute {
			e.windowStart = now
			e.windowCount = 0
		}
		if e.windowCount >= e.opts.MaxPerMinute {
			e.stats.Throttled++
			e.opts.Metrics.ExecThrottled.Inc()
			if e.retry == nil {
				e.retry = time.AfterFunc(e.opts.RetryDelay, func() {
					e.mu.Lock()
					e.retry = nil
					e.mu.Unlock()
					e.drain()
				})
			}
			return
		}

		t := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		if err := t.ctx.Err(); err != nil {
			t.done <- result{err: err}
			continue
		}

		e.inFlight++
		e.windowCount++
		e.stats.Started++
		e.opts.Metrics.ExecStarted.Inc()
		e.opts.Metrics.ExecInFlight.Set(float64(e.inFlight))
		go e.execute(t)
	}
}

func (e *Executor) execute(t *task) {
	start := e.opts.Now()
	out, err := e.runner.Run(t.ctx, t.name, t.args...)
	elapsed := e.opts.Now().Sub(start)

	e.mu.Lock()
	e.inFlight--
	e.stats.Completed++
	ms := float64(elapsed) / float64(time.Millisecond)
	if !e.hasAvg {
		e.stats.AvgExecMs = ms
		e.hasAvg = true
	} else {
		e.stats.AvgExecMs = e.stats.AvgExecMs*0.9 + ms*0.1
	}
	if IsEAGAIN(err) {
		e.stats.EAGAINEvents++
		e.stats.LastEAGAIN = e.opts.Now()
		e.opts.Metrics.ExecEAGAIN.Inc()
	}
	e.opts.Metrics.ExecCompleted.Inc()
	e.opts.Metrics.ExecInFlight.Set(float64(e.inFlight))
	e.opts.Metrics.ExecAvgMillis.Set(e.stats.AvgExecMs)
	e.mu.Unlock()

	if err != nil {
		e.log.Debug().Err(err).Str("cmd", t.name).Msg("external command failed")
	}
	t.done <- result{out: out, err: err}
	e.drain()
}

// InCooldown reports whether an EAGAIN was seen within the cooldown window.
// Callers use it to reuse cached values instead of spawning again.
func (e *Executor) InCooldown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stats.LastEAGAIN.IsZero() {
		return false
	}
	return e.opts.Now().Sub(e.stats.LastEAGAIN) < e.opts.Cooldown
}

// Stats returns a copy of the counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Queued = len(e.queue)
	s.InFlight = e.inFlight
	return s
}

// Close rejects queued tasks with ErrStopped. Running commands finish.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	for _, t := range e.queue {
		t.done <- result{err: ErrStopped}
	}
	e.queue = nil
}
