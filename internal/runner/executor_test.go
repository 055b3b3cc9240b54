package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// gatedRunner blocks every call until a value arrives on gate and records
// the order in which commands started.
type gatedRunner struct {
	gate    chan struct{}
	mu      sync.Mutex
	order   []string
	current int32
	peak    int32
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{gate: make(chan struct{}, 64)}
}

func (g *gatedRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	n := atomic.AddInt32(&g.current, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	g.mu.Lock()
	g.order = append(g.order, name)
	g.mu.Unlock()

	<-g.gate
	atomic.AddInt32(&g.current, -1)
	return name, nil
}

func (g *gatedRunner) Order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

func TestExecutorRespectsConcurrencyCap(t *testing.T) {
	g := newGatedRunner()
	e := NewExecutor(g, Options{MaxConcurrent: 2, MaxPerMinute: 100, Logger: zerolog.Nop()})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Submit(context.Background(), "osascript")
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.InFlight == 2 && s.Queued == 4
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 6; i++ {
		g.gate <- struct{}{}
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&g.peak), int32(2))
	s := e.Stats()
	assert.EqualValues(t, 6, s.Started)
	assert.EqualValues(t, 6, s.Completed)
	assert.Equal(t, 0, s.InFlight)
}

func TestExecutorAdmitsInFIFOOrder(t *testing.T) {
	g := newGatedRunner()
	e := NewExecutor(g, Options{MaxConcurrent: 1, MaxPerMinute: 100, Logger: zerolog.Nop()})

	var wg sync.WaitGroup
	submit := func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Submit(context.Background(), name)
		}()
	}

	submit("a")
	require.Eventually(t, func() bool { return e.Stats().InFlight == 1 }, time.Second, time.Millisecond)
	for i, name := range []string{"b", "c", "d"} {
		submit(name)
		want := i + 1
		require.Eventually(t, func() bool { return e.Stats().Queued == want }, time.Second, time.Millisecond)
	}

	for i := 0; i < 4; i++ {
		g.gate <- struct{}{}
	}
	wg.Wait()
	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Order())
}

func TestExecutorDefersWhenMinuteQuotaHit(t *testing.T) {
	clock := newFakeClock()
	fake := NewFakeRunner().On("ps -eo comm", "zsh")
	e := NewExecutor(fake, Options{
		MaxConcurrent: 2,
		MaxPerMinute:  2,
		RetryDelay:    5 * time.Millisecond,
		Now:           clock.Now,
		Logger:        zerolog.Nop(),
	})

	for i := 0; i < 2; i++ {
		out, err := e.Submit(context.Background(), "ps", "-eo", "comm")
		require.NoError(t, err)
		assert.Equal(t, "zsh", out)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), "ps", "-eo", "comm")
		done <- err
	}()

	require.Eventually(t, func() bool { return e.Stats().Throttled >= 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 2, e.Stats().Started)

	clock.Advance(61 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("throttled task never ran after the window rolled over")
	}
	assert.EqualValues(t, 3, e.Stats().Started)
}

type timedRunner struct {
	clock *fakeClock
	durs  []time.Duration
	i     int
}

func (r *timedRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	r.clock.Advance(r.durs[r.i])
	r.i++
	return "", nil
}

func TestExecutorLatencyMovingAverage(t *testing.T) {
	clock := newFakeClock()
	r := &timedRunner{clock: clock, durs: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}}
	e := NewExecutor(r, Options{MaxConcurrent: 1, MaxPerMinute: 100, Now: clock.Now, Logger: zerolog.Nop()})

	_, err := e.Submit(context.Background(), "first")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Stats().Completed == 1 }, time.Second, time.Millisecond)
	assert.InDelta(t, 100.0, e.Stats().AvgExecMs, 0.001)

	_, err = e.Submit(context.Background(), "second")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.Stats().Completed == 2 }, time.Second, time.Millisecond)
	assert.InDelta(t, 110.0, e.Stats().AvgExecMs, 0.001)
}

func TestExecutorRecordsEAGAINWithoutRetrying(t *testing.T) {
	clock := newFakeClock()
	fake := NewFakeRunner().Fail("osascript -e x", errors.New("fork/exec /usr/bin/osascript: resource temporarily unavailable"))
	e := NewExecutor(fake, Options{
		MaxConcurrent: 2, MaxPerMinute: 100, Cooldown: 30 * time.Second,
		Now: clock.Now, Logger: zerolog.Nop(),
	})

	assert.False(t, e.InCooldown())
	_, err := e.Submit(context.Background(), "osascript", "-e", "x")
	require.Error(t, err)
	assert.True(t, IsEAGAIN(err))

	require.Eventually(t, func() bool { return e.Stats().EAGAINEvents == 1 }, time.Second, time.Millisecond)
	assert.True(t, e.InCooldown())
	assert.Equal(t, 1, fake.CallCount("osascript -e x"))

	clock.Advance(31 * time.Second)
	assert.False(t, e.InCooldown())
}

func TestExecutorCloseRejectsQueued(t *testing.T) {
	g := newGatedRunner()
	e := NewExecutor(g, Options{MaxConcurrent: 1, MaxPerMinute: 100, Logger: zerolog.Nop()})

	first := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), "a")
		first <- err
	}()
	require.Eventually(t, func() bool { return e.Stats().InFlight == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), "b")
		second <- err
	}()
	require.Eventually(t, func() bool { return e.Stats().Queued == 1 }, time.Second, time.Millisecond)

	e.Close()
	assert.ErrorIs(t, <-second, ErrStopped)

	g.gate <- struct{}{}
	assert.NoError(t, <-first)

	_, err := e.Submit(context.Background(), "c")
	assert.ErrorIs(t, err, ErrStopped)
}

// Property: in-flight commands never exceed the concurrency cap and every
// submitted command completes exactly once.
func TestExecutorConcurrencyProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 4).Draw(rt, "limit")
		n := rapid.IntRange(1, 20).Draw(rt, "n")

		var current, peak int32
		r := runnerFunc(func(ctx context.Context, name string, args ...string) (string, error) {
			c := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
					break
				}
			}
			time.Sleep(200 * time.Microsecond)
			atomic.AddInt32(&current, -1)
			return "", nil
		})
		e := NewExecutor(r, Options{MaxConcurrent: limit, MaxPerMinute: 1000, Logger: zerolog.Nop()})

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = e.Submit(context.Background(), "cmd")
			}()
		}
		wg.Wait()

		if p := atomic.LoadInt32(&peak); int(p) > limit {
			rt.Fatalf("peak concurrency %d exceeds limit %d", p, limit)
		}
		if got := e.Stats().Completed; got != int64(n) {
			rt.Fatalf("completed %d, want %d", got, n)
		}
	})
}

type runnerFunc func(ctx context.Context, name string, args ...string) (string, error)

func (f runnerFunc) Run(ctx context.Context, name string, args ...string) (string, error) {
	return f(ctx, name, args...)
}
