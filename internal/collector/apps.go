package collector

import (
	"context"
	"errors"
	"path"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fakeyudi/timeslice/internal/metrics"
	"github.com/fakeyudi/timeslice/internal/runner"
)

// ErrEnumerationExhausted means every strategy for listing visible
// applications failed.
var ErrEnumerationExhausted = errors.New("all application enumeration strategies failed")

// strategy is one way of listing visible applications on a platform.
type strategy struct {
	name  string
	cmd   string
	args  []string
	parse func(out string) []string
}

var (
	commaNewline = regexp.MustCompile(`,|\n`)
	lsappName    = regexp.MustCompile(`name="([^"]+)"`)
	hasLetter    = regexp.MustCompile(`[A-Za-z]`)
)

const maxProcessNames = 80

func strategiesFor(goos string) []strategy {
	switch goos {
	case "darwin":
		return []strategy{
			{
				name: "applescript1",
				cmd:  "osascript",
				args: []string{"-e", `tell application "System Events" to name of every application process whose visible is true`},
				parse: func(out string) []string {
					return cleanList(strings.Split(out, ", "), 0)
				},
			},
			{
				name: "applescript2",
				cmd:  "osascript",
				args: []string{"-e", `tell application "System Events" to get the name of every application process whose visible is true`},
				parse: func(out string) []string {
					return cleanList(commaNewline.Split(out, -1), 0)
				},
			},
			{
				name:  "lsappinfo",
				cmd:   "lsappinfo",
				args:  []string{"list"},
				parse: parseLsappinfo,
			},
			{
				name: "ps",
				cmd:  "ps",
				args: []string{"-Ao", "comm"},
				parse: func(out string) []string {
					var names []string
					for _, l := range skipHeader(out) {
						n := path.Base(strings.TrimSpace(l))
						if n != "." && hasLetter.MatchString(n) {
							names = append(names, n)
						}
					}
					return cleanList(names, maxProcessNames)
				},
			},
		}
	case "windows":
		return []strategy{{
			name: "ps-win",
			cmd:  "powershell",
			args: []string{"-NoProfile", "-Command", "Get-Process | Where-Object { $_.MainWindowTitle } | Select-Object -ExpandProperty ProcessName"},
			parse: func(out string) []string {
				return cleanList(strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n"), 0)
			},
		}}
	default:
		return []strategy{{
			name: "ps-linux",
			cmd:  "ps",
			args: []string{"-eo", "comm"},
			parse: func(out string) []string {
				return cleanList(skipHeader(out), maxProcessNames)
			},
		}}
	}
}

func parseLsappinfo(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		m := lsappName.FindStringSubmatch(line)
		if m == nil || strings.HasPrefix(m[1], "com.apple.") {
			continue
		}
		names = append(names, m[1])
	}
	return cleanList(names, 0)
}

func skipHeader(out string) []string {
	lines := strings.Split(out, "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

// cleanList trims, drops empties, truncates to limit (0 = no limit) and
// dedupes preserving first occurrence.
func cleanList(items []string, limit int) []string {
	var trimmed []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if limit > 0 && len(trimmed) > limit {
		trimmed = trimmed[:limit]
	}
	seen := make(map[string]bool, len(trimmed))
	out := make([]string, 0, len(trimmed))
	for _, s := range trimmed {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// EnumOptions configures an AppEnumerator.
type EnumOptions struct {
	Refresh     time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	GOOS        string // defaults to runtime.GOOS
	Now         func() time.Time
	Metrics     *metrics.Registry
	Logger      zerolog.Logger
}

// EnumStats describes the enumeration cache and backoff state.
type EnumStats struct {
	Apps         int            `json:"apps"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Failures     int            `json:"failures"`
	Delay        time.Duration  `json:"delay"`
	MaxDelay     time.Duration  `json:"max_delay"`
	LastStrategy string         `json:"last_strategy"`
	Fallbacks    map[string]int `json:"fallbacks"`
}

// AppEnumerator caches the list of visible applications and backs off
// exponentially when every strategy fails.
type AppEnumerator struct {
	exec       runner.Runner
	strategies []strategy
	opts       EnumOptions
	log        zerolog.Logger

	mu          sync.Mutex
	apps        []string
	updatedAt   time.Time
	lastAttempt time.Time
	failures    int
	delay       time.Duration
	last        string
	fallbacks   map[string]int
}

// NewAppEnumerator builds an enumerator for opts.GOOS.
func NewAppEnumerator(exec runner.Runner, opts EnumOptions) *AppEnumerator {
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 10 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Minute
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &AppEnumerator{
		exec:       exec,
		strategies: strategiesFor(opts.GOOS),
		opts:       opts,
		log:        opts.Logger.With().Str("component", "enumeration").Logger(),
		fallbacks:  map[string]int{},
	}
}

// ListVisibleApplications returns the cached application list, refreshing
// it when the refresh interval (plus any backoff delay) has passed. The last
// good list is returned when a refresh is skipped or fails.
func (a *AppEnumerator) ListVisibleApplications(ctx context.Context) []string {
	a.mu.Lock()
	now := a.opts.Now()
	if !a.due(now) {
		apps := append([]string(nil), a.apps...)
		a.mu.Unlock()
		return apps
	}
	a.lastAttempt = now
	a.mu.Unlock()

	apps, name, err := a.enumerate(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.failures++
		a.delay = BackoffDelay(a.failures, a.opts.BackoffBase, a.opts.BackoffMax)
		a.opts.Metrics.EnumFailures.Inc()
		a.opts.Metrics.EnumBackoffMs.Set(float64(a.delay.Milliseconds()))
		a.log.Warn().Err(err).Int("failures", a.failures).Dur("backoff", a.delay).Msg("application enumeration failed")
		return append([]string(nil), a.apps...)
	}

	if a.failures > 0 {
		a.log.Info().Str("strategy", name).Msg("application enumeration recovered; backoff reset")
	}
	a.apps = apps
	a.updatedAt = now
	a.failures = 0
	a.delay = 0
	a.last = name
	a.fallbacks[name]++
	a.opts.Metrics.EnumStrategy.WithLabelValues(name).Inc()
	a.opts.Metrics.EnumBackoffMs.Set(0)
	return append([]string(nil), apps...)
}

// due reports whether a refresh should be attempted at now.
func (a *AppEnumerator) due(now time.Time) bool {
	if a.delay > 0 {
		return now.Sub(a.lastAttempt) >= a.opts.Refresh+a.delay
	}
	if a.updatedAt.IsZero() {
		return true
	}
	return now.Sub(a.updatedAt) >= a.opts.Refresh
}

// enumerate tries each strategy in order and returns the first result that
// did not fail.
func (a *AppEnumerator) enumerate(ctx context.Context) ([]string, string, error) {
	var errs []error
	for _, s := range a.strategies {
		out, err := a.exec.Run(ctx, s.cmd, s.args...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return s.parse(out), s.name, nil
	}
	return nil, "none", errors.Join(append([]error{ErrEnumerationExhausted}, errs...)...)
}

// Stats returns a copy of the enumeration state.
func (a *AppEnumerator) Stats() EnumStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	fb := make(map[string]int, len(a.fallbacks))
	for k, v := range a.fallbacks {
		fb[k] = v
	}
	return EnumStats{
		Apps:         len(a.apps),
		UpdatedAt:    a.updatedAt,
		Failures:     a.failures,
		Delay:        a.delay,
		MaxDelay:     a.opts.BackoffMax,
		LastStrategy: a.last,
		Fallbacks:    fb,
	}
}

// BackoffDelay returns min(base*2^(failures-1), max), or zero when there
// are no failures.
func BackoffDelay(failures int, base, max time.Duration) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
