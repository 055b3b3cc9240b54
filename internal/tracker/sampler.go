package tracker

import (
	"context"
	"net/url"
	"regexp"

	"github.com/fakeyudi/timeslice/internal/classify"
	"github.com/fakeyudi/timeslice/internal/collector"
	"github.com/fakeyudi/timeslice/internal/session"
)

const (
	maxEventTitle  = 180
	samplerUpgrade = 70
)

var jiraURL = regexp.MustCompile(`(?i)jira`)

// sampleTick is one fine-loop cycle: it records a micro-event on the
// active session whenever the foreground window changes.
func (a *Agent) sampleTick(ctx context.Context) {
	smp := a.deps.Sampler.Sample(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.observeSample(smp)
}

// observeSample turns a sample into a micro-event. Callers hold mu.
func (a *Agent) observeSample(smp collector.Sample) {
	fp := smp.Fingerprint()
	if fp == a.lastFP {
		return
	}
	a.lastFP = fp

	ev := microEvent(smp)
	s := a.current
	if s == nil {
		return
	}
	s.MicroEvents.Push(ev)

	if ev.Key != "" && ev.Key != s.DetectedIssue && a.known.Has(ev.Key) {
		a.log.Info().Str("session", s.ID).Str("from", s.DetectedIssue).Str("to", ev.Key).
			Str("source", ev.Source).Msg("session issue refined by window sampler")
		s.DetectedIssue = ev.Key
		s.Confidence = max(s.Confidence, samplerUpgrade)
	}
}

// microEvent extracts the key and browser signal of a sample. The key
// comes from the title first, then the URL; only the URL host is kept.
func microEvent(smp collector.Sample) session.MicroEvent {
	ev := session.MicroEvent{
		Timestamp: smp.Timestamp,
		App:       smp.App,
		Title:     truncate(smp.Title, maxEventTitle),
	}
	if k := classify.ExtractKey(smp.Title); k != "" {
		ev.Key, ev.Source = k, session.SourceTitle
	} else if smp.URL != "" {
		if k := classify.ExtractKey(smp.URL); k != "" {
			ev.Key, ev.Source = k, session.SourceURL
		}
	}
	if smp.URL != "" {
		host := ""
		if u, err := url.Parse(smp.URL); err == nil {
			host = u.Host
		}
		ev.Browser = &session.BrowserSignal{
			Host:   host,
			IsJira: jiraURL.MatchString(smp.URL),
			HasKey: ev.Key != "",
		}
	}
	return ev
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
