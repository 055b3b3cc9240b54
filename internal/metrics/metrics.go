// Package metrics holds the prometheus collectors shared by the agent's
// components. Each agent owns one Registry; nothing registers globally.
package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "timeslice"

// Registry groups every collector the agent updates.
type Registry struct {
	reg *prometheus.Registry

	ExecStarted   prometheus.Counter
	ExecCompleted prometheus.Counter
	ExecThrottled prometheus.Counter
	ExecEAGAIN    prometheus.Counter
	ExecInFlight  prometheus.Gauge
	ExecAvgMillis prometheus.Gauge

	EnumFailures  prometheus.Counter
	EnumStrategy  *prometheus.CounterVec
	EnumBackoffMs prometheus.Gauge

	Worklogs      *prometheus.CounterVec
	Slices        prometheus.Counter
	ActiveSession prometheus.Gauge
	Reconciled    prometheus.Counter
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.ExecStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "exec", Name: "started_total",
		Help: "External commands admitted by the executor.",
	})
	r.ExecCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "exec", Name: "completed_total",
		Help: "External commands that finished, successfully or not.",
	})
	r.ExecThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "exec", Name: "throttled_total",
		Help: "Drain attempts deferred by the per-minute quota.",
	})
	r.ExecEAGAIN = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "exec", Name: "eagain_total",
		Help: "Commands that failed with a resource-exhaustion spawn error.",
	})
	r.ExecInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "exec", Name: "in_flight",
		Help: "Commands currently running.",
	})
	r.ExecAvgMillis = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "exec", Name: "avg_latency_ms",
		Help: "Exponential moving average of command latency.",
	})
	r.EnumFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "enumeration", Name: "failures_total",
		Help: "Refreshes where every enumeration strategy failed.",
	})
	r.EnumStrategy = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "enumeration", Name: "strategy_total",
		Help: "Successful refreshes by strategy.",
	}, []string{"strategy"})
	r.EnumBackoffMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "enumeration", Name: "backoff_ms",
		Help: "Current enumeration backoff delay.",
	})
	r.Worklogs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worklog", Name: "submissions_total",
		Help: "Worklog submissions by outcome.",
	}, []string{"status"})
	r.Slices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "session", Name: "slices_total",
		Help: "Slices carved from active sessions.",
	})
	r.ActiveSession = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "session", Name: "active",
		Help: "1 while a session is active.",
	})
	r.Reconciled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "worklog", Name: "relogged_total",
		Help: "Sessions re-logged by reconciliation.",
	})

	r.reg.MustRegister(
		r.ExecStarted, r.ExecCompleted, r.ExecThrottled, r.ExecEAGAIN,
		r.ExecInFlight, r.ExecAvgMillis,
		r.EnumFailures, r.EnumStrategy, r.EnumBackoffMs,
		r.Worklogs, r.Slices, r.ActiveSession, r.Reconciled,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// WriteText dumps every metric family in text format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
