package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	heartbeatChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "watchdog",
			Name:      "heartbeat_checks_total",
			Help:      "Heartbeat classifications by result (fresh/stale/missing).",
		}, []string{"result"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "watchdog",
			Name:      "restarts_total",
			Help:      "Bot restarts by reason.",
		}, []string{"reason"},
	)
	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "alert",
			Name:      "sent_total",
			Help:      "Alerts dispatched by severity.",
		}, []string{"severity"},
	)
	optimizationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "optimizer",
			Name:      "runs_total",
			Help:      "Optimization cycles by outcome (success/failed/refused).",
		}, []string{"outcome"},
	)
	optimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "optimizer",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of optimization cycles.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Register registers all metrics with the provided registerer.
// Safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{heartbeatChecks, restarts, alertsSent, optimizationRuns, optimizationDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncHeartbeatCheck(result string) {
	if regOK.Load() {
		heartbeatChecks.WithLabelValues(result).Inc()
	}
}

func IncRestart(reason string) {
	if regOK.Load() {
		restarts.WithLabelValues(reason).Inc()
	}
}

func IncAlert(severity string) {
	if regOK.Load() {
		alertsSent.WithLabelValues(severity).Inc()
	}
}

func IncOptimizationRun(outcome string) {
	if regOK.Load() {
		optimizationRuns.WithLabelValues(outcome).Inc()
	}
}

func ObserveOptimizationDuration(seconds float64) {
	if regOK.Load() {
		optimizationDuration.Observe(seconds)
	}
}
