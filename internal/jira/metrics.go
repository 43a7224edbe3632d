package jira

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "itsmgarden"

var (
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jira",
			Name:      "sync_runs_total",
			Help:      "Total JIRA sync runs by result",
		},
		[]string{"result"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jira",
			Name:      "sync_duration_seconds",
			Help:      "JIRA sync duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	syncIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jira",
			Name:      "issues_total",
			Help:      "JIRA issues processed by outcome",
		},
		[]string{"outcome"},
	)
)

func recordSync(result string, duration time.Duration) {
	syncRuns.WithLabelValues(result).Inc()
	syncDuration.Observe(duration.Seconds())
}

func recordIssue(outcome string) {
	syncIssues.WithLabelValues(outcome).Inc()
}
