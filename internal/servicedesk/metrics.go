package servicedesk

import (
	"strconv"
	"time"

	"github.com/bissquit/itsm-garden/internal/automation"
	"github.com/bissquit/itsm-garden/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "itsmgarden"

const (
	runResultSuccess = "success"
	runResultPartial = "partial"
	runResultError   = "error"
)

var (
	automationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "runs_total",
			Help:      "Total automation pipeline runs by result",
		},
		[]string{"result"},
	)

	automationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "run_duration_seconds",
			Help:      "Automation pipeline run duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	slaViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "violations_total",
			Help:      "SLA violations detected by automation runs",
		},
		[]string{"type", "severity"},
	)

	escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "escalations_total",
			Help:      "Incident escalations by target tier",
		},
		[]string{"level"},
	)

	alertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "ingested_total",
			Help:      "Monitoring alerts turned into incidents",
		},
		[]string{"source"},
	)

	problemsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "problems",
			Name:      "created_total",
			Help:      "Problems synthesized from incident patterns",
		},
		[]string{"priority"},
	)
)

func recordRun(result string, duration time.Duration) {
	automationRuns.WithLabelValues(result).Inc()
	automationRunDuration.Observe(duration.Seconds())
}

func recordViolations(violations []automation.Violation) {
	for _, v := range violations {
		slaViolations.WithLabelValues(string(v.Type), string(v.Severity)).Inc()
	}
}

func recordEscalation(level int) {
	escalations.WithLabelValues(strconv.Itoa(level)).Inc()
}

func recordAlertIngested(source domain.AlertSource) {
	alertsIngested.WithLabelValues(string(source)).Inc()
}

func recordProblemCreated(priority domain.Severity) {
	problemsCreated.WithLabelValues(string(priority)).Inc()
}
