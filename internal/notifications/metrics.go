package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "itsmgarden"

// Delivery outcomes.
const (
	statusSuccess = "success"
	statusRetry   = "retry"
	statusFailed  = "failed"
)

var (
	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notification delivery outcomes by message type",
		},
		[]string{"sender", "message_type", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver a notification, retries included",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"sender"},
	)

	notificationAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_attempts",
			Help:      "Send attempts per delivered or abandoned notification",
			Buckets:   []float64{1, 2, 3, 5, 8},
		},
		[]string{"sender"},
	)
)

func recordNotificationSent(sender string, mt MessageType, status string) {
	notificationsSent.WithLabelValues(sender, string(mt), status).Inc()
}

func recordDelivery(sender string, attempts int, duration time.Duration) {
	notificationAttempts.WithLabelValues(sender).Observe(float64(attempts))
	notificationSendDuration.WithLabelValues(sender).Observe(duration.Seconds())
}
