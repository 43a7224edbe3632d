package domain

import "time"

// AlertSource identifies the monitoring tool that raised an alert.
type AlertSource string

// Known alert sources.
const (
	AlertSourceZabbix     AlertSource = "Zabbix"
	AlertSourcePrometheus AlertSource = "Prometheus"
	AlertSourceNagios     AlertSource = "Nagios"
	AlertSourceDatadog    AlertSource = "Datadog"
	AlertSourceGrafana    AlertSource = "Grafana"
	AlertSourceManual     AlertSource = "Manual"
)

// IsValid checks if the alert source is known.
func (s AlertSource) IsValid() bool {
	switch s {
	case AlertSourceZabbix, AlertSourcePrometheus, AlertSourceNagios,
		AlertSourceDatadog, AlertSourceGrafana, AlertSourceManual:
		return true
	}
	return false
}

// MonitoringAlert is an alert raised by an external monitoring tool.
// It is consumed by the ingestor and is not stored.
type MonitoringAlert struct {
	ID        string             `json:"id"`
	Source    AlertSource        `json:"source"`
	Severity  Severity           `json:"severity"`
	Message   string             `json:"message"`
	CIID      string             `json:"ci_id"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}
