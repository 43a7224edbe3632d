package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordDBPoolMetrics copies a snapshot of pool statistics into the pool gauges.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))

	DBPoolAcquires.WithLabelValues("success").Set(float64(stats.AcquireCount()))
	DBPoolAcquires.WithLabelValues("empty").Set(float64(stats.EmptyAcquireCount()))
	DBPoolAcquires.WithLabelValues("canceled").Set(float64(stats.CanceledAcquireCount()))
}
