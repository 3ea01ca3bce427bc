package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var poolConnectionsDesc = prometheus.NewDesc(
	"moodleherald_db_pool_connections",
	"Number of journal database connections by state",
	[]string{"state"},
	nil,
)

// PoolCollector exposes pgx pool statistics as Prometheus metrics.
type PoolCollector struct {
	pool *pgxpool.Pool
}

// NewPoolCollector creates a collector for the given pool.
// Register it with prometheus.MustRegister.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{pool: pool}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnectionsDesc
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()), "acquired")
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(stat.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(stat.TotalConns()), "total")
}
