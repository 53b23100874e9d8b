package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records role-migration and auth metrics.
type Collector struct {
	registry *prometheus.Registry

	migrations        *prometheus.CounterVec
	migrationFailures *prometheus.CounterVec
	migrationLatency  prometheus.Histogram
	logins            *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqylal_role_migrations_total",
			Help: "Completed cross-table role migrations by source and target role.",
		}, []string{"from", "to"}),
		migrationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqylal_role_migration_failures_total",
			Help: "Failed role migrations by failure kind.",
		}, []string{"reason"}),
		migrationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aqylal_role_migration_duration_seconds",
			Help:    "Wall time of the migration transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqylal_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(c.migrations, c.migrationFailures, c.migrationLatency, c.logins)
	return c
}

// RecordMigration counts a completed migration between the named roles.
func (c *Collector) RecordMigration(from, to string) {
	c.migrations.WithLabelValues(from, to).Inc()
}

// RecordMigrationFailure counts a failed migration by reason label.
func (c *Collector) RecordMigrationFailure(reason string) {
	c.migrationFailures.WithLabelValues(reason).Inc()
}

// ObserveMigrationDuration records the transaction wall time.
func (c *Collector) ObserveMigrationDuration(d time.Duration) {
	c.migrationLatency.Observe(d.Seconds())
}

// RecordLogin counts a login attempt by outcome ("ok" or "failed").
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// Handler serves the collector's registry in prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
