// Package prometheus exposes plugin platform metrics in the Prometheus
// text format.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/migration"
)

const namespace = "pluginiq"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	PluginEvents      *prometheus.CounterVec
	Migrations        *prometheus.CounterVec
	MigrationDuration *prometheus.HistogramVec
	LicensesExpired   prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PluginEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_events_total",
				Help:      "Plugin lifecycle events by kind.",
			},
			[]string{"kind", "plugin_id"},
		),
		Migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_migrations_total",
				Help:      "Plugin migrations run, by direction and outcome.",
			},
			[]string{"plugin_id", "direction", "outcome"},
		),
		MigrationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plugin_migration_duration_seconds",
				Help:      "Duration of a single plugin migration.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"direction"},
		),
		LicensesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_expired_total",
			Help:      "Licenses moved to expired by the sweep.",
		}),
	}

	m.registry.MustRegister(
		m.PluginEvents,
		m.Migrations,
		m.MigrationDuration,
		m.LicensesExpired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent counts a registry event. Its signature matches
// registry.Listener.
func (m *Metrics) ObserveEvent(_ context.Context, e domain.Event) {
	m.PluginEvents.WithLabelValues(string(e.Kind), e.PluginID).Inc()
}

// ObserveMigration records a migration outcome. Its signature matches
// migration.Observer.
func (m *Metrics) ObserveMigration(pluginID, _ string, dir migration.Direction, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Migrations.WithLabelValues(pluginID, string(dir), outcome).Inc()
	m.MigrationDuration.WithLabelValues(string(dir)).Observe(elapsed.Seconds())
}

// Sweeper is satisfied by app.LicenseService.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// CountingSweeper adds swept licenses to LicensesExpired.
type CountingSweeper struct {
	Next    Sweeper
	Metrics *Metrics
}

func (s CountingSweeper) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.Next.SweepExpired(ctx)
	if n > 0 {
		s.Metrics.LicensesExpired.Add(float64(n))
	}
	return n, err
}
