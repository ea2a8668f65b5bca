package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provisioning result labels
const (
	ResultCreated  = "created"
	ResultExisting = "existing"
	ResultFailed   = "failed"
)

// Fleet run result labels
const (
	ResultSuccess = "success"
)

// Fleet outcome labels
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Provisioning metrics
	ProvisioningTotal    prometheus.CounterVec
	ProvisioningDuration prometheus.Histogram

	// Migration metrics. No per-tenant label: tenant count is unbounded and
	// would blow up series cardinality.
	MigrationsAppliedTotal prometheus.Counter
	MigrationDuration      prometheus.Histogram

	// Fleet run metrics
	FleetRunsTotal       prometheus.CounterVec
	FleetTenantOutcomes  prometheus.CounterVec
	FleetRunDuration     prometheus.Histogram
	SchemaPoolsOpenGauge prometheus.Gauge
)

// InitMetrics initializes Prometheus metrics with the given name prefix
func InitMetrics(prefix string) {
	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ProvisioningTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_provisioning_total",
			Help: "Total number of tenant provisioning attempts by result",
		},
		[]string{"result"},
	)

	ProvisioningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_provisioning_duration_seconds",
			Help:    "Duration of tenant provisioning calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MigrationsAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_migrations_applied_total",
			Help: "Total number of migration files applied across all tenants",
		},
	)

	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_migration_duration_seconds",
			Help:    "Duration of individual migration file applications in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
	)

	FleetRunsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_fleet_runs_total",
			Help: "Total number of fleet migration runs by result",
		},
		[]string{"result"},
	)

	FleetTenantOutcomes = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_fleet_tenant_outcomes_total",
			Help: "Per-tenant outcomes across fleet migration runs",
		},
		[]string{"outcome"},
	)

	FleetRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_fleet_run_duration_seconds",
			Help:    "Duration of whole-fleet migration runs in seconds",
			Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900},
		},
	)

	SchemaPoolsOpenGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_schema_pools_open",
			Help: "Number of currently cached per-schema connection pools",
		},
	)
}

// Handler exposes the default registry for scraping
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProvisioning increments the provisioning counter for a result
func RecordProvisioning(result string, startTime time.Time) {
	ProvisioningTotal.WithLabelValues(result).Inc()
	ProvisioningDuration.Observe(time.Since(startTime).Seconds())
}

// RecordMigrationApplied tracks one applied migration file
func RecordMigrationApplied(startTime time.Time) {
	MigrationsAppliedTotal.Inc()
	MigrationDuration.Observe(time.Since(startTime).Seconds())
}

// RecordFleetRun tracks a completed fleet run and its per-tenant outcomes
func RecordFleetRun(result string, migrated, skipped, failed int, startTime time.Time) {
	FleetRunsTotal.WithLabelValues(result).Inc()
	FleetTenantOutcomes.WithLabelValues(OutcomeMigrated).Add(float64(migrated))
	FleetTenantOutcomes.WithLabelValues(OutcomeSkipped).Add(float64(skipped))
	FleetTenantOutcomes.WithLabelValues(OutcomeFailed).Add(float64(failed))
	FleetRunDuration.Observe(time.Since(startTime).Seconds())
}

// SetSchemaPoolsOpen updates the cached pool gauge
func SetSchemaPoolsOpen(count int) {
	SchemaPoolsOpenGauge.Set(float64(count))
}
