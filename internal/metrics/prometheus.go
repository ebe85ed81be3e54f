package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Prometheus metrics for the scheduler, reconciler and their sources

var (
	// API Call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_api_calls_total",
			Help: "Total number of outbound API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flooorgang_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	OddsRequestsRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_odds_api_requests_remaining",
			Help: "Remaining Odds API quota as reported by the last response",
		},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flooorgang_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flooorgang_cache_hits_total",
			Help: "Total number of stat log cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flooorgang_cache_misses_total",
			Help: "Total number of stat log cache misses",
		},
	)

	// Scheduling metrics
	ScheduleDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_schedule_decisions_total",
			Help: "Daily planning decisions by reason",
		},
		[]string{"reason"},
	)

	JobsArmedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_jobs_armed_total",
			Help: "Arm attempts by result (armed, ran, already_armed, skipped, error)",
		},
		[]string{"result"},
	)

	NextRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_next_run_timestamp_seconds",
			Help: "Unix time of the most recently armed scanner run",
		},
	)

	// Pipeline metrics
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_pipeline_runs_total",
			Help: "Analysis pipeline invocations by status",
		},
		[]string{"status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flooorgang_pipeline_duration_seconds",
			Help:    "Duration of analysis pipeline runs",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Reconciliation metrics
	PicksScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_picks_scored_total",
			Help: "Picks scored by outcome",
		},
		[]string{"outcome"},
	)

	PicksTransientTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flooorgang_picks_transient_total",
			Help: "Picks left unscored because the outcome source failed transiently",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flooorgang_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastSuccessfulReconcile = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_last_successful_reconcile_timestamp",
			Help: "Timestamp of last successful reconciliation",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_notifications_total",
			Help: "Notifications sent by kind and status",
		},
		[]string{"kind", "status"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flooorgang_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flooorgang_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordDecision records a planning decision
func RecordDecision(reason string) {
	ScheduleDecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordArm records the result of an arm attempt
func RecordArm(result string) {
	JobsArmedTotal.WithLabelValues(result).Inc()
}

// RecordPipelineRun records a pipeline invocation
func RecordPipelineRun(status string, duration float64) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
	PipelineDuration.Observe(duration)
}

// RecordScore records one scored pick
func RecordScore(outcome string) {
	PicksScoredTotal.WithLabelValues(outcome).Inc()
}

// RecordReconcile records a finished reconciliation pass
func RecordReconcile(transient int, duration float64) {
	PicksTransientTotal.Add(float64(transient))
	ReconcileDuration.Observe(duration)
	LastSuccessfulReconcile.SetToCurrentTime()
}

// RecordNotification records a notification attempt
func RecordNotification(kind, status string) {
	NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// Push sends the default registry to a Prometheus pushgateway.
// Used by one-shot CLI runs that exit before any scrape.
func Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
