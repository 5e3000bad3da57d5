package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ranking and draft analytics services

var (
	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_db_queries_total",
			Help: "Total number of document store queries",
		},
		[]string{"operation", "collection", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_db_query_duration_seconds",
			Help:    "Duration of document store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftlab_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftlab_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Batch write metrics
	BatchWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_batch_writes_total",
			Help: "Total number of committed write batches",
		},
		[]string{"status"},
	)

	BatchOpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftlab_batch_ops_total",
			Help: "Total number of write operations committed in batches",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"layer"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Aggregation metrics
	AggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_aggregation_runs_total",
			Help: "Total number of analytics aggregation runs",
		},
		[]string{"mode", "status"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_aggregation_duration_seconds",
			Help:    "Duration of analytics aggregation runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	AggregationPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_aggregation_pass_duration_seconds",
			Help:    "Duration of individual aggregation passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	DraftSessionsProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftlab_draft_sessions_processed",
			Help: "Draft sessions read by the last aggregation run",
		},
	)

	LastSuccessfulAggregation = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftlab_last_successful_aggregation_timestamp",
			Help: "Timestamp of last successful aggregation run",
		},
	)

	// Ranking import metrics
	RankingImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_ranking_imports_total",
			Help: "Total number of ranking cohort imports",
		},
		[]string{"position", "status"},
	)

	RankedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "draftlab_ranked_records",
			Help: "Records in the last imported cohort per position",
		},
		[]string{"position"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_source_fetches_total",
			Help: "Total number of remote ranking source downloads",
		},
		[]string{"scheme", "status"},
	)

	SourceFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_source_fetch_duration_seconds",
			Help:    "Duration of remote source downloads in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	// Query metrics
	QueryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_query_requests_total",
			Help: "Total number of collection queries served",
		},
		[]string{"collection", "status"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_query_duration_seconds",
			Help:    "Duration of collection queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	IndexRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftlab_index_requests_total",
			Help: "Total number of queries logged for a missing composite index",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftlab_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftlab_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Worker metrics
	WorkerLoopIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "draftlab_worker_loop_iterations_total",
			Help: "Total number of incremental worker iterations",
		},
	)

	WorkerLoopDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "draftlab_worker_loop_duration_seconds",
			Help:    "Duration of incremental worker iterations in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120},
		},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftlab_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)
)

// RecordDBQuery records a document store query metric
func RecordDBQuery(operation, collection, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, collection, status).Inc()
	DBQueryDuration.WithLabelValues(operation, collection).Observe(duration)
}

// RecordBatchWrite records one committed (or failed) batch
func RecordBatchWrite(status string, ops int) {
	BatchWritesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		BatchOpsTotal.Add(float64(ops))
	}
}

// RecordCacheHit records a cache hit for a cache layer
func RecordCacheHit(layer string) {
	CacheHitsTotal.WithLabelValues(layer).Inc()
}

// RecordCacheMiss records a cache miss for a cache layer
func RecordCacheMiss(layer string) {
	CacheMissesTotal.WithLabelValues(layer).Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordAggregation records an aggregation run
func RecordAggregation(mode, status string, duration float64, sessions int) {
	AggregationRunsTotal.WithLabelValues(mode, status).Inc()
	AggregationDuration.WithLabelValues(mode).Observe(duration)

	if status == "success" {
		DraftSessionsProcessed.Set(float64(sessions))
		LastSuccessfulAggregation.SetToCurrentTime()
	}
}

// RecordPass records one aggregation pass duration
func RecordPass(pass string, duration float64) {
	AggregationPassDuration.WithLabelValues(pass).Observe(duration)
}

// RecordImport records a ranking cohort import
func RecordImport(position, status string, records int) {
	RankingImportsTotal.WithLabelValues(position, status).Inc()
	if status == "success" {
		RankedRecords.WithLabelValues(position).Set(float64(records))
	}
}

// RecordSourceFetch records a remote source download
func RecordSourceFetch(scheme, status string, duration float64) {
	SourceFetchesTotal.WithLabelValues(scheme, status).Inc()
	SourceFetchDuration.WithLabelValues(scheme).Observe(duration)
}

// RecordQuery records a collection query
func RecordQuery(collection, status string, duration float64) {
	QueryRequestsTotal.WithLabelValues(collection, status).Inc()
	QueryDuration.WithLabelValues(collection).Observe(duration)
}

// RecordIndexRequest records a logged missing-index request
func RecordIndexRequest() {
	IndexRequestsTotal.Inc()
}

// RecordHTTPRequest records an API request
func RecordHTTPRequest(route, method, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration)
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

// RecordWorkerIteration records an incremental worker iteration
func RecordWorkerIteration(duration float64) {
	WorkerLoopIterations.Inc()
	WorkerLoopDuration.Observe(duration)
}
