package services

import (
	"encoding/json"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

// Analysis metrics
var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_lookups_total",
			Help: "Cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_total",
			Help: "Completed analyses by outcome, confidence bucket and category",
		},
		[]string{"outcome", "confidence", "category"},
	)

	analysisDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "End-to-end analysis duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	batchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Batch items processed by terminal status",
		},
		[]string{"status"},
	)

	scorerFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scorer_fallbacks_total",
			Help: "Analyses served by the heuristic classifier after scorer failure",
		},
	)
)

// MetricsService appends samples to the durable metrics table and mirrors
// them into Prometheus. Samples are observability only; recording failures
// never propagate to the request path.
type MetricsService struct {
	appContext.DefaultService

	sqlSvc *PostgresService

	window time.Duration
	now    func() time.Time
}

const METRICS_SVC = "metrics_svc"

func (svc MetricsService) Id() string {
	return METRICS_SVC
}

func (svc *MetricsService) Configure(ctx *appContext.Context) error {
	svc.window = time.Duration(envInt("HEALTH_WINDOW_MINUTES", 60)) * time.Minute
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *MetricsService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	return nil
}

// Record appends one sample. Append-only; aggregation happens at read time.
func (svc *MetricsService) Record(name string, value float64, tags map[string]string) {
	svc.recordPrometheus(name, tags)

	if svc.sqlSvc == nil {
		return
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		tagsJSON = []byte("{}")
	}

	metric := &model.PerformanceMetric{
		Name:       name,
		Value:      value,
		Tags:       tagsJSON,
		RecordedAt: svc.now(),
	}

	if err := svc.sqlSvc.InsertMetric(metric); err != nil {
		log.WithError(err).WithField("metric", name).Warn("Failed to record metric sample")
	}
}

func (svc *MetricsService) recordPrometheus(name string, tags map[string]string) {
	switch name {
	case shared.MetricCacheHit:
		cacheLookupsTotal.WithLabelValues("hit").Inc()
	case shared.MetricCacheMiss:
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	case shared.MetricAnalysisSuccess:
		analysisTotal.WithLabelValues("success", tags["confidence"], tags["category"]).Inc()
	case shared.MetricAnalysisError:
		analysisTotal.WithLabelValues("error", tags["confidence"], tags["category"]).Inc()
	}
}

// ObserveLatency records one analysis duration under its verdict source.
func (svc *MetricsService) ObserveLatency(source string, duration time.Duration) {
	analysisDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	svc.Record(shared.MetricAnalysisLatency, float64(duration.Milliseconds()), map[string]string{"source": source})
}

func (svc *MetricsService) ObserveBatchItem(status string) {
	batchItemsTotal.WithLabelValues(status).Inc()
}

func (svc *MetricsService) ObserveFallback() {
	scorerFallbacksTotal.Inc()
}

// Health classifies the trailing window. Observability only: the result
// feeds dashboards and alerts, it does not throttle admission.
func (svc *MetricsService) Health() (*dto.HealthSnapshot, error) {
	since := svc.now().Add(-svc.window)

	hits, err := svc.sqlSvc.SumMetric(shared.MetricCacheHit, since)
	if err != nil {
		return nil, err
	}
	misses, err := svc.sqlSvc.SumMetric(shared.MetricCacheMiss, since)
	if err != nil {
		return nil, err
	}
	successes, err := svc.sqlSvc.SumMetric(shared.MetricAnalysisSuccess, since)
	if err != nil {
		return nil, err
	}
	failures, err := svc.sqlSvc.SumMetric(shared.MetricAnalysisError, since)
	if err != nil {
		return nil, err
	}
	meanLatency, err := svc.sqlSvc.AvgMetric(shared.MetricAnalysisLatency, since)
	if err != nil {
		return nil, err
	}

	total := successes + failures

	hitRate := 100.0
	if lookups := hits + misses; lookups > 0 {
		hitRate = hits / lookups * 100
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = failures / total * 100
	}

	return &dto.HealthSnapshot{
		Status:        ClassifyHealth(hitRate, errorRate, meanLatency),
		CacheHitRate:  hitRate,
		ErrorRate:     errorRate,
		MeanLatencyMs: meanLatency,
		TotalRequests: int64(total),
		WindowStart:   since,
		EvaluatedAt:   svc.now(),
	}, nil
}

// ClassifyHealth maps trailing-window aggregates to a health class.
func ClassifyHealth(hitRate, errorRate, meanLatencyMs float64) string {
	if errorRate > 25 || meanLatencyMs > 10000 || hitRate < 30 {
		return shared.HealthCritical
	}
	if errorRate > 10 || meanLatencyMs > 5000 || hitRate < 50 {
		return shared.HealthWarning
	}
	return shared.HealthHealthy
}

// ConfidenceBucket maps a confidence score to its metric tag.
func ConfidenceBucket(confidence int) string {
	switch {
	case confidence >= 80:
		return shared.ConfidenceHigh
	case confidence >= 60:
		return shared.ConfidenceMedium
	default:
		return shared.ConfidenceLow
	}
}
