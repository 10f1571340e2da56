package shared

const (
	UserID = "user_id"

	// Verdict sources
	SourceCache    = "cache"
	SourceDatabase = "database"
	SourceAPI      = "api"

	// Batch item lifecycle
	StatusPending   = "pending"
	StatusUploading = "uploading"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	// Batch item types
	ItemTypeText = "text"
	ItemTypeFile = "file"

	// Metric names
	MetricCacheHit        = "cache_hit"
	MetricCacheMiss       = "cache_miss"
	MetricAnalysisSuccess = "analysis_success"
	MetricAnalysisError   = "analysis_error"
	MetricAnalysisLatency = "analysis_latency_ms"

	// Confidence buckets
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"

	// System health states
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)
