package dto

import "time"

// HealthSnapshot aggregates trailing-window metrics into a health class.
// Derived, never stored.
type HealthSnapshot struct {
	Status        string    `json:"status"`
	CacheHitRate  float64   `json:"cache_hit_rate"`
	ErrorRate     float64   `json:"error_rate"`
	MeanLatencyMs float64   `json:"mean_latency_ms"`
	TotalRequests int64     `json:"total_requests"`
	WindowStart   time.Time `json:"window_start"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}
