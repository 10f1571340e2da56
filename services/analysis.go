package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

// verdictScorer is the external scoring capability as the gateway sees it.
type verdictScorer interface {
	Available() bool
	Analyze(ctx context.Context, content, category string) (*dto.Verdict, error)
}

// verdictClassifier is the deterministic fallback classifier.
type verdictClassifier interface {
	Classify(content, category string) *dto.Verdict
}

// requestLimiter wraps downstream calls with admission control and retry.
type requestLimiter interface {
	MakeRequest(ctx context.Context, identifier, endpointType string, fn func(context.Context) error) error
}

// reportStore is the report persistence surface the gateway needs.
type reportStore interface {
	SearchReports(content string, limit int) ([]model.ScamReport, error)
	CountSimilarReports(content string) (int64, error)
	CreateScamReport(report *model.ScamReport) error
	EnsureCategory(name string) (*model.Category, error)
	GetCategory(id string) (*model.Category, error)
}

// metricsSink decouples the gateway from the metrics service in tests.
type metricsSink interface {
	Record(name string, value float64, tags map[string]string)
	ObserveLatency(source string, duration time.Duration)
	ObserveFallback()
}

// AnalysisService is the single entry point for scoring content. Every
// request walks the same path: validate, fingerprint, cache, prior reports,
// external scorer behind the rate limiter, heuristic fallback. Callers never
// reach the scorer directly.
type AnalysisService struct {
	appContext.DefaultService

	scorer    verdictScorer
	heuristic verdictClassifier
	limiter   requestLimiter
	cache     *AnalysisCacheService
	reports   reportStore
	metrics   metricsSink

	geoSvc *GeolocationService

	maxContentLength int
}

const ANALYSIS_SVC = "analysis_svc"

const reportPrompt = "If this message was sent to you, consider submitting a report to help warn others."

func (svc AnalysisService) Id() string {
	return ANALYSIS_SVC
}

func (svc *AnalysisService) Configure(ctx *appContext.Context) error {
	svc.maxContentLength = envInt("MAX_CONTENT_LENGTH", 10000)
	return svc.DefaultService.Configure(ctx)
}

func (svc *AnalysisService) Start() error {
	svc.scorer = svc.Service(SCORER_SVC).(*ScorerService)
	svc.heuristic = svc.Service(HEURISTIC_SVC).(*HeuristicService)
	svc.limiter = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.cache = svc.Service(ANALYSIS_CACHE_SVC).(*AnalysisCacheService)
	svc.reports = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.metrics = svc.Service(METRICS_SVC).(*MetricsService)

	if geoSvc, ok := svc.Service(GEOLOCATION_SVC).(*GeolocationService); ok {
		svc.geoSvc = geoSvc
	}

	return nil
}

// NewAnalysisService builds a gateway outside the service container.
func NewAnalysisService(scorer verdictScorer, heuristic verdictClassifier, limiter requestLimiter,
	cache *AnalysisCacheService, reports reportStore, metrics metricsSink) *AnalysisService {
	return &AnalysisService{
		scorer:           scorer,
		heuristic:        heuristic,
		limiter:          limiter,
		cache:            cache,
		reports:          reports,
		metrics:          metrics,
		maxContentLength: 10000,
	}
}

// Analyze resolves one piece of content to a verdict. identifier is the
// rate-limit identity (user id or client IP); clientIP feeds the optional
// location annotation on persisted reports.
func (svc *AnalysisService) Analyze(ctx context.Context, req *dto.AnalyzeRequest, identifier, clientIP string) (*dto.AnalysisResult, error) {
	start := time.Now()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, shared.NewValidationError(nil, "Content must not be empty")
	}
	if len(content) > svc.maxContentLength {
		return nil, shared.NewValidationError(nil, "Content exceeds the maximum supported length")
	}

	fp := shared.Fingerprint(content)
	frequency := svc.cache.Observe(ctx, fp)

	// Cache tier: identical content within TTL never re-hits the scorer.
	if verdict, age, ok, err := svc.cache.Get(ctx, fp); err == nil && ok {
		svc.metrics.Record(shared.MetricCacheHit, 1, map[string]string{"category": verdict.Category})
		svc.metrics.ObserveLatency(shared.SourceCache, time.Since(start))

		return &dto.AnalysisResult{
			Verdict:      *verdict,
			Cached:       true,
			Source:       shared.SourceCache,
			CacheAgeSecs: int64(age.Seconds()),
		}, nil
	} else if err != nil {
		log.WithError(err).Warn("Cache lookup failed, continuing without it")
	}

	svc.metrics.Record(shared.MetricCacheMiss, 1, nil)

	// Community tier: prior confirmed reports answer without spending scorer
	// budget. The verdict still enters the fingerprint cache under the
	// frequency gate, so repeated submissions graduate to the cache tier.
	if result := svc.fromPriorReports(content); result != nil {
		if svc.cache.ShouldCache(frequency) {
			if err := svc.cache.Put(ctx, fp, &result.Verdict); err != nil {
				log.WithError(err).Warn("Failed to cache verdict")
			}
		}

		svc.metrics.ObserveLatency(shared.SourceDatabase, time.Since(start))
		svc.recordOutcome(shared.MetricAnalysisSuccess, &result.Verdict)
		return result, nil
	}

	verdict, degraded, err := svc.score(ctx, content, req.Category, identifier)
	if err != nil {
		svc.metrics.Record(shared.MetricAnalysisError, 1, map[string]string{"category": req.Category})
		return nil, err
	}

	if svc.cache.ShouldCache(frequency) {
		if err := svc.cache.Put(ctx, fp, verdict); err != nil {
			log.WithError(err).Warn("Failed to cache verdict")
		}
	}

	svc.persistReport(content, verdict, identifier, clientIP)

	svc.metrics.ObserveLatency(shared.SourceAPI, time.Since(start))
	svc.recordOutcome(shared.MetricAnalysisSuccess, verdict)

	result := &dto.AnalysisResult{
		Verdict:       *verdict,
		Source:        shared.SourceAPI,
		DegradedModel: degraded,
	}
	if !verdict.IsSafe {
		result.ReportPrompt = reportPrompt
	}
	return result, nil
}

// score runs the external scorer behind the rate limiter and falls back to
// the heuristic classifier when the scorer itself fails. An exhausted scorer
// budget surfaces as the typed RateLimited error so the caller sees 429 with
// retry-after, never a silently degraded verdict.
func (svc *AnalysisService) score(ctx context.Context, content, category, identifier string) (*dto.Verdict, bool, error) {
	if !svc.scorer.Available() {
		svc.metrics.ObserveFallback()
		return svc.heuristic.Classify(content, category), true, nil
	}

	var verdict *dto.Verdict
	err := svc.limiter.MakeRequest(ctx, identifier, EndpointScorer, func(ctx context.Context) error {
		v, err := svc.scorer.Analyze(ctx, content, category)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err == nil {
		return verdict, false, nil
	}

	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	if shared.IsRateLimited(err) {
		return nil, false, err
	}

	log.WithError(err).Warn("Scorer unavailable, degrading to heuristic classifier")
	svc.metrics.ObserveFallback()
	return svc.heuristic.Classify(content, category), true, nil
}

// fromPriorReports serves a verdict assembled from stored community reports,
// or nil when none match.
func (svc *AnalysisService) fromPriorReports(content string) *dto.AnalysisResult {
	reports, err := svc.reports.SearchReports(content, 1)
	if err != nil {
		log.WithError(err).Warn("Report search failed, continuing to scorer")
		return nil
	}
	if len(reports) == 0 {
		return nil
	}

	report := reports[0]

	var threats []string
	if len(report.Threats) > 0 {
		if err := json.Unmarshal(report.Threats, &threats); err != nil {
			threats = nil
		}
	}
	if threats == nil {
		threats = []string{}
	}

	similar, err := svc.reports.CountSimilarReports(content)
	if err != nil {
		similar = int64(len(reports))
	}

	category := "General"
	if report.CategoryID != nil {
		if resolved, err := svc.reports.GetCategory(*report.CategoryID); err == nil {
			category = resolved.Name
		}
	}

	result := &dto.AnalysisResult{
		Verdict: dto.Verdict{
			IsSafe:     report.IsSafe,
			Confidence: report.Confidence,
			Category:   category,
			Threats:    threats,
			Analysis:   report.Analysis,
			Timestamp:  report.CreatedAt,
		},
		Source:       shared.SourceDatabase,
		SimilarCount: similar,
	}
	if !report.IsSafe {
		result.ReportPrompt = reportPrompt
	}
	return result
}

// persistReport stores attributed analyses for future database-tier answers.
// Anonymous traffic is served by the fingerprint cache alone; persisting it
// would let unvetted duplicates shadow the cache via the content search.
// Persistence problems are logged and swallowed; the caller already has a
// verdict to return.
func (svc *AnalysisService) persistReport(content string, verdict *dto.Verdict, identifier, clientIP string) {
	if identifier == "" || identifier == clientIP {
		return
	}

	threatsJSON, err := json.Marshal(verdict.Threats)
	if err != nil {
		threatsJSON = []byte("[]")
	}

	userID := identifier
	report := &model.ScamReport{
		Content:    content,
		IsSafe:     verdict.IsSafe,
		Confidence: verdict.Confidence,
		Threats:    threatsJSON,
		Analysis:   verdict.Analysis,
		UserID:     &userID,
	}

	if verdict.Category != "" {
		if category, err := svc.reports.EnsureCategory(verdict.Category); err == nil {
			report.CategoryID = &category.ID
		}
	}

	if svc.geoSvc != nil && clientIP != "" {
		if location, err := svc.geoSvc.GetLocationByIP(clientIP); err == nil {
			report.Location = location
		}
	}

	if err := svc.reports.CreateScamReport(report); err != nil {
		log.WithError(err).Warn("Failed to persist scam report")
	}
}

func (svc *AnalysisService) recordOutcome(name string, verdict *dto.Verdict) {
	svc.metrics.Record(name, float64(verdict.Confidence), map[string]string{
		"confidence": ConfidenceBucket(verdict.Confidence),
		"category":   verdict.Category,
	})
}
