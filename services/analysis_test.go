package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

type fakeScorer struct {
	available bool
	verdict   *dto.Verdict
	err       error
	calls     int
}

func (f *fakeScorer) Available() bool {
	return f.available
}

func (f *fakeScorer) Analyze(_ context.Context, _, category string) (*dto.Verdict, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	verdict := *f.verdict
	if verdict.Category == "" {
		verdict.Category = category
	}
	verdict.Timestamp = time.Now()
	return &verdict, nil
}

// passthroughLimiter admits everything, or fails with a fixed error.
type passthroughLimiter struct {
	err       error
	calls     int
	endpoints []string
}

func (f *passthroughLimiter) MakeRequest(ctx context.Context, _, endpointType string, fn func(context.Context) error) error {
	f.calls++
	f.endpoints = append(f.endpoints, endpointType)
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fakeReportStore struct {
	mu      sync.Mutex
	matches []model.ScamReport
	similar int64
	created []*model.ScamReport
}

// SearchReports mirrors the Postgres ILIKE semantics: case-insensitive
// equality or substring in either direction, persisted rows included.
func (f *fakeReportStore) SearchReports(content string, limit int) ([]model.ScamReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	query := strings.ToLower(content)
	var out []model.ScamReport
	for _, report := range f.matches {
		if contentMatches(query, report.Content) {
			out = append(out, report)
		}
	}
	for _, report := range f.created {
		if contentMatches(query, report.Content) {
			out = append(out, *report)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func contentMatches(query, stored string) bool {
	stored = strings.ToLower(stored)
	return strings.Contains(stored, query) || strings.Contains(query, stored)
}

func (f *fakeReportStore) CountSimilarReports(string) (int64, error) {
	return f.similar, nil
}

func (f *fakeReportStore) CreateScamReport(report *model.ScamReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, report)
	return nil
}

func (f *fakeReportStore) EnsureCategory(name string) (*model.Category, error) {
	return &model.Category{ID: "cat-" + name, Name: name}, nil
}

func (f *fakeReportStore) GetCategory(id string) (*model.Category, error) {
	return &model.Category{ID: id, Name: strings.TrimPrefix(id, "cat-")}, nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	recorded  []string
	fallbacks int
}

func (f *fakeMetrics) Record(name string, _ float64, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, name)
}

func (f *fakeMetrics) ObserveLatency(string, time.Duration) {}

func (f *fakeMetrics) ObserveFallback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallbacks++
}

func (f *fakeMetrics) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.recorded {
		if n == name {
			return true
		}
	}
	return false
}

type gatewayFixture struct {
	svc     *AnalysisService
	scorer  *fakeScorer
	limiter *passthroughLimiter
	reports *fakeReportStore
	metrics *fakeMetrics
	cache   *AnalysisCacheService
}

func newGatewayFixture(t *testing.T, minFrequency int64) *gatewayFixture {
	t.Helper()

	heuristic, err := NewHeuristicService()
	require.NoError(t, err)

	scorer := &fakeScorer{
		available: true,
		verdict: &dto.Verdict{
			IsSafe:     false,
			Confidence: 95,
			Threats:    []string{"Phishing"},
			Analysis:   "Credential harvesting attempt.",
		},
	}
	limiter := &passthroughLimiter{}
	reports := &fakeReportStore{}
	metrics := &fakeMetrics{}
	cache := newTestCache(24*time.Hour, minFrequency)

	return &gatewayFixture{
		svc:     NewAnalysisService(scorer, heuristic, limiter, cache, reports, metrics),
		scorer:  scorer,
		limiter: limiter,
		reports: reports,
		metrics: metrics,
		cache:   cache,
	}
}

func TestAnalyze_RejectsEmptyContent(t *testing.T) {
	f := newGatewayFixture(t, 1)

	_, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "   "}, "client-a", "1.2.3.4")
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.ErrKindValidation, appErr.Kind)
	assert.Zero(t, f.scorer.calls)
}

func TestAnalyze_RejectsOversizedContent(t *testing.T) {
	f := newGatewayFixture(t, 1)

	_, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: strings.Repeat("a", 10001)}, "client-a", "1.2.3.4")
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.ErrKindValidation, appErr.Kind)
}

func TestAnalyze_ScorerPathPersistsAndReportsSource(t *testing.T) {
	f := newGatewayFixture(t, 1)

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "click here to verify", Category: "SMS"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, shared.SourceAPI, result.Source)
	assert.False(t, result.Cached)
	assert.False(t, result.DegradedModel)
	assert.False(t, result.IsSafe)
	assert.NotEmpty(t, result.ReportPrompt)
	assert.Equal(t, 1, f.scorer.calls)

	require.Len(t, f.reports.created, 1)
	assert.Equal(t, "click here to verify", f.reports.created[0].Content)

	assert.True(t, f.metrics.has(shared.MetricCacheMiss))
	assert.True(t, f.metrics.has(shared.MetricAnalysisSuccess))
}

func TestAnalyze_SecondIdenticalRequestHitsCache(t *testing.T) {
	f := newGatewayFixture(t, 1)
	ctx := context.Background()
	req := &dto.AnalyzeRequest{Content: "you won a prize, act now"}

	first, err := f.svc.Analyze(ctx, req, "client-a", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, shared.SourceAPI, first.Source)

	second, err := f.svc.Analyze(ctx, req, "client-b", "5.6.7.8")
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, shared.SourceCache, second.Source)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, 1, f.scorer.calls)
	assert.True(t, f.metrics.has(shared.MetricCacheHit))
}

func TestAnalyze_NormalizedDuplicatesShareCacheEntry(t *testing.T) {
	f := newGatewayFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "You Won A Prize"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	second, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "  you won a prize  "}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, 1, f.scorer.calls)
}

func TestAnalyze_FrequencyGateSkipsOneOffCaching(t *testing.T) {
	f := newGatewayFixture(t, 2)
	ctx := context.Background()

	// First submission: frequency 1, below the gate, so nothing is cached.
	_, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "one-off message"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)

	second, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "one-off message"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Equal(t, 2, f.scorer.calls)

	// Second submission crossed the gate, so the third is served from cache.
	third, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "one-off message"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, third.Cached)
	assert.Equal(t, 2, f.scorer.calls)
}

func TestAnalyze_PriorReportsAnswerWithoutScorer(t *testing.T) {
	f := newGatewayFixture(t, 1)

	threats, _ := json.Marshal([]string{"Investment Fraud"})
	f.reports.matches = []model.ScamReport{{
		ID:         "report-1",
		Content:    "guaranteed returns on your investment",
		IsSafe:     false,
		Confidence: 88,
		Threats:    threats,
		Analysis:   "Known ponzi pitch.",
		CreatedAt:  time.Now().Add(-time.Hour),
	}}
	f.reports.similar = 4

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "guaranteed returns on your investment"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, shared.SourceDatabase, result.Source)
	assert.Equal(t, int64(4), result.SimilarCount)
	assert.Equal(t, 88, result.Confidence)
	assert.Equal(t, []string{"Investment Fraud"}, result.Threats)
	assert.NotEmpty(t, result.ReportPrompt)
	assert.Zero(t, f.scorer.calls)
}

func TestAnalyze_ScorerFailureDegradesToHeuristic(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.scorer.err = shared.NewScorerTransientError(errors.New("gateway timeout"))

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "URGENT: verify your account"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, result.DegradedModel)
	assert.Equal(t, shared.SourceAPI, result.Source)
	assert.False(t, result.IsSafe)
	assert.Equal(t, 1, f.metrics.fallbacks)
}

func TestAnalyze_ScorerUnavailableUsesHeuristic(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.scorer.available = false

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "send bitcoin for guaranteed returns"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, result.DegradedModel)
	assert.False(t, result.IsSafe)
	assert.Zero(t, f.scorer.calls)
	assert.Zero(t, f.limiter.calls)
}

func TestAnalyze_ExhaustedScorerBudgetSurfacesRateLimit(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.limiter.err = shared.NewRateLimitError(30 * time.Second)

	_, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "urgent loan offer"}, "client-a", "1.2.3.4")
	require.Error(t, err)
	assert.True(t, shared.IsRateLimited(err))

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))

	assert.Zero(t, f.scorer.calls)
	assert.Zero(t, f.metrics.fallbacks)
	assert.True(t, f.metrics.has(shared.MetricAnalysisError))
}

func TestAnalyze_CancelledContextPropagates(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.limiter.err = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Analyze(ctx, &dto.AnalyzeRequest{Content: "anything"}, "client-a", "1.2.3.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_AnonymousAnalysesAreNotPersisted(t *testing.T) {
	f := newGatewayFixture(t, 1)

	_, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "send mpesa to claim your prize"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, 1, f.scorer.calls)
	assert.Empty(t, f.reports.created)
}

func TestAnalyze_PersistedReportDoesNotShadowCache(t *testing.T) {
	f := newGatewayFixture(t, 1)
	ctx := context.Background()
	req := &dto.AnalyzeRequest{Content: "instant money, guaranteed returns"}

	first, err := f.svc.Analyze(ctx, req, "user-1", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, shared.SourceAPI, first.Source)
	require.Len(t, f.reports.created, 1)

	// The persisted report is findable by the content search, but the cache
	// tier answers first.
	second, err := f.svc.Analyze(ctx, req, "user-2", "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, shared.SourceCache, second.Source)
	assert.Equal(t, 1, f.scorer.calls)
}

func TestAnalyze_DatabaseVerdictEntersCache(t *testing.T) {
	f := newGatewayFixture(t, 1)
	ctx := context.Background()

	threats, _ := json.Marshal([]string{"Phishing"})
	f.reports.matches = []model.ScamReport{{
		ID:         "report-1",
		Content:    "your account is suspended, click here",
		IsSafe:     false,
		Confidence: 91,
		Threats:    threats,
		Analysis:   "Reported phishing lure.",
		CreatedAt:  time.Now().Add(-2 * time.Hour),
	}}

	req := &dto.AnalyzeRequest{Content: "your account is suspended, click here"}

	first, err := f.svc.Analyze(ctx, req, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, shared.SourceDatabase, first.Source)

	second, err := f.svc.Analyze(ctx, req, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, shared.SourceCache, second.Source)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Zero(t, f.scorer.calls)
}

func TestAnalyze_DatabaseTierResolvesCategoryName(t *testing.T) {
	f := newGatewayFixture(t, 1)

	categoryID := "cat-Phishing"
	f.reports.matches = []model.ScamReport{{
		ID:         "report-1",
		Content:    "verify account immediately",
		IsSafe:     false,
		Confidence: 85,
		Analysis:   "Credential phish.",
		CategoryID: &categoryID,
		CreatedAt:  time.Now().Add(-time.Hour),
	}}

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "verify account immediately"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, shared.SourceDatabase, result.Source)
	assert.Equal(t, "Phishing", result.Category)
}

func TestAnalyze_UncategorizedReportDefaultsToGeneral(t *testing.T) {
	f := newGatewayFixture(t, 1)

	f.reports.matches = []model.ScamReport{{
		ID:         "report-1",
		Content:    "limited time offer",
		IsSafe:     false,
		Confidence: 72,
		Analysis:   "Pressure tactic.",
		CreatedAt:  time.Now().Add(-time.Hour),
	}}

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "limited time offer"}, "1.2.3.4", "1.2.3.4")
	require.NoError(t, err)

	assert.Equal(t, "General", result.Category)
}

func TestAnalyze_ScorerCallsUseScorerBudget(t *testing.T) {
	f := newGatewayFixture(t, 1)

	_, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "quick cash loan"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	require.Len(t, f.limiter.endpoints, 1)
	assert.Equal(t, EndpointScorer, f.limiter.endpoints[0])
}

func TestAnalyze_SafeVerdictHasNoReportPrompt(t *testing.T) {
	f := newGatewayFixture(t, 1)
	f.scorer.verdict = &dto.Verdict{IsSafe: true, Confidence: 82, Threats: []string{}, Analysis: "Legitimate."}

	result, err := f.svc.Analyze(context.Background(), &dto.AnalyzeRequest{Content: "see you at the meeting tomorrow"}, "client-a", "1.2.3.4")
	require.NoError(t, err)

	assert.True(t, result.IsSafe)
	assert.Empty(t, result.ReportPrompt)
}
