package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

// WindowStore persists per-client rate-limit windows. The in-memory store
// serves single-instance deployments; the database store survives restarts
// and can be shared across instances.
type WindowStore interface {
	Get(identifier, endpointType string) (*model.RateLimit, error)
	Save(rateLimit *model.RateLimit) error
	Delete(identifier, endpointType string) error
}

type RateLimitConfig struct {
	EndpointType string
	MaxRequests  int
	WindowSize   time.Duration
	Description  string
	IsActive     bool
}

type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	store   WindowStore
	spacing *rate.Limiter

	retryAttempts int
	baseDelay     time.Duration

	now func() time.Time

	sqlSvc *PostgresService
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const (
	EndpointAnalyze      = "analyze"
	EndpointBatchAnalyze = "batch_analyze"
	EndpointSubmitReport = "submit_report"
	EndpointAPIGeneral   = "api_general"

	// EndpointScorer meters outbound scorer calls. Separate from the route
	// windows so one request never consumes two units of the same budget.
	EndpointScorer = "scorer"
)

// minRequestSpacing smooths bursts even when the caller is under quota.
const minRequestSpacing = 100 * time.Millisecond

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.retryAttempts = envInt("RATE_RETRY_ATTEMPTS", 3)
	svc.baseDelay = time.Duration(envInt("RATE_BASE_DELAY_MS", 1000)) * time.Millisecond
	svc.initDefaults()
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	if os.Getenv("RATE_LIMIT_BACKEND") == "database" {
		svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
		svc.store = &dbWindowStore{sql: svc.sqlSvc}
	} else {
		svc.store = NewMemoryWindowStore()
	}

	go svc.startCleanupJob()
	return nil
}

// NewRateLimitService builds a limiter outside the service container, with
// the given backing store.
func NewRateLimitService(store WindowStore) *RateLimitService {
	svc := &RateLimitService{store: store}
	svc.retryAttempts = 3
	svc.baseDelay = time.Second
	svc.initDefaults()
	return svc
}

func (svc *RateLimitService) initDefaults() {
	maxRequests := envInt("MAX_REQUESTS_PER_WINDOW", 100)
	window := time.Duration(envInt("RATE_WINDOW_MINUTES", 60)) * time.Minute

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		EndpointAnalyze: {
			EndpointType: EndpointAnalyze,
			MaxRequests:  maxRequests,
			WindowSize:   window,
			Description:  "Single content analysis rate limit",
			IsActive:     true,
		},
		EndpointBatchAnalyze: {
			EndpointType: EndpointBatchAnalyze,
			MaxRequests:  envInt("BATCH_MAX_REQUESTS_PER_WINDOW", 200),
			WindowSize:   window,
			Description:  "Batch analysis rate limit",
			IsActive:     true,
		},
		EndpointSubmitReport: {
			EndpointType: EndpointSubmitReport,
			MaxRequests:  50,
			WindowSize:   window,
			Description:  "Report submission rate limit",
			IsActive:     true,
		},
		EndpointAPIGeneral: {
			EndpointType: EndpointAPIGeneral,
			MaxRequests:  1000,
			WindowSize:   time.Hour,
			Description:  "General API rate limit per IP",
			IsActive:     true,
		},
		EndpointScorer: {
			EndpointType: EndpointScorer,
			MaxRequests:  envInt("SCORER_MAX_REQUESTS_PER_WINDOW", maxRequests),
			WindowSize:   window,
			Description:  "External scorer call budget",
			IsActive:     true,
		},
	}

	svc.spacing = rate.NewLimiter(rate.Every(minRequestSpacing), 1)
	svc.now = time.Now
}

func (svc *RateLimitService) config(endpointType string) (*RateLimitConfig, bool) {
	svc.mutex.RLock()
	defer svc.mutex.RUnlock()
	config, exists := svc.configs[endpointType]
	return config, exists
}

// ==================== CORE RATE LIMITING LOGIC ====================

// CheckAndConsume atomically admits or rejects one request for the client.
// An expired window resets to a fresh one with count 1; a rejection carries
// the delay until the window rolls over.
func (svc *RateLimitService) CheckAndConsume(identifier, endpointType string) (*dto.RateLimitInfo, error) {
	config, exists := svc.config(endpointType)
	if !exists || !config.IsActive {
		return &dto.RateLimitInfo{Allowed: true, Remaining: -1}, nil
	}

	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	now := svc.now()

	rateLimit, err := svc.store.Get(identifier, endpointType)
	if err != nil {
		return nil, err
	}

	// Expired (or first-seen) window transitions back to Active with count 1.
	if rateLimit == nil || now.After(rateLimit.WindowStart.Add(config.WindowSize)) {
		rateLimit = &model.RateLimit{
			Identifier:   identifier,
			EndpointType: endpointType,
			RequestCount: 1,
			WindowStart:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := svc.store.Save(rateLimit); err != nil {
			return nil, err
		}

		resetTime := now.Add(config.WindowSize)
		return &dto.RateLimitInfo{
			Allowed:   true,
			Remaining: config.MaxRequests - 1,
			ResetTime: &resetTime,
		}, nil
	}

	resetTime := rateLimit.WindowStart.Add(config.WindowSize)

	if rateLimit.RequestCount >= config.MaxRequests {
		retryAfter := resetTime.Sub(now)
		return &dto.RateLimitInfo{
			Allowed:      false,
			Remaining:    0,
			RetryAfterMs: retryAfter.Milliseconds(),
			ResetTime:    &resetTime,
		}, nil
	}

	rateLimit.RequestCount++
	rateLimit.UpdatedAt = now
	if err := svc.store.Save(rateLimit); err != nil {
		return nil, err
	}

	return &dto.RateLimitInfo{
		Allowed:   true,
		Remaining: config.MaxRequests - rateLimit.RequestCount,
		ResetTime: &resetTime,
	}, nil
}

// MakeRequest wraps fn with admission control and retry.
//
// Rate-limit rejections wait out the indicated delay when attempts remain,
// otherwise surface as a typed RateLimited error. Transient downstream
// failures back off exponentially (baseDelay * 2^attempt). Non-retryable
// errors propagate immediately. A consumed budget unit is never refunded,
// including on cancellation.
func (svc *RateLimitService) MakeRequest(ctx context.Context, identifier, endpointType string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= svc.retryAttempts; attempt++ {
		if svc.spacing != nil {
			if err := svc.spacing.Wait(ctx); err != nil {
				return err
			}
		}

		info, err := svc.CheckAndConsume(identifier, endpointType)
		if err != nil {
			// Store failure: admit rather than block users on system issues.
			log.WithError(err).Warn("Rate limit check failed, admitting request")
			info = &dto.RateLimitInfo{Allowed: true, Remaining: -1}
		}

		if !info.Allowed {
			retryAfter := time.Duration(info.RetryAfterMs) * time.Millisecond
			if attempt < svc.retryAttempts && retryAfter > 0 {
				if err := sleepContext(ctx, retryAfter); err != nil {
					return err
				}
				continue
			}
			return shared.NewRateLimitError(retryAfter)
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			if !shared.IsRetryable(err) {
				return err
			}
			if attempt < svc.retryAttempts {
				backoff := svc.baseDelay * (1 << attempt)
				if err := sleepContext(ctx, backoff); err != nil {
					return err
				}
				continue
			}
			return lastErr
		}

		return nil
	}

	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ==================== MIDDLEWARE ====================

// RateLimit gates a route on the client's window for the endpoint type.
func (svc *RateLimitService) RateLimit(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := ClientIdentifier(c)

		info, err := svc.CheckAndConsume(identifier, endpointType)
		if err != nil {
			log.Printf("Rate limit check error for %s (%s): %v", endpointType, identifier, err)
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !info.Allowed {
			return shared.ResponseJSON(c, http.StatusTooManyRequests,
				"Rate limit exceeded. Please try again later.",
				map[string]interface{}{"retry_after_ms": info.RetryAfterMs})
		}

		return c.Next()
	}
}

// IPRateLimit applies the general per-IP limit to every request.
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)

		info, err := svc.CheckAndConsume(ip, EndpointAPIGeneral)
		if err != nil {
			log.Printf("IP rate limit check error for %s: %v", ip, err)
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !info.Allowed {
			return shared.ResponseJSON(c, http.StatusTooManyRequests,
				"Too many requests. Please slow down.",
				map[string]interface{}{"retry_after_ms": info.RetryAfterMs})
		}

		return c.Next()
	}
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil {
		return
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}

	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}

	if info.RetryAfterMs > 0 {
		c.Set("Retry-After", strconv.FormatInt(info.RetryAfterMs/1000+1, 10))
	}
}

// ==================== ADMIN ====================

func (svc *RateLimitService) GetRateLimitStats() fiber.Handler {
	return func(c *fiber.Ctx) error {
		svc.mutex.RLock()
		configs := make(map[string]*RateLimitConfig, len(svc.configs))
		for k, v := range svc.configs {
			configs[k] = v
		}
		svc.mutex.RUnlock()

		stats := map[string]interface{}{
			"configs":   configs,
			"timestamp": time.Now(),
		}

		return shared.ResponseJSON(c, http.StatusOK, "Rate limit statistics", stats)
	}
}

func (svc *RateLimitService) UpdateConfig() fiber.Handler {
	return func(c *fiber.Ctx) error {
		endpointType := c.Params("endpointType")

		var req struct {
			MaxRequests int    `json:"max_requests"`
			WindowSize  string `json:"window_size"`
			IsActive    *bool  `json:"is_active"`
		}

		if err := c.BodyParser(&req); err != nil {
			return shared.NewBadRequestError(err, "Invalid request body")
		}

		svc.mutex.Lock()
		config, exists := svc.configs[endpointType]
		if !exists {
			svc.mutex.Unlock()
			return shared.NewNotFoundError("Endpoint type not found")
		}

		if req.MaxRequests > 0 {
			config.MaxRequests = req.MaxRequests
		}
		if req.WindowSize != "" {
			if duration, err := time.ParseDuration(req.WindowSize); err == nil {
				config.WindowSize = duration
			}
		}
		if req.IsActive != nil {
			config.IsActive = *req.IsActive
		}
		svc.mutex.Unlock()

		return shared.ResponseJSON(c, http.StatusOK, "Configuration updated successfully", config)
	}
}

func (svc *RateLimitService) RemoveRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")
		endpointType := c.Params("endpointType")

		if identifier == "" || endpointType == "" {
			return shared.NewBadRequestError(nil, "Missing identifier or endpoint type")
		}

		if err := svc.store.Delete(identifier, endpointType); err != nil {
			return shared.ResponseJSON(c, http.StatusInternalServerError, "Failed to remove rate limit", err.Error())
		}

		message := fmt.Sprintf("Rate limit removed for %s/%s", identifier, endpointType)
		return shared.ResponseJSON(c, http.StatusOK, message, nil)
	}
}

func (svc *RateLimitService) ResetRateLimit(identifier, endpointType string) error {
	return svc.store.Delete(identifier, endpointType)
}

// ==================== BACKGROUND JOBS ====================

func (svc *RateLimitService) startCleanupJob() {
	if svc.sqlSvc == nil {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		if err := svc.sqlSvc.CleanupOldRateLimits(time.Now().Add(-24 * time.Hour)); err != nil {
			log.Printf("Rate limit cleanup error: %v", err)
		}
	}
}

// ==================== CLIENT IDENTITY ====================

// ClientIdentifier resolves the rate-limit identity for a request: the
// authenticated user id when present, otherwise the client IP.
func ClientIdentifier(c *fiber.Ctx) string {
	if userID := c.Locals(shared.UserID); userID != nil {
		if userIDStr, ok := userID.(string); ok && userIDStr != "" {
			return userIDStr
		}
	}
	return getClientIP(c)
}

func getClientIP(c *fiber.Ctx) string {
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
