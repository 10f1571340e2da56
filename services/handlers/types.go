package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

type AnalysisServiceInterface interface {
	Analyze(ctx context.Context, req *dto.AnalyzeRequest, identifier, clientIP string) (*dto.AnalysisResult, error)
}

type BatchServiceInterface interface {
	ProcessBatch(ctx context.Context, req *dto.BatchAnalyzeRequest, identifier, clientIP string) (*dto.BatchAnalyzeResponse, error)
}

type ReportServiceInterface interface {
	SubmitReport(req dto.SubmitReportRequest, userID, clientIP string) (*dto.SubmitReportResponse, error)
	GetTrending(ctx context.Context) (*dto.TrendingResponse, error)
}

type CacheManagerInterface interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
	Cleanup(ctx context.Context) (int64, error)
}

// requestIdentity resolves the caller: authenticated user id when present,
// empty otherwise, plus the client IP.
func requestIdentity(c *fiber.Ctx) (userID, clientIP string) {
	if v := c.Locals(shared.UserID); v != nil {
		if s, ok := v.(string); ok {
			userID = s
		}
	}
	return userID, c.IP()
}

// rateLimitIdentifier is the identity requests are throttled under.
func rateLimitIdentifier(c *fiber.Ctx) string {
	userID, clientIP := requestIdentity(c)
	if userID != "" {
		return userID
	}
	return clientIP
}
