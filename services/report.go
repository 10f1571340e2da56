package services

import (
	"context"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

// ReportService handles community-submitted scam reports and the trending
// view built from recent unsafe analyses.
type ReportService struct {
	appContext.DefaultService

	sqlSvc   *PostgresService
	redisSvc *RedisService
	geoSvc   *GeolocationService

	trendingWindow time.Duration
	trendingTTL    time.Duration
	trendingLimit  int
}

const REPORT_SVC = "report_svc"

const trendingCacheKey = "trending:categories"

func (svc ReportService) Id() string {
	return REPORT_SVC
}

func (svc *ReportService) Configure(ctx *appContext.Context) error {
	svc.trendingWindow = time.Duration(envInt("TRENDING_WINDOW_DAYS", 7)) * 24 * time.Hour
	svc.trendingTTL = time.Duration(envInt("TRENDING_CACHE_TTL_MINUTES", 5)) * time.Minute
	svc.trendingLimit = envInt("TRENDING_LIMIT", 10)
	return svc.DefaultService.Configure(ctx)
}

func (svc *ReportService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)

	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok {
		svc.redisSvc = redisSvc
	}
	if geoSvc, ok := svc.Service(GEOLOCATION_SVC).(*GeolocationService); ok {
		svc.geoSvc = geoSvc
	}

	return nil
}

// SubmitReport stores a user-submitted scam for review. Anonymous
// submissions are accepted; userID is attached when the caller presented a
// valid token.
func (svc *ReportService) SubmitReport(req dto.SubmitReportRequest, userID, clientIP string) (*dto.SubmitReportResponse, error) {
	category, err := svc.sqlSvc.EnsureCategory(req.Category)
	if err != nil {
		return nil, err
	}

	location := req.Location
	if location == "" && svc.geoSvc != nil && clientIP != "" {
		if resolved, err := svc.geoSvc.GetLocationByIP(clientIP); err == nil {
			location = resolved
		}
	}

	submission := &model.UserSubmittedScam{
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  category.ID,
		Location:    location,
		ContactInfo: req.Contact,
		Status:      shared.StatusPending,
	}
	if userID != "" {
		submission.UserID = &userID
	}

	if err := svc.sqlSvc.CreateUserSubmission(submission); err != nil {
		return nil, err
	}

	return &dto.SubmitReportResponse{
		ReportID: submission.ID,
		Message:  "Report submitted successfully. Thank you for helping keep the community safe.",
	}, nil
}

// GetTrending groups recent unsafe reports by category. The view is cheap
// to serve stale, so it sits behind a short Redis TTL.
func (svc *ReportService) GetTrending(ctx context.Context) (*dto.TrendingResponse, error) {
	if svc.redisSvc != nil {
		var cached dto.TrendingResponse
		if err := svc.redisSvc.GetJSON(ctx, trendingCacheKey, &cached); err == nil && len(cached.Scams) > 0 {
			return &cached, nil
		}
	}

	rows, err := svc.sqlSvc.GetTrendingScams(time.Now().Add(-svc.trendingWindow), svc.trendingLimit)
	if err != nil {
		return nil, err
	}

	scams := make([]dto.TrendingScam, 0, len(rows))
	for _, row := range rows {
		name := "Uncategorized"
		if row.CategoryID != "" {
			if category, err := svc.sqlSvc.GetCategory(row.CategoryID); err == nil {
				name = category.Name
			}
		}
		scams = append(scams, dto.TrendingScam{
			Category:    name,
			ReportCount: row.ReportCount,
			LastSeen:    row.LastSeen,
		})
	}

	response := &dto.TrendingResponse{
		Scams:       scams,
		GeneratedAt: time.Now(),
	}

	if svc.redisSvc != nil {
		if err := svc.redisSvc.Set(ctx, trendingCacheKey, response, svc.trendingTTL); err != nil {
			log.WithError(err).Debug("Failed to cache trending view")
		}
	}

	return response, nil
}
