package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/services/handlers"
	"github.com/scamshield-ke/shield_api/shared"
)

type HttpService struct {
	appContext.DefaultService

	jwtSvc        *JWTService
	rateLimitSvc  *RateLimitService
	analysisSvc   *AnalysisService
	batchSvc      *BatchService
	reportSvc     *ReportService
	cacheSvc      *AnalysisCacheService
	monitoringSvc *MonitoringService

	analysisHandler *handlers.AnalysisHandler
	reportHandler   *handlers.ReportHandler
	adminHandler    *handlers.AdminHandler

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	svc.port = envInt("HTTP_PORT", 8000)
	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.analysisSvc = svc.Service(ANALYSIS_SVC).(*AnalysisService)
	svc.batchSvc = svc.Service(BATCH_SVC).(*BatchService)
	svc.reportSvc = svc.Service(REPORT_SVC).(*ReportService)
	svc.cacheSvc = svc.Service(ANALYSIS_CACHE_SVC).(*AnalysisCacheService)

	if monitoringSvc, ok := svc.Service(MONITORING_SVC).(*MonitoringService); ok {
		svc.monitoringSvc = monitoringSvc
	}

	svc.analysisHandler = handlers.NewAnalysisHandler(svc.analysisSvc, svc.batchSvc)
	svc.reportHandler = handlers.NewReportHandler(svc.reportSvc)
	svc.adminHandler = handlers.NewAdminHandler(svc.cacheSvc)

	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if svc.monitoringSvc != nil {
		app.Use(MonitoringMiddleware(svc.monitoringSvc))
	}

	app.Use(svc.jwtSvc.OptionalAuth())
	app.Use(svc.rateLimitSvc.IPRateLimit())

	app.Get("/ping", svc.ping)

	v1 := app.Group("/api/v1")
	v1.Get("/ping", svc.ping)

	v1.Post("/analyze", svc.rateLimitSvc.RateLimit(EndpointAnalyze), svc.analysisHandler.Analyze)
	v1.Post("/analyze/batch", svc.rateLimitSvc.RateLimit(EndpointBatchAnalyze), svc.analysisHandler.AnalyzeBatch)

	v1.Post("/reports", svc.rateLimitSvc.RateLimit(EndpointSubmitReport), svc.reportHandler.SubmitReport)
	v1.Get("/reports/trending", svc.reportHandler.GetTrending)

	admin := v1.Group("/admin", svc.adminAuth)
	admin.Get("/rate-limits/stats", svc.rateLimitSvc.GetRateLimitStats())
	admin.Put("/rate-limits/:endpointType", svc.rateLimitSvc.UpdateConfig())
	admin.Delete("/rate-limits/:identifier/:endpointType", svc.rateLimitSvc.RemoveRateLimit())
	admin.Get("/cache/stats", svc.adminHandler.GetCacheStats)
	admin.Post("/cache/cleanup", svc.adminHandler.CleanupCache)

	svc.server = app

	log.Printf("HTTP service listening on :%v", svc.port)
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// adminAuth guards the admin surface with a shared token. Deployments
// without ADMIN_TOKEN keep the surface closed.
func (svc *HttpService) adminAuth(c *fiber.Ctx) error {
	token := os.Getenv("ADMIN_TOKEN")
	if token == "" || c.Get("X-Admin-Token") != token {
		return shared.ResponseJSON(c, http.StatusForbidden, "Forbidden", nil)
	}
	return c.Next()
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Accept  json
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		if appErr.RetryAfter > 0 {
			c.Set("Retry-After", fmt.Sprintf("%d", int64(appErr.RetryAfter.Seconds())+1))
		}
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithError(err).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
