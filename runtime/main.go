package main

import (
	"os"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/scamshield-ke/shield_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal().Err(err).Msg("Error loading .env file")
	}

	ctx, err := context.NewCtx(
		&services.PostgresService{},
		&services.RedisService{},
		&services.JWTService{},
		&services.GeolocationService{},
		&services.StorageService{},

		&services.MetricsService{},
		&services.RateLimitService{},
		&services.AnalysisCacheService{},
		&services.HeuristicService{},
		&services.ScorerService{},
		&services.AnalysisService{},
		&services.BatchService{},
		&services.ReportService{},

		&services.MonitoringService{},
		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err)
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err)
		return
	}
}
