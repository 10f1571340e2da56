package services

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scamshield-ke/shield_api/model"
	"github.com/scamshield-ke/shield_api/shared"
)

type PostgresService struct {
	context.DefaultService
	db *gorm.DB

	database string
}

const POSTGRES_SVC = "postgres_svc"

func (ds PostgresService) Id() string {
	return POSTGRES_SVC
}

func (ds PostgresService) Db() *gorm.DB {
	return ds.db
}

func (ds *PostgresService) Configure(ctx *context.Context) error {
	ds.database = os.Getenv("DATABASE_URL")
	if ds.database == "" {
		host := os.Getenv("DB_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("DB_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("DB_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("DB_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("DB_NAME")
		if dbname == "" {
			dbname = "shield_api"
		}
		sslmode := os.Getenv("DB_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}

		ds.database = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			host, user, password, dbname, port, sslmode)
	}

	return ds.DefaultService.Configure(ctx)
}

func (ds *PostgresService) Start() (err error) {
	maxRetries := 10
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ds.db, err = gorm.Open(postgres.Open(ds.database), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Error),
		})
		if err == nil {
			break
		}

		log.Printf("Database connection failed (attempt %d/%d): %v", attempt, maxRetries, err)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	models := []interface{}{
		&model.ScamReport{},
		&model.Category{},
		&model.UserSubmittedScam{},
		&model.AnalysisCacheEntry{},
		&model.RateLimit{},
		&model.PerformanceMetric{},
	}

	if err = ds.db.AutoMigrate(models...); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		return err
	}

	log.Println("Database connected and migrated successfully")
	return nil
}

func (ds *PostgresService) Shutdown() {
}

// ==================== SCAM REPORTS ====================

func (ds *PostgresService) CreateScamReport(report *model.ScamReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	if err := ds.db.Create(report).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

// SearchReports finds prior stored reports matching the content, ranked by
// confidence then recency. This is the community-knowledge path, distinct
// from the fingerprint cache.
func (ds *PostgresService) SearchReports(content string, limit int) ([]model.ScamReport, error) {
	var reports []model.ScamReport

	normalized := strings.TrimSpace(content)
	if limit <= 0 {
		limit = 5
	}

	err := ds.db.Model(&model.ScamReport{}).
		Where("content ILIKE ?", normalized).
		Or("content ILIKE ?", "%"+normalized+"%").
		Order("confidence DESC, created_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return reports, nil
}

func (ds *PostgresService) CountSimilarReports(content string) (int64, error) {
	var count int64
	err := ds.db.Model(&model.ScamReport{}).
		Where("content ILIKE ?", "%"+strings.TrimSpace(content)+"%").
		Count(&count).Error
	if err != nil {
		return 0, ds.HandleError(err)
	}
	return count, nil
}

func (ds *PostgresService) GetTrendingScams(since time.Time, limit int) ([]struct {
	CategoryID  string
	ReportCount int64
	LastSeen    time.Time
}, error) {
	var rows []struct {
		CategoryID  string
		ReportCount int64
		LastSeen    time.Time
	}

	err := ds.db.Model(&model.ScamReport{}).
		Select("category_id, COUNT(*) as report_count, MAX(created_at) as last_seen").
		Where("is_safe = ? AND created_at >= ?", false, since).
		Group("category_id").
		Order("report_count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, ds.HandleError(err)
	}
	return rows, nil
}

// ==================== CATEGORIES ====================

func (ds *PostgresService) GetCategoryByName(name string) (*model.Category, error) {
	var category model.Category
	if err := ds.db.Where("name = ?", name).First(&category).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &category, nil
}

func (ds *PostgresService) GetCategory(id string) (*model.Category, error) {
	var category model.Category
	if err := ds.db.Where("id = ?", id).First(&category).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return &category, nil
}

func (ds *PostgresService) EnsureCategory(name string) (*model.Category, error) {
	category, err := ds.GetCategoryByName(name)
	if err == nil {
		return category, nil
	}

	category = &model.Category{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := ds.db.Create(category).Error; err != nil {
		return nil, ds.HandleError(err)
	}
	return category, nil
}

// ==================== USER SUBMISSIONS ====================

func (ds *PostgresService) CreateUserSubmission(submission *model.UserSubmittedScam) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}
	if submission.Status == "" {
		submission.Status = "pending"
	}
	if err := ds.db.Create(submission).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

// ==================== ANALYSIS CACHE ====================

func (ds *PostgresService) GetCacheEntry(contentHash string) (*model.AnalysisCacheEntry, error) {
	var entry model.AnalysisCacheEntry
	if err := ds.db.Where("content_hash = ?", contentHash).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ds.HandleError(err)
	}
	return &entry, nil
}

func (ds *PostgresService) UpsertCacheEntry(entry *model.AnalysisCacheEntry) error {
	err := ds.db.Save(entry).Error
	if err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) DeleteExpiredCacheEntries(olderThan time.Time) (int64, error) {
	result := ds.db.Where("created_at < ?", olderThan).Delete(&model.AnalysisCacheEntry{})
	if result.Error != nil {
		return 0, ds.HandleError(result.Error)
	}
	return result.RowsAffected, nil
}

func (ds *PostgresService) CountCacheEntries() (int64, error) {
	var count int64
	if err := ds.db.Model(&model.AnalysisCacheEntry{}).Count(&count).Error; err != nil {
		return 0, ds.HandleError(err)
	}
	return count, nil
}

// ==================== RATE LIMITS ====================

func (ds *PostgresService) GetRateLimit(identifier, endpointType string) (*model.RateLimit, error) {
	var rateLimit model.RateLimit
	err := ds.db.Where("identifier = ? AND endpoint_type = ?", identifier, endpointType).
		First(&rateLimit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, ds.HandleError(err)
	}
	return &rateLimit, nil
}

func (ds *PostgresService) SaveRateLimit(rateLimit *model.RateLimit) error {
	if rateLimit.ID == "" {
		rateLimit.ID = uuid.NewString()
	}
	if err := ds.db.Save(rateLimit).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) DeleteRateLimit(identifier, endpointType string) error {
	err := ds.db.Where("identifier = ? AND endpoint_type = ?", identifier, endpointType).
		Delete(&model.RateLimit{}).Error
	if err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) CleanupOldRateLimits(olderThan time.Time) error {
	err := ds.db.Where("window_start < ?", olderThan).
		Delete(&model.RateLimit{}).Error
	if err != nil {
		return ds.HandleError(err)
	}
	return nil
}

// ==================== METRICS ====================

func (ds *PostgresService) InsertMetric(metric *model.PerformanceMetric) error {
	if metric.RecordedAt.IsZero() {
		metric.RecordedAt = time.Now()
	}
	if err := ds.db.Create(metric).Error; err != nil {
		return ds.HandleError(err)
	}
	return nil
}

func (ds *PostgresService) SumMetric(name string, since time.Time) (float64, error) {
	var total float64
	err := ds.db.Model(&model.PerformanceMetric{}).
		Select("COALESCE(SUM(value), 0)").
		Where("name = ? AND recorded_at >= ?", name, since).
		Scan(&total).Error
	if err != nil {
		return 0, ds.HandleError(err)
	}
	return total, nil
}

func (ds *PostgresService) AvgMetric(name string, since time.Time) (float64, error) {
	var avg float64
	err := ds.db.Model(&model.PerformanceMetric{}).
		Select("COALESCE(AVG(value), 0)").
		Where("name = ? AND recorded_at >= ?", name, since).
		Scan(&avg).Error
	if err != nil {
		return 0, ds.HandleError(err)
	}
	return avg, nil
}

// ==================== ERROR MAPPING ====================

func (ds *PostgresService) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var statusCode int
	var errorType string

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		statusCode = http.StatusNotFound
		errorType = "NOT_FOUND"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		statusCode = http.StatusConflict
		errorType = "CONFLICT"
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		statusCode = http.StatusBadRequest
		errorType = "FOREIGN_KEY_VIOLATION"
	case errors.Is(err, gorm.ErrInvalidTransaction):
		statusCode = http.StatusInternalServerError
		errorType = "TRANSACTION_ERROR"
	default:
		if strings.Contains(err.Error(), "duplicate key value") {
			statusCode = http.StatusConflict
			errorType = "UNIQUE_CONSTRAINT"
		} else {
			statusCode = http.StatusInternalServerError
			errorType = "INTERNAL_ERROR"
		}
	}

	logEntry := log.WithFields(log.Fields{
		"status_code": statusCode,
		"error_type":  errorType,
		"error":       err.Error(),
	})

	if statusCode >= 500 {
		logEntry.Error("Database error occurred")
	} else {
		logEntry.Warn("Database operation failed")
	}

	if statusCode == http.StatusNotFound {
		return shared.NewNotFoundError("Record not found")
	}

	return fmt.Errorf("%s: %w", errorType, err)
}
