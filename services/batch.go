package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

// contentAnalyzer lets batch tests substitute the gateway.
type contentAnalyzer interface {
	Analyze(ctx context.Context, req *dto.AnalyzeRequest, identifier, clientIP string) (*dto.AnalysisResult, error)
}

// evidenceFetcher resolves file-type items to their stored text.
type evidenceFetcher interface {
	FetchText(ctx context.Context, key string) (string, error)
}

// BatchService fans a batch of items across the analysis gateway in
// fixed-size concurrency groups. Item failures are isolated; the batch
// always settles every item to a terminal status, in input order.
type BatchService struct {
	appContext.DefaultService

	analyzer contentAnalyzer
	storage  evidenceFetcher
	metrics  *MetricsService

	maxBatchSize     int
	maxContentLength int
	groupSize        int
	groupDelay       time.Duration
}

const BATCH_SVC = "batch_svc"

func (svc BatchService) Id() string {
	return BATCH_SVC
}

func (svc *BatchService) Configure(ctx *appContext.Context) error {
	svc.maxBatchSize = envInt("MAX_BATCH_SIZE", 20)
	svc.maxContentLength = envInt("MAX_CONTENT_LENGTH", 10000)
	svc.groupSize = envInt("CONCURRENCY_LIMIT", 5)
	svc.groupDelay = time.Duration(envInt("BATCH_GROUP_DELAY_MS", 500)) * time.Millisecond
	return svc.DefaultService.Configure(ctx)
}

func (svc *BatchService) Start() error {
	svc.analyzer = svc.Service(ANALYSIS_SVC).(*AnalysisService)
	svc.metrics = svc.Service(METRICS_SVC).(*MetricsService)

	if storageSvc, ok := svc.Service(STORAGE_SVC).(*StorageService); ok {
		svc.storage = storageSvc
	}

	return nil
}

// NewBatchService builds a coordinator outside the service container.
func NewBatchService(analyzer contentAnalyzer, storage evidenceFetcher) *BatchService {
	return &BatchService{
		analyzer:         analyzer,
		storage:          storage,
		maxBatchSize:     20,
		maxContentLength: 10000,
		groupSize:        5,
		groupDelay:       0,
	}
}

// batchRun tracks per-item progress for one batch. Snapshot is safe to call
// while the run is in flight.
type batchRun struct {
	mu       sync.RWMutex
	statuses []dto.BatchItemStatus
}

func newBatchRun(items []dto.BatchRequestItem) *batchRun {
	statuses := make([]dto.BatchItemStatus, len(items))
	for i, item := range items {
		itemType := item.Type
		if itemType == "" {
			itemType = shared.ItemTypeText
		}
		statuses[i] = dto.BatchItemStatus{
			ID:     uuid.NewString(),
			Type:   itemType,
			Status: shared.StatusPending,
		}
	}
	return &batchRun{statuses: statuses}
}

func (r *batchRun) setProgress(i int, status string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[i].Status = status
	r.statuses[i].Progress = progress
}

func (r *batchRun) complete(i int, result *dto.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[i].Status = shared.StatusCompleted
	r.statuses[i].Progress = 100
	r.statuses[i].Result = result
}

func (r *batchRun) fail(i int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[i].Status = shared.StatusFailed
	r.statuses[i].Error = message
}

// failPending marks every non-terminal item failed. Used on cancellation.
func (r *batchRun) failPending(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.statuses {
		switch r.statuses[i].Status {
		case shared.StatusCompleted, shared.StatusFailed:
		default:
			r.statuses[i].Status = shared.StatusFailed
			r.statuses[i].Error = message
		}
	}
}

func (r *batchRun) Snapshot() []dto.BatchItemStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]dto.BatchItemStatus, len(r.statuses))
	copy(snapshot, r.statuses)
	return snapshot
}

// ProcessBatch settles every item and returns statuses in input order.
// Cancellation fails the remaining items rather than erroring the call;
// whatever budget the completed items consumed stays consumed.
func (svc *BatchService) ProcessBatch(ctx context.Context, req *dto.BatchAnalyzeRequest, identifier, clientIP string) (*dto.BatchAnalyzeResponse, error) {
	items := req.Batch

	if len(items) == 0 {
		return nil, shared.NewValidationError(nil, "Batch must contain at least one item")
	}
	if len(items) > svc.maxBatchSize {
		return nil, shared.NewValidationError(nil, fmt.Sprintf("Batch exceeds the maximum of %d items", svc.maxBatchSize))
	}
	for i, item := range items {
		if item.Content == "" {
			return nil, shared.NewValidationError(nil, fmt.Sprintf("Item %d has empty content", i))
		}
		if item.Type != shared.ItemTypeFile && len(item.Content) > svc.maxContentLength {
			return nil, shared.NewValidationError(nil, fmt.Sprintf("Item %d exceeds the maximum content length", i))
		}
	}

	run := newBatchRun(items)
	svc.run(ctx, run, items, identifier, clientIP)

	return &dto.BatchAnalyzeResponse{Results: run.Snapshot()}, nil
}

func (svc *BatchService) run(ctx context.Context, run *batchRun, items []dto.BatchRequestItem, identifier, clientIP string) {
	for start := 0; start < len(items); start += svc.groupSize {
		if ctx.Err() != nil {
			run.failPending("cancelled")
			return
		}

		end := start + svc.groupSize
		if end > len(items) {
			end = len(items)
		}

		g := new(errgroup.Group)
		g.SetLimit(svc.groupSize)

		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				svc.processItem(ctx, run, i, items[i], identifier, clientIP)
				return nil
			})
		}
		_ = g.Wait()

		// Pause between groups to keep sustained batches from starving
		// interactive requests.
		if end < len(items) && svc.groupDelay > 0 {
			if err := sleepContext(ctx, svc.groupDelay); err != nil {
				run.failPending("cancelled")
				return
			}
		}
	}
}

func (svc *BatchService) processItem(ctx context.Context, run *batchRun, i int, item dto.BatchRequestItem, identifier, clientIP string) {
	if ctx.Err() != nil {
		run.fail(i, "cancelled")
		svc.observeItem(shared.StatusFailed)
		return
	}

	content := item.Content

	if item.Type == shared.ItemTypeFile {
		run.setProgress(i, shared.StatusUploading, 10)

		if svc.storage == nil {
			run.fail(i, "evidence storage is not configured")
			svc.observeItem(shared.StatusFailed)
			return
		}

		text, err := svc.storage.FetchText(ctx, item.Content)
		if err != nil {
			log.WithError(err).WithField("key", item.Content).Warn("Failed to fetch batch evidence")
			run.fail(i, "failed to fetch stored evidence")
			svc.observeItem(shared.StatusFailed)
			return
		}
		content = text
	}

	run.setProgress(i, shared.StatusAnalyzing, 50)

	result, err := svc.analyzer.Analyze(ctx, &dto.AnalyzeRequest{Content: content, Category: item.Category}, identifier, clientIP)
	if err != nil {
		message := "analysis failed"
		if ctx.Err() != nil {
			message = "cancelled"
		} else if appErr, ok := shared.GetAppError(err); ok {
			message = appErr.Message
		}
		run.fail(i, message)
		svc.observeItem(shared.StatusFailed)
		return
	}

	run.complete(i, result)
	svc.observeItem(shared.StatusCompleted)
}

func (svc *BatchService) observeItem(status string) {
	if svc.metrics != nil {
		svc.metrics.ObserveBatchItem(status)
	}
}
