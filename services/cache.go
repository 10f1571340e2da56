package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/model"
)

// CacheStore is the durable tier behind the analysis cache. Get returns
// (nil, nil) on a physical miss; TTL is the service's concern, not the store's.
type CacheStore interface {
	Get(ctx context.Context, fingerprint string) (*model.AnalysisCacheEntry, error)
	Put(ctx context.Context, entry *model.AnalysisCacheEntry) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// FrequencyCounter tracks how many times a fingerprint has been submitted
// within the cache window. Separate from hit/miss bookkeeping.
type FrequencyCounter interface {
	Increment(ctx context.Context, fingerprint string) (int64, error)
}

type AnalysisCacheService struct {
	appContext.DefaultService

	store   CacheStore
	counter FrequencyCounter

	ttl          time.Duration
	minFrequency int64

	now func() time.Time

	sqlSvc   *PostgresService
	redisSvc *RedisService
}

const ANALYSIS_CACHE_SVC = "analysis_cache_svc"

func (svc AnalysisCacheService) Id() string {
	return ANALYSIS_CACHE_SVC
}

func (svc *AnalysisCacheService) Configure(ctx *appContext.Context) error {
	svc.ttl = time.Duration(envInt("CACHE_TTL_HOURS", 24)) * time.Hour
	svc.minFrequency = int64(envInt("MIN_CACHE_FREQUENCY", 1))
	svc.now = time.Now
	return svc.DefaultService.Configure(ctx)
}

func (svc *AnalysisCacheService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.store = &dbCacheStore{sql: svc.sqlSvc}

	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok && redisSvc != nil {
		svc.redisSvc = redisSvc
		svc.counter = &redisFrequencyCounter{redis: redisSvc, window: svc.ttl}
	} else {
		svc.counter = NewMemoryFrequencyCounter()
	}

	go svc.startSweepJob()
	return nil
}

// NewAnalysisCacheService builds a cache outside the service container.
func NewAnalysisCacheService(store CacheStore, counter FrequencyCounter, ttl time.Duration, minFrequency int64) *AnalysisCacheService {
	return &AnalysisCacheService{
		store:        store,
		counter:      counter,
		ttl:          ttl,
		minFrequency: minFrequency,
		now:          time.Now,
	}
}

func (svc *AnalysisCacheService) TTL() time.Duration {
	return svc.ttl
}

// Get returns the cached verdict and its age. Entries past TTL are misses
// even while physically stored (lazy expiry).
func (svc *AnalysisCacheService) Get(ctx context.Context, fingerprint string) (*dto.Verdict, time.Duration, bool, error) {
	entry, err := svc.hotGet(ctx, fingerprint)
	if err != nil {
		return nil, 0, false, err
	}
	if entry == nil {
		return nil, 0, false, nil
	}

	age := svc.now().Sub(entry.CreatedAt)
	if age > svc.ttl {
		return nil, 0, false, nil
	}

	var verdict dto.Verdict
	if err := json.Unmarshal(entry.Result, &verdict); err != nil {
		// Unreadable entry is equivalent to a miss; a fresh write will replace it.
		log.WithError(err).WithField("fingerprint", fingerprint).Warn("Discarding unreadable cache entry")
		return nil, 0, false, nil
	}

	return &verdict, age, true, nil
}

// Put upserts a verdict under the fingerprint, last-write-wins. The caller
// enforces the frequency gate via Observe/ShouldCache.
func (svc *AnalysisCacheService) Put(ctx context.Context, fingerprint string, verdict *dto.Verdict) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	entry := &model.AnalysisCacheEntry{
		ContentHash: fingerprint,
		Result:      payload,
		CreatedAt:   svc.now(),
	}

	if err := svc.store.Put(ctx, entry); err != nil {
		return err
	}

	svc.hotSet(ctx, entry)
	return nil
}

// Observe increments and returns the submission frequency for a fingerprint.
func (svc *AnalysisCacheService) Observe(ctx context.Context, fingerprint string) int64 {
	count, err := svc.counter.Increment(ctx, fingerprint)
	if err != nil {
		log.WithError(err).Warn("Frequency counter unavailable")
		return 0
	}
	return count
}

// ShouldCache reports whether content seen count times qualifies for caching.
// The default gate of 1 caches every analyzed verdict; deployments flooded
// with one-off submissions can raise MIN_CACHE_FREQUENCY to keep them out.
func (svc *AnalysisCacheService) ShouldCache(count int64) bool {
	return count >= svc.minFrequency
}

func (svc *AnalysisCacheService) Stats(ctx context.Context) (map[string]interface{}, error) {
	count, err := svc.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"entries":       count,
		"ttl_hours":     svc.ttl.Hours(),
		"min_frequency": svc.minFrequency,
	}, nil
}

// Cleanup drops physically-expired entries. Correctness never depends on
// this; it is storage hygiene only.
func (svc *AnalysisCacheService) Cleanup(ctx context.Context) (int64, error) {
	return svc.store.DeleteExpired(ctx, svc.now().Add(-svc.ttl))
}

func (svc *AnalysisCacheService) startSweepJob() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := svc.Cleanup(context.Background())
		if err != nil {
			log.Printf("Cache sweep error: %v", err)
			continue
		}
		if removed > 0 {
			log.Printf("Cache sweep removed %d expired entries", removed)
		}
	}
}

// ==================== HOT TIER ====================

func cacheKey(fingerprint string) string {
	return "analysis:" + fingerprint
}

func (svc *AnalysisCacheService) hotGet(ctx context.Context, fingerprint string) (*model.AnalysisCacheEntry, error) {
	if svc.redisSvc != nil {
		var entry model.AnalysisCacheEntry
		if err := svc.redisSvc.GetJSON(ctx, cacheKey(fingerprint), &entry); err == nil && entry.ContentHash != "" {
			return &entry, nil
		}
	}

	entry, err := svc.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		svc.hotSet(ctx, entry)
	}
	return entry, nil
}

func (svc *AnalysisCacheService) hotSet(ctx context.Context, entry *model.AnalysisCacheEntry) {
	if svc.redisSvc == nil {
		return
	}
	if err := svc.redisSvc.Set(ctx, cacheKey(entry.ContentHash), entry, svc.ttl); err != nil {
		log.WithError(err).Debug("Failed to populate hot cache tier")
	}
}

// ==================== STORES ====================

type dbCacheStore struct {
	sql *PostgresService
}

func (s *dbCacheStore) Get(_ context.Context, fingerprint string) (*model.AnalysisCacheEntry, error) {
	return s.sql.GetCacheEntry(fingerprint)
}

func (s *dbCacheStore) Put(_ context.Context, entry *model.AnalysisCacheEntry) error {
	return s.sql.UpsertCacheEntry(entry)
}

func (s *dbCacheStore) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	return s.sql.DeleteExpiredCacheEntries(olderThan)
}

func (s *dbCacheStore) Count(_ context.Context) (int64, error) {
	return s.sql.CountCacheEntries()
}

// memoryCacheStore backs the cache in tests and single-process dev setups.
type memoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]*model.AnalysisCacheEntry
}

func NewMemoryCacheStore() CacheStore {
	return &memoryCacheStore{entries: make(map[string]*model.AnalysisCacheEntry)}
}

func (s *memoryCacheStore) Get(_ context.Context, fingerprint string) (*model.AnalysisCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	copied := *entry
	return &copied, nil
}

func (s *memoryCacheStore) Put(_ context.Context, entry *model.AnalysisCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.ContentHash] = &copied
	return nil
}

func (s *memoryCacheStore) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for hash, entry := range s.entries {
		if entry.CreatedAt.Before(olderThan) {
			delete(s.entries, hash)
			removed++
		}
	}
	return removed, nil
}

func (s *memoryCacheStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

// ==================== FREQUENCY COUNTERS ====================

type redisFrequencyCounter struct {
	redis  *RedisService
	window time.Duration
}

func (c *redisFrequencyCounter) Increment(ctx context.Context, fingerprint string) (int64, error) {
	key := "freq:" + fingerprint
	count, err := c.redis.Increment(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = c.redis.Expire(ctx, key, c.window)
	}
	return count, nil
}

type memoryFrequencyCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryFrequencyCounter() FrequencyCounter {
	return &memoryFrequencyCounter{counts: make(map[string]int64)}
}

func (c *memoryFrequencyCounter) Increment(_ context.Context, fingerprint string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[fingerprint]++
	return c.counts[fingerprint], nil
}
