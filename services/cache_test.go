package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

func newTestCache(ttl time.Duration, minFrequency int64) *AnalysisCacheService {
	return NewAnalysisCacheService(NewMemoryCacheStore(), NewMemoryFrequencyCounter(), ttl, minFrequency)
}

func testVerdict() *dto.Verdict {
	return &dto.Verdict{
		IsSafe:     false,
		Confidence: 90,
		Category:   "SMS",
		Threats:    []string{"Phishing"},
		Analysis:   "Credential harvesting attempt.",
		Timestamp:  time.Now(),
	}
}

func TestCache_RoundTrip(t *testing.T) {
	svc := newTestCache(24*time.Hour, 1)
	ctx := context.Background()

	fp := shared.Fingerprint("urgent: verify your account")
	require.NoError(t, svc.Put(ctx, fp, testVerdict()))

	verdict, age, ok, err := svc.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, verdict.IsSafe)
	assert.Equal(t, 90, verdict.Confidence)
	assert.Equal(t, []string{"Phishing"}, verdict.Threats)
	assert.GreaterOrEqual(t, age, time.Duration(0))
}

func TestCache_MissOnUnknownFingerprint(t *testing.T) {
	svc := newTestCache(24*time.Hour, 1)

	_, _, ok, err := svc.Get(context.Background(), shared.Fingerprint("never seen"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	svc := newTestCache(24*time.Hour, 1)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	fp := shared.Fingerprint("expiring content")
	require.NoError(t, svc.Put(ctx, fp, testVerdict()))

	// Just inside the TTL: still a hit.
	svc.now = func() time.Time { return base.Add(24 * time.Hour) }
	_, age, ok, err := svc.Get(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, age)

	// Past the TTL: a miss, even though the entry is still stored.
	svc.now = func() time.Time { return base.Add(24*time.Hour + time.Second) }
	_, _, ok, err = svc.Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_PutOverwrites(t *testing.T) {
	svc := newTestCache(24*time.Hour, 1)
	ctx := context.Background()

	fp := shared.Fingerprint("rescored content")
	require.NoError(t, svc.Put(ctx, fp, testVerdict()))

	updated := testVerdict()
	updated.Confidence = 55
	require.NoError(t, svc.Put(ctx, fp, updated))

	verdict, _, ok, err := svc.Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 55, verdict.Confidence)
}

func TestCache_FrequencyGate(t *testing.T) {
	svc := newTestCache(24*time.Hour, 2)
	ctx := context.Background()

	fp := shared.Fingerprint("repeated scam text")

	count := svc.Observe(ctx, fp)
	assert.Equal(t, int64(1), count)
	assert.False(t, svc.ShouldCache(count))

	count = svc.Observe(ctx, fp)
	assert.Equal(t, int64(2), count)
	assert.True(t, svc.ShouldCache(count))

	count = svc.Observe(ctx, fp)
	assert.True(t, svc.ShouldCache(count))
}

func TestCache_FrequencyIsPerFingerprint(t *testing.T) {
	svc := newTestCache(24*time.Hour, 2)
	ctx := context.Background()

	svc.Observe(ctx, shared.Fingerprint("content a"))
	count := svc.Observe(ctx, shared.Fingerprint("content b"))

	assert.Equal(t, int64(1), count)
}

func TestCache_CleanupRemovesExpiredOnly(t *testing.T) {
	svc := newTestCache(24*time.Hour, 1)
	ctx := context.Background()

	base := time.Now()

	svc.now = func() time.Time { return base.Add(-25 * time.Hour) }
	require.NoError(t, svc.Put(ctx, shared.Fingerprint("old"), testVerdict()))

	svc.now = func() time.Time { return base }
	require.NoError(t, svc.Put(ctx, shared.Fingerprint("fresh"), testVerdict()))

	removed, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["entries"])
}
