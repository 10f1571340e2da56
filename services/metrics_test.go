package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scamshield-ke/shield_api/shared"
)

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		name        string
		hitRate     float64
		errorRate   float64
		meanLatency float64
		want        string
	}{
		{"all nominal", 90, 2, 400, shared.HealthHealthy},
		{"boundary values stay healthy", 50, 10, 5000, shared.HealthHealthy},
		{"elevated errors", 90, 11, 400, shared.HealthWarning},
		{"slow responses", 90, 2, 5001, shared.HealthWarning},
		{"weak cache", 49, 2, 400, shared.HealthWarning},
		{"error storm", 90, 26, 400, shared.HealthCritical},
		{"very slow", 90, 2, 10001, shared.HealthCritical},
		{"cache collapse", 29, 2, 400, shared.HealthCritical},
		{"critical beats warning", 29, 11, 400, shared.HealthCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyHealth(tc.hitRate, tc.errorRate, tc.meanLatency))
		})
	}
}

func TestConfidenceBucket(t *testing.T) {
	assert.Equal(t, shared.ConfidenceHigh, ConfidenceBucket(100))
	assert.Equal(t, shared.ConfidenceHigh, ConfidenceBucket(80))
	assert.Equal(t, shared.ConfidenceMedium, ConfidenceBucket(79))
	assert.Equal(t, shared.ConfidenceMedium, ConfidenceBucket(60))
	assert.Equal(t, shared.ConfidenceLow, ConfidenceBucket(59))
	assert.Equal(t, shared.ConfidenceLow, ConfidenceBucket(0))
}
