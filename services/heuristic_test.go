package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicClassify_ScamContent(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	verdict := svc.Classify("URGENT: verify your account now to claim your prize!", "")

	assert.False(t, verdict.IsSafe)
	assert.NotEmpty(t, verdict.Threats)
	assert.Contains(t, verdict.Threats, "Pressure Tactics")
	assert.Contains(t, verdict.Threats, "Phishing")
	assert.Contains(t, verdict.Threats, "Fake Offer")
	assert.GreaterOrEqual(t, verdict.Confidence, 70)
	assert.LessOrEqual(t, verdict.Confidence, 100)
	assert.Contains(t, verdict.Analysis, "urgent")
}

func TestHeuristicClassify_SafeContent(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	verdict := svc.Classify("Hi mum, I'll be home for dinner at seven.", "")

	assert.True(t, verdict.IsSafe)
	assert.Empty(t, verdict.Threats)
	assert.Equal(t, 70, verdict.Confidence)
}

func TestHeuristicClassify_ConfidenceScalesWithMatches(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	one := svc.Classify("bitcoin", "")
	many := svc.Classify("urgent bitcoin prize winner, guaranteed returns, act now", "")

	assert.Greater(t, many.Confidence, one.Confidence)
	assert.LessOrEqual(t, many.Confidence, 100)
}

func TestHeuristicClassify_CaseInsensitive(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	lower := svc.Classify("send money via mpesa", "")
	upper := svc.Classify("SEND MONEY VIA MPESA", "")

	assert.Equal(t, lower.IsSafe, upper.IsSafe)
	assert.Equal(t, lower.Threats, upper.Threats)
}

func TestHeuristicClassify_DefaultCategory(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	verdict := svc.Classify("hello there", "")
	assert.Equal(t, "General", verdict.Category)

	verdict = svc.Classify("hello there", "SMS")
	assert.Equal(t, "SMS", verdict.Category)
}

func TestHeuristicClassify_Deterministic(t *testing.T) {
	svc, err := NewHeuristicService()
	require.NoError(t, err)

	a := svc.Classify("urgent loan offer, quick cash today", "")
	b := svc.Classify("urgent loan offer, quick cash today", "")

	assert.Equal(t, a.IsSafe, b.IsSafe)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Threats, b.Threats)
	assert.Equal(t, a.Analysis, b.Analysis)
}
