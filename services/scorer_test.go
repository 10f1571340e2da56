package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield-ke/shield_api/shared"
)

func TestParseVerdict_ValidResponse(t *testing.T) {
	raw := `{"isSafe": false, "confidence": 92, "threats": ["Phishing"], "analysis": "Credential harvesting attempt."}`

	verdict, err := ParseVerdict(raw)
	require.NoError(t, err)

	assert.False(t, verdict.IsSafe)
	assert.Equal(t, 92, verdict.Confidence)
	assert.Equal(t, []string{"Phishing"}, verdict.Threats)
	assert.Equal(t, "Credential harvesting attempt.", verdict.Analysis)
}

func TestParseVerdict_StripsCodeFence(t *testing.T) {
	raw := "```json\n{\"isSafe\": true, \"confidence\": 85, \"threats\": [], \"analysis\": \"Looks fine.\"}\n```"

	verdict, err := ParseVerdict(raw)
	require.NoError(t, err)

	assert.True(t, verdict.IsSafe)
	assert.Equal(t, 85, verdict.Confidence)
}

func TestParseVerdict_NilThreatsBecomesEmptySlice(t *testing.T) {
	raw := `{"isSafe": true, "confidence": 70, "analysis": "ok"}`

	verdict, err := ParseVerdict(raw)
	require.NoError(t, err)

	assert.NotNil(t, verdict.Threats)
	assert.Empty(t, verdict.Threats)
}

func TestParseVerdict_SchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "I think this is probably a scam."},
		{"missing isSafe", `{"confidence": 80, "threats": [], "analysis": "x"}`},
		{"missing confidence", `{"isSafe": false, "threats": [], "analysis": "x"}`},
		{"confidence too high", `{"isSafe": false, "confidence": 150, "threats": []}`},
		{"confidence negative", `{"isSafe": false, "confidence": -5, "threats": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseVerdict(tc.raw)
			require.Error(t, err)

			appErr, ok := shared.GetAppError(err)
			require.True(t, ok)
			assert.Equal(t, shared.ErrKindScorerMalformed, appErr.Kind)
			assert.True(t, shared.IsRetryable(err))
		})
	}
}
