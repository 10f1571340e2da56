package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/scamshield-ke/shield_api/dto"
	"github.com/scamshield-ke/shield_api/shared"
)

// ScorerService is the boundary to the external AI/reputation scorer. The
// gateway treats it as an opaque capability: content in, verdict out. Its
// responses are untrusted input and schema-validated before use.
type ScorerService struct {
	appContext.DefaultService

	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
}

const SCORER_SVC = "scorer_svc"

var urlPattern = regexp.MustCompile(`https?://[^\s]+|www\.[^\s]+`)

const textSystemPrompt = `You are a scam detection expert. Analyze the provided content and return a JSON response with:
- isSafe: boolean (true if legitimate, false if scam)
- confidence: number (0-100, how confident you are)
- threats: array of detected threat types
- analysis: string (detailed explanation)
Focus on identifying: phishing attempts, fraudulent URLs, fake offers, impersonation, crypto scams, romance scams, employment scams, tech support scams, and other common fraud patterns.`

const urlSystemPrompt = `You are a URL reputation expert. Analyze the provided link(s) and return a JSON response with:
- isSafe: boolean (true if legitimate, false if malicious)
- confidence: number (0-100, how confident you are)
- threats: array of detected threat types
- analysis: string (detailed explanation)
Focus on identifying: typosquatting, lookalike domains, credential-harvesting pages, malware distribution, and URL shorteners hiding suspicious destinations.`

func (svc ScorerService) Id() string {
	return SCORER_SVC
}

func (svc *ScorerService) Configure(ctx *appContext.Context) error {
	svc.apiKey = os.Getenv("SCORER_API_KEY")

	svc.apiURL = os.Getenv("SCORER_URL")
	if svc.apiURL == "" {
		svc.apiURL = "https://openrouter.ai/api/v1/chat/completions"
	}

	svc.model = os.Getenv("SCORER_MODEL")
	if svc.model == "" {
		svc.model = "anthropic/claude-3.5-sonnet"
	}

	timeout := time.Duration(envInt("SCORER_TIMEOUT_SECONDS", 10)) * time.Second
	svc.httpClient = &http.Client{Timeout: timeout}

	return svc.DefaultService.Configure(ctx)
}

func (svc *ScorerService) Start() error {
	if svc.apiKey == "" {
		log.Warn("No scorer API key configured, all analysis will use the heuristic classifier")
	}
	return nil
}

// Available reports whether the external scorer can be called at all.
func (svc *ScorerService) Available() bool {
	return svc.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze submits content to the external scorer and returns its verdict.
// Network and HTTP failures come back as transient errors; responses that
// fail schema validation come back as malformed errors. Both are retryable
// and both eventually degrade to the heuristic classifier upstream.
func (svc *ScorerService) Analyze(ctx context.Context, content, category string) (*dto.Verdict, error) {
	if !svc.Available() {
		return nil, shared.NewScorerTransientError(fmt.Errorf("no scorer API key configured"))
	}

	systemPrompt := textSystemPrompt
	if urlPattern.MatchString(content) {
		systemPrompt = urlSystemPrompt
	}

	if category == "" {
		category = "unknown"
	}

	payload, err := json.Marshal(chatRequest{
		Model: svc.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Category: %s\n\nContent to analyze:\n%s", category, content)},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return nil, shared.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, shared.NewInternalError(err)
	}
	req.Header.Set("Authorization", "Bearer "+svc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return nil, shared.NewScorerTransientError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, shared.NewScorerTransientError(fmt.Errorf("scorer returned status %d", resp.StatusCode))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, shared.NewScorerMalformedError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, shared.NewScorerMalformedError(fmt.Errorf("scorer response contained no choices"))
	}

	verdict, err := ParseVerdict(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	verdict.Category = category
	verdict.Timestamp = time.Now()
	return verdict, nil
}

// rawVerdict uses pointers so missing fields are distinguishable from
// zero values during schema validation.
type rawVerdict struct {
	IsSafe     *bool    `json:"isSafe"`
	Confidence *int     `json:"confidence"`
	Threats    []string `json:"threats"`
	Analysis   string   `json:"analysis"`
}

// ParseVerdict validates the scorer's free-form reply against the required
// verdict shape. Any schema violation is a malformed-response error, never
// silently patched over.
func ParseVerdict(raw string) (*dto.Verdict, error) {
	// Models sometimes wrap JSON in a code fence; strip it before parsing.
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed rawVerdict
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return nil, shared.NewScorerMalformedError(fmt.Errorf("scorer reply is not valid JSON: %w", err))
	}

	if parsed.IsSafe == nil {
		return nil, shared.NewScorerMalformedError(fmt.Errorf("scorer reply missing isSafe"))
	}
	if parsed.Confidence == nil {
		return nil, shared.NewScorerMalformedError(fmt.Errorf("scorer reply missing confidence"))
	}
	if *parsed.Confidence < 0 || *parsed.Confidence > 100 {
		return nil, shared.NewScorerMalformedError(fmt.Errorf("scorer confidence %d out of range", *parsed.Confidence))
	}

	threats := parsed.Threats
	if threats == nil {
		threats = []string{}
	}

	return &dto.Verdict{
		IsSafe:     *parsed.IsSafe,
		Confidence: *parsed.Confidence,
		Threats:    threats,
		Analysis:   parsed.Analysis,
	}, nil
}
