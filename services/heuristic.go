package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	ac "github.com/anknown/ahocorasick"

	"github.com/scamshield-ke/shield_api/dto"
)

// scamVocabulary maps known scam phrases to their threat class. The list
// mirrors the vocabulary seen in confirmed reports.
var scamVocabulary = map[string]string{
	"urgent":                 "Pressure Tactics",
	"act now":                "Pressure Tactics",
	"limited time":           "Pressure Tactics",
	"verify your account":    "Phishing",
	"verify account":         "Phishing",
	"click here":             "Phishing",
	"suspended":              "Phishing",
	"congratulations":        "Fake Offer",
	"winner":                 "Fake Offer",
	"prize":                  "Fake Offer",
	"bitcoin":                "Crypto Scam",
	"cryptocurrency":         "Crypto Scam",
	"investment opportunity": "Investment Fraud",
	"guaranteed returns":     "Investment Fraud",
	"mpesa":                  "Mobile Money Fraud",
	"mobile money":           "Mobile Money Fraud",
	"loan":                   "Loan Fraud",
	"quick cash":             "Loan Fraud",
	"instant money":          "Loan Fraud",
}

// HeuristicService is the deterministic keyword classifier used when the
// external scorer is unavailable or misbehaves. The system prefers a
// degraded-but-present answer over a hard error.
type HeuristicService struct {
	appContext.DefaultService

	machine  ac.Machine
	keywords []string
}

const HEURISTIC_SVC = "heuristic_svc"

func (svc HeuristicService) Id() string {
	return HEURISTIC_SVC
}

func (svc *HeuristicService) Configure(ctx *appContext.Context) error {
	if err := svc.buildMachine(); err != nil {
		return err
	}
	return svc.DefaultService.Configure(ctx)
}

func (svc *HeuristicService) Start() error {
	return nil
}

// NewHeuristicService builds a classifier outside the service container.
func NewHeuristicService() (*HeuristicService, error) {
	svc := &HeuristicService{}
	if err := svc.buildMachine(); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *HeuristicService) buildMachine() error {
	svc.keywords = make([]string, 0, len(scamVocabulary))
	for keyword := range scamVocabulary {
		svc.keywords = append(svc.keywords, keyword)
	}
	sort.Strings(svc.keywords)

	dict := make([][]rune, len(svc.keywords))
	for i, keyword := range svc.keywords {
		dict[i] = []rune(keyword)
	}

	if err := svc.machine.Build(dict); err != nil {
		return fmt.Errorf("failed to build keyword automaton: %w", err)
	}
	return nil
}

// Classify scans content against the scam vocabulary and returns a
// deterministic verdict. Confidence lands in [70, 100]: safe content sits at
// 70, each matched keyword raises certainty of a scam.
func (svc *HeuristicService) Classify(content, category string) *dto.Verdict {
	lowered := strings.ToLower(content)

	matched := make(map[string]bool)
	terms := svc.machine.MultiPatternSearch([]rune(lowered), false)
	for _, term := range terms {
		matched[string(term.Word)] = true
	}

	found := make([]string, 0, len(matched))
	for keyword := range matched {
		found = append(found, keyword)
	}
	sort.Strings(found)

	threatSet := make(map[string]bool)
	for _, keyword := range found {
		threatSet[scamVocabulary[keyword]] = true
	}
	threats := make([]string, 0, len(threatSet))
	for threat := range threatSet {
		threats = append(threats, threat)
	}
	sort.Strings(threats)

	isSafe := len(found) == 0

	confidence := 70
	if !isSafe {
		confidence = 70 + 10*len(found)
		if confidence > 100 {
			confidence = 100
		}
	}

	analysis := "Content appears legitimate with no obvious red flags detected."
	if !isSafe {
		analysis = "Suspicious content detected. Found concerning keywords: " + strings.Join(found, ", ")
	}

	if category == "" {
		category = "General"
	}

	return &dto.Verdict{
		IsSafe:     isSafe,
		Confidence: confidence,
		Category:   category,
		Threats:    threats,
		Analysis:   analysis,
		Timestamp:  time.Now(),
	}
}
