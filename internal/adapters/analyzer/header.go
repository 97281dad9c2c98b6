package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// Header analysis sub-check weights. List-Unsubscribe is the strongest
// structural fact, so it carries half the score on its own.
const (
	listUnsubscribeWeight = 0.5
	espHeadersWeight      = 0.3
	senderPatternWeight   = 0.2

	// espHeadersCap: matched ESP headers saturate at this count
	espHeadersCap = 3.0

	// headerConfidence is fixed high: header presence is a structural
	// fact, not an inference
	headerConfidence = 0.9
)

// HeaderAnalyzer scores list-management and ESP headers
type HeaderAnalyzer struct {
	logger *zap.Logger
	weight float64
}

// NewHeaderAnalyzer creates a new header analyzer
func NewHeaderAnalyzer(logger *zap.Logger, weight float64) *HeaderAnalyzer {
	return &HeaderAnalyzer{
		logger: logger,
		weight: weight,
	}
}

// Method returns the analyzer's score tag
func (a *HeaderAnalyzer) Method() string {
	return "header_analysis"
}

// Weight returns the default contribution weight
func (a *HeaderAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze scores the email's headers. Malformed or missing headers never
// propagate: the analyzer degrades to a zero score at low confidence so
// the signal stays visible in the weighted combination.
func (a *HeaderAnalyzer) Analyze(ctx context.Context, email *core.Email) *core.DetectionScore {
	if email == nil || email.Headers == nil {
		return failureScore(a.Method(), "no headers available")
	}

	var reasons []string

	listUnsubscribe := 0.0
	if email.Header("List-Unsubscribe") != "" {
		listUnsubscribe = 1.0
		reasons = append(reasons, "List-Unsubscribe present")
	}

	matched := countESPHeaders(email)
	espHeaders := float64(matched) / espHeadersCap
	if espHeaders > 1.0 {
		espHeaders = 1.0
	}
	if matched > 0 {
		reasons = append(reasons, fmt.Sprintf("%d ESP/bulk headers", matched))
	}

	pattern, patternReason := senderPatternScore(email.From)
	if patternReason != "" {
		reasons = append(reasons, patternReason)
	}

	score := listUnsubscribeWeight*listUnsubscribe +
		espHeadersWeight*espHeaders +
		senderPatternWeight*pattern

	reason := "no newsletter headers found"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return &core.DetectionScore{
		Method:     a.Method(),
		Score:      core.Clamp01(score),
		Confidence: headerConfidence,
		Reason:     reason,
		Metadata: map[string]string{
			"list_unsubscribe": fmt.Sprintf("%.1f", listUnsubscribe),
			"esp_headers":      fmt.Sprintf("%d", matched),
			"sender_pattern":   fmt.Sprintf("%.1f", pattern),
		},
	}
}

// countESPHeaders counts distinct headers matching known ESP prefixes
func countESPHeaders(email *core.Email) int {
	matched := 0
	for name := range email.Headers {
		lower := strings.ToLower(name)
		for _, prefix := range espHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				matched++
				break
			}
		}
	}
	return matched
}

// failureScore is the shared signal-failure result: zero score at low but
// nonzero confidence, so the weighted combination does not silently erase
// the signal
func failureScore(method, reason string) *core.DetectionScore {
	return &core.DetectionScore{
		Method:     method,
		Score:      0.0,
		Confidence: 0.1,
		Reason:     reason,
	}
}
