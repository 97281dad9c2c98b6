package analyzer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// Sender-pattern sub-check weights
const (
	addressPatternWeight = 0.6
	subjectMarkersWeight = 0.4

	senderConfidence = 0.8
)

// subjectMarkers are subject-line phrasings typical of periodicals
var subjectMarkers = []string{
	"issue #",
	"issue ",
	"vol.",
	"volume ",
	"edition",
	"this week in",
	"weekly",
	"digest",
	"roundup",
	"newsletter",
	"unsubscribe",
}

// SenderAnalyzer scores the sender address and subject line
type SenderAnalyzer struct {
	logger *zap.Logger
	weight float64
}

// NewSenderAnalyzer creates a new sender-pattern analyzer
func NewSenderAnalyzer(logger *zap.Logger, weight float64) *SenderAnalyzer {
	return &SenderAnalyzer{
		logger: logger,
		weight: weight,
	}
}

// Method returns the analyzer's score tag
func (a *SenderAnalyzer) Method() string {
	return "sender_pattern"
}

// Weight returns the default contribution weight
func (a *SenderAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze scores sender-address patterns and subject markers
func (a *SenderAnalyzer) Analyze(ctx context.Context, email *core.Email) *core.DetectionScore {
	if email == nil || email.From == "" {
		return failureScore(a.Method(), "no sender address available")
	}

	var reasons []string

	pattern, patternReason := senderPatternScore(email.From)
	if patternReason != "" {
		reasons = append(reasons, patternReason)
	}

	subject := 0.0
	lowerSubject := strings.ToLower(email.Subject)
	for _, marker := range subjectMarkers {
		if strings.Contains(lowerSubject, marker) {
			subject = 1.0
			reasons = append(reasons, "subject marker "+strings.TrimSpace(marker))
			break
		}
	}

	score := addressPatternWeight*pattern + subjectMarkersWeight*subject
	reason := "no sender patterns matched"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return &core.DetectionScore{
		Method:     a.Method(),
		Score:      core.Clamp01(score),
		Confidence: senderConfidence,
		Reason:     reason,
	}
}
