package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// reputationSamplesForFullConfidence: confidence saturates once this many
// feedback events back the score
const reputationSamplesForFullConfidence = 10.0

// ReputationAnalyzer scores an email from the learned sender/domain
// reputation store. This is the historical signal: it only says something
// once feedback has accumulated.
type ReputationAnalyzer struct {
	reputation core.ReputationRepository
	logger     *zap.Logger
	weight     float64
}

// NewReputationAnalyzer creates a new sender-reputation analyzer
func NewReputationAnalyzer(reputation core.ReputationRepository, logger *zap.Logger, weight float64) *ReputationAnalyzer {
	return &ReputationAnalyzer{
		reputation: reputation,
		logger:     logger,
		weight:     weight,
	}
}

// Method returns the analyzer's score tag
func (a *ReputationAnalyzer) Method() string {
	return "sender_reputation"
}

// Weight returns the default contribution weight
func (a *ReputationAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze looks up the sender's reputation, falling back to the domain's.
// Store failures and unseen senders degrade to a zero score at low
// confidence; the detection path never hard-fails on this signal.
func (a *ReputationAnalyzer) Analyze(ctx context.Context, email *core.Email) *core.DetectionScore {
	if email == nil || email.From == "" {
		return failureScore(a.Method(), "no sender address available")
	}

	rep, err := a.lookup(ctx, email.From)
	if err != nil {
		a.logger.Warn("Reputation lookup failed",
			zap.Error(err),
			zap.String("sender", email.From))
		return failureScore(a.Method(), "reputation lookup failed")
	}
	if rep == nil {
		rep, err = a.lookup(ctx, email.SenderDomain())
		if err != nil {
			a.logger.Warn("Domain reputation lookup failed",
				zap.Error(err),
				zap.String("domain", email.SenderDomain()))
			return failureScore(a.Method(), "reputation lookup failed")
		}
	}
	if rep == nil {
		return failureScore(a.Method(), "no reputation history for sender")
	}

	confidence := float64(rep.SampleCount) / reputationSamplesForFullConfidence
	if confidence > 1.0 {
		confidence = 1.0
	}
	// Keep a floor so a single sample still registers
	if confidence < 0.1 {
		confidence = 0.1
	}

	return &core.DetectionScore{
		Method:     a.Method(),
		Score:      core.Clamp01(rep.Score),
		Confidence: confidence * 0.9,
		Reason:     fmt.Sprintf("reputation %.2f from %d feedback events for %s", rep.Score, rep.SampleCount, rep.Key),
	}
}

func (a *ReputationAnalyzer) lookup(ctx context.Context, key string) (*core.SenderReputation, error) {
	if key == "" {
		return nil, nil
	}
	return a.reputation.GetReputation(ctx, key)
}
