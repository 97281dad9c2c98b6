package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DetectionBands holds the decision thresholds for the aggregator
type DetectionBands struct {
	// NewsletterThreshold is the combined score at or above which an email
	// is a newsletter with no verification needed
	NewsletterThreshold float64

	// RejectThreshold is the combined score at or below which an email is
	// definitely not a newsletter
	RejectThreshold float64

	// GuessThreshold is the best-guess split inside the verification band
	GuessThreshold float64
}

// DetectionService runs the registered signal analyzers and combines
// their scores into one decision
type DetectionService struct {
	analyzers   []SignalAnalyzer
	weights     WeightRepository
	snapshots   SnapshotRepository
	verifier    *VerificationService
	trusted     TrustedDomains
	logger      *zap.Logger
	bands       DetectionBands
	snapshotTTL time.Duration
}

// TrustedDomains reports senders that are never classified as newsletters
type TrustedDomains interface {
	IsTrusted(from string) bool
}

// NewDetectionService creates a new detection service. The verifier may be
// nil for one-shot runs that never open verification requests.
func NewDetectionService(
	analyzers []SignalAnalyzer,
	weights WeightRepository,
	snapshots SnapshotRepository,
	verifier *VerificationService,
	trusted TrustedDomains,
	logger *zap.Logger,
	bands DetectionBands,
	snapshotTTL time.Duration,
) *DetectionService {
	return &DetectionService{
		analyzers:   analyzers,
		weights:     weights,
		snapshots:   snapshots,
		verifier:    verifier,
		trusted:     trusted,
		logger:      logger,
		bands:       bands,
		snapshotTTL: snapshotTTL,
	}
}

// AnalyzeEmail scores an email with every registered analyzer, combines
// the scores and records a detection snapshot. Ambiguous results open a
// verification request when a verifier is wired.
func (s *DetectionService) AnalyzeEmail(ctx context.Context, userID string, email *Email) (*DetectionResult, error) {
	if s.trusted != nil && s.trusted.IsTrusted(email.From) {
		s.logger.Info("Skipping detection for trusted domain",
			zap.String("sender", email.From),
			zap.String("action", "trusted_bypass"))
		return &DetectionResult{
			CombinedScore:     0.0,
			IsNewsletter:      false,
			NeedsVerification: false,
			AnalyzedAt:        time.Now(),
		}, nil
	}

	scores := make([]DetectionScore, 0, len(s.analyzers))
	for _, analyzer := range s.analyzers {
		score := analyzer.Analyze(ctx, email)
		if score == nil {
			// Analyzers are contracted never to do this; treat it like an
			// internal analyzer failure
			score = &DetectionScore{
				Method:     analyzer.Method(),
				Score:      0.0,
				Confidence: 0.1,
				Reason:     "analyzer returned no score",
			}
		}
		scores = append(scores, *score)
	}

	overrides := s.weightOverrides(ctx, userID)
	result := s.Combine(scores, overrides)

	snapshot := &DetectionSnapshot{
		UserID:       userID,
		EmailID:      email.ID,
		MessageID:    email.MessageID,
		Sender:       email.From,
		SenderDomain: email.SenderDomain(),
		Subject:      email.Subject,
		IsNewsletter: result.IsNewsletter,
		Confidence:   result.CombinedScore,
		Features:     featureMap(scores),
		AnalyzedAt:   result.AnalyzedAt,
		ExpiresAt:    result.AnalyzedAt.Add(s.snapshotTTL),
	}
	if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
		s.logger.Error("Failed to save detection snapshot",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("email_id", email.ID))
	}

	if result.NeedsVerification && s.verifier != nil {
		if _, err := s.verifier.Generate(ctx, userID, email, result.CombinedScore); err != nil {
			s.logger.Error("Failed to generate verification request",
				zap.Error(err),
				zap.String("user_id", userID),
				zap.String("email_id", email.ID))
		}
	}

	s.logger.Debug("Analyzed email",
		zap.String("user_id", userID),
		zap.String("email_id", email.ID),
		zap.Float64("combined_score", result.CombinedScore),
		zap.Bool("is_newsletter", result.IsNewsletter),
		zap.Bool("needs_verification", result.NeedsVerification))

	return result, nil
}

// Combine aggregates analyzer scores into one decision. Weights are the
// analyzers' defaults unless overridden per user; the sum is normalized by
// the weight actually used so behavior stays well-defined when analyzers
// are added or removed.
func (s *DetectionService) Combine(scores []DetectionScore, weightOverrides map[string]float64) *DetectionResult {
	var weighted, weightSum float64
	for i, score := range scores {
		weight := s.defaultWeight(score.Method, i)
		if override, ok := weightOverrides[score.Method]; ok {
			weight = override
		}
		weighted += weight * score.Score
		weightSum += weight
	}

	result := &DetectionResult{
		Scores:     scores,
		AnalyzedAt: time.Now(),
	}
	if weightSum <= 0 {
		// No usable signal at all: force the verification path
		result.NeedsVerification = true
		return result
	}

	combined := Clamp01(weighted / weightSum)
	result.CombinedScore = combined

	switch {
	case combined >= s.bands.NewsletterThreshold:
		result.IsNewsletter = true
	case combined <= s.bands.RejectThreshold:
		result.IsNewsletter = false
	default:
		result.IsNewsletter = combined >= s.bands.GuessThreshold
		result.NeedsVerification = true
	}
	return result
}

// defaultWeight resolves the registered analyzer's default weight for a
// method tag. The positional hint avoids a scan in the common case where
// scores arrive in registration order.
func (s *DetectionService) defaultWeight(method string, hint int) float64 {
	if hint >= 0 && hint < len(s.analyzers) && s.analyzers[hint].Method() == method {
		return s.analyzers[hint].Weight()
	}
	for _, analyzer := range s.analyzers {
		if analyzer.Method() == method {
			return analyzer.Weight()
		}
	}
	return 0
}

func (s *DetectionService) weightOverrides(ctx context.Context, userID string) map[string]float64 {
	if s.weights == nil || userID == "" {
		return nil
	}
	overrides, err := s.weights.GetWeights(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load weight overrides, using defaults",
			zap.Error(err),
			zap.String("user_id", userID))
		return nil
	}
	return overrides
}

func featureMap(scores []DetectionScore) map[string]float64 {
	features := make(map[string]float64, len(scores))
	for _, score := range scores {
		features[score.Method] = score.Score
	}
	return features
}
