package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/utils"
)

// LearningConfig holds the tuning knobs for the reputation/weight learner
type LearningConfig struct {
	// LearningRate is the confidence decay applied to a conflicting
	// automatic assignment
	LearningRate float64

	// MinConfidence is the floor decay never drives confidence below
	MinConfidence float64

	// DecayTrigger: automatic assignments above this confidence are decayed
	// when contradicted by a manual one
	DecayTrigger float64

	// ReputationDelta is the base reputation step per feedback event
	ReputationDelta float64

	// WeightRate is the base per-analyzer weight step per feedback event
	WeightRate float64

	// MinWeight and MaxWeight bound learned analyzer weights
	MinWeight float64
	MaxWeight float64

	// AssignDelta and RemoveDelta are the preference deltas for explicit
	// category assignment and removal
	AssignDelta float64
	RemoveDelta float64
}

// LearningService adjusts sender/domain reputation, per-analyzer weights
// and per-user category preferences from feedback
type LearningService struct {
	reputation  ReputationRepository
	weights     WeightRepository
	preferences PreferenceRepository
	categories  CategoryRepository
	analyzers   []SignalAnalyzer
	logger      *zap.Logger
	cfg         LearningConfig
	locks       *utils.KeyedMutex
}

// NewLearningService creates a new learning service
func NewLearningService(
	reputation ReputationRepository,
	weights WeightRepository,
	preferences PreferenceRepository,
	categories CategoryRepository,
	analyzers []SignalAnalyzer,
	logger *zap.Logger,
	cfg LearningConfig,
) *LearningService {
	return &LearningService{
		reputation:  reputation,
		weights:     weights,
		preferences: preferences,
		categories:  categories,
		analyzers:   analyzers,
		logger:      logger,
		cfg:         cfg,
		locks:       utils.NewKeyedMutex(),
	}
}

// priorityMultiplier scales learning steps by how urgent the feedback is
func priorityMultiplier(priority FeedbackPriority) float64 {
	switch priority {
	case PriorityHigh:
		return 2.0
	case PriorityLow:
		return 0.5
	default:
		return 1.0
	}
}

// ProcessFeedback applies one feedback item to the reputation and weight
// tables. Only explicit CONFIRM/REJECT judgments move the tables;
// UNCERTAIN and IGNORE carry no learnable direction.
func (s *LearningService) ProcessFeedback(ctx context.Context, item *FeedbackItem) error {
	if item.Type != FeedbackConfirm && item.Type != FeedbackReject {
		s.logger.Debug("Feedback carries no learnable direction, skipping",
			zap.String("feedback_id", item.ID),
			zap.String("type", string(item.Type)))
		return nil
	}

	direction := 1.0
	if item.Type == FeedbackReject {
		direction = -1.0
	}
	step := s.cfg.ReputationDelta * priorityMultiplier(item.Priority) * direction

	if item.Sender != "" {
		if err := s.adjustReputation(ctx, item.Sender, step); err != nil {
			return fmt.Errorf("failed to adjust sender reputation: %w", err)
		}
	}
	if item.SenderDomain != "" {
		// Domain evidence is weaker than sender evidence
		if err := s.adjustReputation(ctx, item.SenderDomain, step/2); err != nil {
			return fmt.Errorf("failed to adjust domain reputation: %w", err)
		}
	}

	if err := s.adjustWeights(ctx, item); err != nil {
		return fmt.Errorf("failed to adjust analyzer weights: %w", err)
	}
	return nil
}

// adjustReputation moves a reputation key by delta under its per-key lock
func (s *LearningService) adjustReputation(ctx context.Context, key string, delta float64) error {
	unlock := s.locks.Lock("reputation/" + key)
	defer unlock()

	rep, err := s.reputation.GetReputation(ctx, key)
	if err != nil {
		return err
	}
	if rep == nil {
		// Unseen senders start neutral
		rep = &SenderReputation{Key: key, Score: 0.5}
	}
	rep.Score = Clamp01(rep.Score + delta)
	rep.SampleCount++
	rep.UpdatedAt = time.Now()
	if err := s.reputation.SaveReputation(ctx, rep); err != nil {
		return err
	}

	s.logger.Debug("Adjusted reputation",
		zap.String("key", key),
		zap.Float64("score", rep.Score),
		zap.Int("samples", rep.SampleCount))
	return nil
}

// adjustWeights nudges the user's per-analyzer weights toward the signals
// that agreed with the user's judgment and away from those that did not
func (s *LearningService) adjustWeights(ctx context.Context, item *FeedbackItem) error {
	if len(item.Features) == 0 {
		return nil
	}

	unlock := s.locks.Lock("weights/" + item.UserID)
	defer unlock()

	current, err := s.weights.GetWeights(ctx, item.UserID)
	if err != nil {
		return err
	}

	step := s.cfg.WeightRate * priorityMultiplier(item.Priority)
	userSaysNewsletter := item.Type == FeedbackConfirm

	for _, analyzer := range s.analyzers {
		featureScore, ok := item.Features[analyzer.Method()]
		if !ok {
			continue
		}
		weight, ok := current[analyzer.Method()]
		if !ok {
			weight = analyzer.Weight()
		}

		// A signal "voted newsletter" if it scored above the midpoint;
		// reward agreement with the user, penalize disagreement
		signalSaysNewsletter := featureScore >= 0.5
		if signalSaysNewsletter == userSaysNewsletter {
			weight += step
		} else {
			weight -= step
		}
		if weight < s.cfg.MinWeight {
			weight = s.cfg.MinWeight
		}
		if weight > s.cfg.MaxWeight {
			weight = s.cfg.MaxWeight
		}
		if err := s.weights.SaveWeight(ctx, item.UserID, analyzer.Method(), weight); err != nil {
			return err
		}
	}
	return nil
}

// DecayConflictingAssignments decays automatic assignments that a manual
// category choice contradicts: every automatic assignment for the
// newsletter, other than the manual one, whose confidence exceeds the
// trigger loses LearningRate confidence, floored at MinConfidence. The
// decayed assignment stays automatic.
func (s *LearningService) DecayConflictingAssignments(ctx context.Context, newsletterID, manualCategoryID string) error {
	assignments, err := s.categories.GetAssignments(ctx, newsletterID)
	if err != nil {
		return fmt.Errorf("failed to load assignments for decay: %w", err)
	}

	for _, assignment := range assignments {
		if assignment.IsManual || assignment.CategoryID == manualCategoryID {
			continue
		}
		if assignment.Confidence <= s.cfg.DecayTrigger {
			continue
		}
		decayed := assignment.Confidence - s.cfg.LearningRate
		if decayed < s.cfg.MinConfidence {
			decayed = s.cfg.MinConfidence
		}
		assignment.Confidence = decayed
		if err := s.categories.SaveAssignment(ctx, assignment); err != nil {
			return fmt.Errorf("failed to save decayed assignment: %w", err)
		}
		s.logger.Info("Decayed conflicting automatic assignment",
			zap.String("newsletter_id", newsletterID),
			zap.String("category_id", assignment.CategoryID),
			zap.Float64("confidence", assignment.Confidence))
	}
	return nil
}

// AdjustPreference moves a user's category preference by delta, clamped to
// [0,1], under the user's lock so concurrent updates never lose writes
func (s *LearningService) AdjustPreference(ctx context.Context, userID, categoryID string, delta float64) error {
	unlock := s.locks.Lock("preference/" + userID)
	defer unlock()

	pref, err := s.preferences.GetPreference(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("failed to load preference: %w", err)
	}
	updated := Clamp01(pref + delta)
	if err := s.preferences.SavePreference(ctx, userID, categoryID, updated); err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}

	s.logger.Debug("Adjusted category preference",
		zap.String("user_id", userID),
		zap.String("category_id", categoryID),
		zap.Float64("preference", updated))
	return nil
}

// Config exposes the learner's tuning so callers use the configured
// preference deltas instead of re-declaring them
func (s *LearningService) Config() LearningConfig {
	return s.cfg
}
