package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PriorityThresholds are the hand-tuned confidence bounds the priority
// rule compares against. Values come from configuration, not literals.
type PriorityThresholds struct {
	// ContradictionMin: a REJECT of a decision scored above this is HIGH
	ContradictionMin float64

	// ConfirmSurpriseMax: a CONFIRM of a decision scored below this is HIGH
	ConfirmSurpriseMax float64

	// BorderlineLow and BorderlineHigh bound the MEDIUM borderline band
	BorderlineLow  float64
	BorderlineHigh float64
}

// FeedbackService records human feedback, prioritizes it, reconciles it
// against open verification requests and triggers learning
type FeedbackService struct {
	repo       FeedbackRepository
	snapshots  SnapshotRepository
	verifier   *VerificationService
	learner    *LearningService
	logger     *zap.Logger
	thresholds PriorityThresholds
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(
	repo FeedbackRepository,
	snapshots SnapshotRepository,
	verifier *VerificationService,
	learner *LearningService,
	logger *zap.Logger,
	thresholds PriorityThresholds,
) *FeedbackService {
	return &FeedbackService{
		repo:       repo,
		snapshots:  snapshots,
		verifier:   verifier,
		learner:    learner,
		logger:     logger,
		thresholds: thresholds,
	}
}

// Collect records one feedback event for an email the system previously
// classified, resolves any open verification request for it and feeds the
// learner
func (s *FeedbackService) Collect(ctx context.Context, userID, emailID string, feedbackType FeedbackType, comment string) (*FeedbackItem, error) {
	snapshot, err := s.snapshots.GetSnapshot(ctx, userID, emailID)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection snapshot: %w", err)
	}
	if snapshot == nil {
		// The user's signal is still worth keeping; fall back to a neutral prior
		s.logger.Warn("No detection snapshot for feedback, using neutral prior",
			zap.String("user_id", userID),
			zap.String("email_id", emailID))
		snapshot = &DetectionSnapshot{
			UserID:     userID,
			EmailID:    emailID,
			Confidence: 0.5,
		}
	}

	item := &FeedbackItem{
		ID:              uuid.NewString(),
		UserID:          userID,
		EmailID:         emailID,
		MessageID:       snapshot.MessageID,
		Sender:          snapshot.Sender,
		SenderDomain:    snapshot.SenderDomain,
		Subject:         snapshot.Subject,
		Type:            feedbackType,
		Priority:        s.computePriority(feedbackType, snapshot.Confidence),
		DetectionResult: snapshot.IsNewsletter,
		Confidence:      snapshot.Confidence,
		Features:        copyFeatures(snapshot.Features),
		Comment:         comment,
		Timestamp:       time.Now(),
	}
	if err := s.repo.SaveFeedback(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}

	s.logger.Info("Collected feedback",
		zap.String("feedback_id", item.ID),
		zap.String("user_id", userID),
		zap.String("email_id", emailID),
		zap.String("type", string(feedbackType)),
		zap.String("priority", string(item.Priority)))

	s.reconcile(ctx, userID, emailID, feedbackType)

	if s.learner != nil {
		if err := s.learner.ProcessFeedback(ctx, item); err != nil {
			s.logger.Error("Failed to apply feedback to learner",
				zap.Error(err),
				zap.String("feedback_id", item.ID))
		} else {
			now := time.Now()
			if err := s.repo.MarkProcessed(ctx, item.ID, now); err != nil {
				s.logger.Error("Failed to mark feedback processed",
					zap.Error(err),
					zap.String("feedback_id", item.ID))
			} else {
				item.Processed = true
				item.ProcessedAt = &now
			}
		}
	}

	return item, nil
}

// CollectFromVerification records the feedback carried by a resolved
// verification request. The request is already terminal, so the
// reconciliation pass inside Collect finds nothing to resolve.
func (s *FeedbackService) CollectFromVerification(ctx context.Context, req *VerificationRequest, feedbackType FeedbackType, comment string) error {
	_, err := s.Collect(ctx, req.UserID, req.EmailID, feedbackType, comment)
	return err
}

// computePriority is a pure function of (type, prior confidence). The rule
// order matters: contradiction of a near-certain decision outranks the
// borderline band.
func (s *FeedbackService) computePriority(feedbackType FeedbackType, priorConfidence float64) FeedbackPriority {
	switch {
	case feedbackType == FeedbackReject && priorConfidence > s.thresholds.ContradictionMin:
		return PriorityHigh
	case feedbackType == FeedbackConfirm && priorConfidence < s.thresholds.ConfirmSurpriseMax:
		return PriorityHigh
	case (feedbackType == FeedbackConfirm || feedbackType == FeedbackReject) &&
		priorConfidence >= s.thresholds.BorderlineLow && priorConfidence <= s.thresholds.BorderlineHigh:
		return PriorityMedium
	case feedbackType == FeedbackVerify:
		return PriorityMedium
	case feedbackType == FeedbackUncertain || feedbackType == FeedbackIgnore:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// reconcile resolves the user's open verification request for the email,
// if one exists. Resolution is idempotent, so racing a direct Respond on
// the same request is harmless.
func (s *FeedbackService) reconcile(ctx context.Context, userID, emailID string, feedbackType FeedbackType) {
	if s.verifier == nil {
		return
	}
	pending, err := s.verifier.repo.FindPending(ctx, userID, emailID)
	if err != nil {
		s.logger.Error("Failed to search pending verification requests",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("email_id", emailID))
		return
	}
	if pending == nil {
		return
	}
	if _, err := s.verifier.Resolve(ctx, pending.ID, feedbackType); err != nil {
		s.logger.Error("Failed to reconcile verification request",
			zap.Error(err),
			zap.String("request_id", pending.ID))
	}
}

func copyFeatures(features map[string]float64) map[string]float64 {
	if features == nil {
		return map[string]float64{}
	}
	copied := make(map[string]float64, len(features))
	for k, v := range features {
		copied[k] = v
	}
	return copied
}
