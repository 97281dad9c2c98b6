package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/utils"
)

// FeedbackSink receives the user's answer once a verification request is
// resolved. Implemented by the feedback collector.
type FeedbackSink interface {
	CollectFromVerification(ctx context.Context, req *VerificationRequest, feedbackType FeedbackType, comment string) error
}

// VerificationService owns the verification request state machine
type VerificationService struct {
	repo      VerificationRepository
	collector FeedbackSink
	logger    *zap.Logger
	ttl       time.Duration
	sweepFreq time.Duration
	locks     *utils.KeyedMutex
	stopCh    chan struct{}
}

// NewVerificationService creates a new verification service
func NewVerificationService(
	repo VerificationRepository,
	logger *zap.Logger,
	ttl time.Duration,
	sweepFreq time.Duration,
) *VerificationService {
	return &VerificationService{
		repo:      repo,
		logger:    logger,
		ttl:       ttl,
		sweepFreq: sweepFreq,
		locks:     utils.NewKeyedMutex(),
		stopCh:    make(chan struct{}),
	}
}

// BindCollector wires the feedback sink that resolved requests are
// forwarded to. Called once during container setup.
func (s *VerificationService) BindCollector(collector FeedbackSink) {
	s.collector = collector
}

// Generate creates a verification request for an ambiguous detection.
// If a PENDING request already exists for the same (user, email) it is
// reused: the send count is incremented and the expiry extended, so the
// user never receives duplicate request ids.
func (s *VerificationService) Generate(ctx context.Context, userID string, email *Email, confidence float64) (*VerificationRequest, error) {
	unlock := s.locks.Lock(userID + "/" + email.ID)
	defer unlock()

	now := time.Now()
	existing, err := s.repo.FindPending(ctx, userID, email.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending request: %w", err)
	}
	if existing != nil {
		existing.RequestSentCount++
		existing.ExpiresAt = now.Add(s.ttl)
		if err := s.repo.SaveRequest(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to refresh pending request: %w", err)
		}
		s.logger.Info("Reusing pending verification request",
			zap.String("request_id", existing.ID),
			zap.String("email_id", email.ID),
			zap.Int("sent_count", existing.RequestSentCount))
		return existing, nil
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}
	req := &VerificationRequest{
		ID:               uuid.NewString(),
		UserID:           userID,
		EmailID:          email.ID,
		Sender:           email.From,
		SenderDomain:     email.SenderDomain(),
		Confidence:       confidence,
		Status:           VerificationPending,
		Token:            token,
		GeneratedAt:      now,
		ExpiresAt:        now.Add(s.ttl),
		RequestSentCount: 1,
	}
	if err := s.repo.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save verification request: %w", err)
	}

	s.logger.Info("Generated verification request",
		zap.String("request_id", req.ID),
		zap.String("user_id", userID),
		zap.String("email_id", email.ID),
		zap.Float64("confidence", confidence))
	return req, nil
}

// Respond records the user's answer for the request carrying the token.
// Unknown tokens fail with ErrRequestNotFound, swept requests with
// ErrRequestExpired; answering an already-resolved request is an
// idempotent no-op that returns the existing request unchanged.
func (s *VerificationService) Respond(ctx context.Context, token string, feedbackType FeedbackType, comment string) (*VerificationRequest, error) {
	req, err := s.repo.GetRequestByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification token: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: token %q", ErrRequestNotFound, token)
	}

	resolved, transitioned, err := s.resolve(ctx, req.ID, feedbackType)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return resolved, nil
	}

	// Forward outside the per-id critical section so the collector's own
	// reconciliation cannot deadlock against it
	if s.collector != nil {
		if err := s.collector.CollectFromVerification(ctx, resolved, feedbackType, comment); err != nil {
			s.logger.Error("Failed to forward verification response to feedback collector",
				zap.Error(err),
				zap.String("request_id", resolved.ID))
		}
	}
	return resolved, nil
}

// Resolve transitions the request to its terminal state carrying the
// feedback type as the recorded response, without forwarding back to the
// collector. Used by the collector's reconciliation pass; idempotent.
func (s *VerificationService) Resolve(ctx context.Context, requestID string, feedbackType FeedbackType) (*VerificationRequest, error) {
	req, _, err := s.resolve(ctx, requestID, feedbackType)
	return req, err
}

// resolve performs the actual state transition under the per-id lock.
// The second return reports whether this call made the transition.
func (s *VerificationService) resolve(ctx context.Context, requestID string, feedbackType FeedbackType) (*VerificationRequest, bool, error) {
	unlock := s.locks.Lock(requestID)
	defer unlock()

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load verification request: %w", err)
	}
	if req == nil {
		return nil, false, fmt.Errorf("%w: id %q", ErrRequestNotFound, requestID)
	}
	if req.Status == VerificationExpired {
		return nil, false, fmt.Errorf("%w: id %q", ErrRequestExpired, requestID)
	}
	if req.Status.IsTerminal() {
		s.logger.Warn("Verification request already resolved",
			zap.String("request_id", req.ID),
			zap.String("status", string(req.Status)))
		return req, false, nil
	}

	now := time.Now()
	if feedbackType == FeedbackReject {
		req.Status = VerificationRejected
	} else {
		req.Status = VerificationConfirmed
	}
	req.RespondedAt = &now
	req.UserResponse = string(feedbackType)
	if err := s.repo.SaveRequest(ctx, req); err != nil {
		return nil, false, fmt.Errorf("failed to save verification response: %w", err)
	}

	s.logger.Info("Verification request resolved",
		zap.String("request_id", req.ID),
		zap.String("user_response", req.UserResponse))
	return req, true, nil
}

// Cancel forces a request to CANCELED. Cancellation is advisory, so any
// failure degrades to false instead of an error.
func (s *VerificationService) Cancel(ctx context.Context, requestID string) bool {
	unlock := s.locks.Lock(requestID)
	defer unlock()

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil || req == nil {
		if err != nil {
			s.logger.Warn("Failed to load request for cancellation", zap.Error(err), zap.String("request_id", requestID))
		}
		return false
	}
	req.Status = VerificationCanceled
	if err := s.repo.SaveRequest(ctx, req); err != nil {
		s.logger.Warn("Failed to cancel verification request", zap.Error(err), zap.String("request_id", requestID))
		return false
	}
	return true
}

// ExpireRequests transitions every PENDING request past its expiry to
// EXPIRED and returns the count transitioned
func (s *VerificationService) ExpireRequests(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired requests: %w", err)
	}

	count := 0
	for _, req := range expired {
		unlock := s.locks.Lock(req.ID)
		current, err := s.repo.GetRequest(ctx, req.ID)
		if err != nil {
			unlock()
			s.logger.Error("Failed to reload request during expiry sweep", zap.Error(err), zap.String("request_id", req.ID))
			continue
		}
		// A response may have raced the sweep; only PENDING expires
		if current != nil && current.Status == VerificationPending {
			if err := s.repo.UpdateStatus(ctx, current.ID, VerificationExpired); err != nil {
				unlock()
				s.logger.Error("Failed to expire request", zap.Error(err), zap.String("request_id", req.ID))
				continue
			}
			count++
		}
		unlock()
	}

	if count > 0 {
		s.logger.Info("Expired verification requests", zap.Int("expired_count", count))
	}
	return count, nil
}

// Start begins the periodic expiry sweep
func (s *VerificationService) Start() {
	go s.startSweepTask()
}

// startSweepTask runs the expiry sweep on a ticker until Stop is called
func (s *VerificationService) startSweepTask() {
	ticker := time.NewTicker(s.sweepFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.ExpireRequests(context.Background()); err != nil {
				s.logger.Error("Failed to sweep expired requests", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background expiry sweep
func (s *VerificationService) Stop() {
	close(s.stopCh)
}

// newToken returns an unguessable token for a verification request
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
