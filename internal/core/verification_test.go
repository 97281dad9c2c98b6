package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// recordingSink records forwarded verification responses
type recordingSink struct {
	mu    sync.Mutex
	calls []core.FeedbackType
}

func (s *recordingSink) CollectFromVerification(_ context.Context, _ *core.VerificationRequest, feedbackType core.FeedbackType, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, feedbackType)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newVerifier(t *testing.T) (*core.VerificationService, *recordingSink, core.VerificationRepository) {
	t.Helper()
	s := newTestStore(t)
	verifier := core.NewVerificationService(s, zap.NewNop(), time.Hour, time.Hour)
	sink := &recordingSink{}
	verifier.BindCollector(sink)
	return verifier, sink, s
}

func TestGenerateReusesPendingRequest(t *testing.T) {
	verifier, _, _ := newVerifier(t)
	email := testEmail()

	first, err := verifier.Generate(context.Background(), "u1", email, 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if first.Status != core.VerificationPending {
		t.Errorf("status = %q, want PENDING", first.Status)
	}
	if first.RequestSentCount != 1 {
		t.Errorf("sent count = %d, want 1", first.RequestSentCount)
	}
	if first.Token == "" {
		t.Error("expected a token")
	}

	second, err := verifier.Generate(context.Background(), "u1", email, 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the pending request to be reused, got new id %q", second.ID)
	}
	if second.RequestSentCount != 2 {
		t.Errorf("sent count = %d, want 2", second.RequestSentCount)
	}
	if !second.ExpiresAt.After(first.GeneratedAt) {
		t.Error("expected expiry to be extended on reuse")
	}
}

func TestRespondConfirm(t *testing.T) {
	verifier, sink, _ := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	resolved, err := verifier.Respond(context.Background(), req.Token, core.FeedbackConfirm, "yes, newsletter")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resolved.Status != core.VerificationConfirmed {
		t.Errorf("status = %q, want CONFIRMED", resolved.Status)
	}
	if resolved.RespondedAt == nil {
		t.Error("expected RespondedAt to be set")
	}
	if resolved.UserResponse != string(core.FeedbackConfirm) {
		t.Errorf("user response = %q, want CONFIRM", resolved.UserResponse)
	}
	if sink.count() != 1 {
		t.Errorf("collector called %d times, want 1", sink.count())
	}
}

func TestRespondReject(t *testing.T) {
	verifier, _, _ := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	resolved, err := verifier.Respond(context.Background(), req.Token, core.FeedbackReject, "")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if resolved.Status != core.VerificationRejected {
		t.Errorf("status = %q, want REJECTED", resolved.Status)
	}
}

func TestRespondUnknownToken(t *testing.T) {
	verifier, _, _ := newVerifier(t)

	_, err := verifier.Respond(context.Background(), "no-such-token", core.FeedbackConfirm, "")
	if !errors.Is(err, core.ErrRequestNotFound) {
		t.Errorf("error = %v, want ErrRequestNotFound", err)
	}
}

func TestRespondExpiredRequest(t *testing.T) {
	verifier, _, repo := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := repo.UpdateStatus(context.Background(), req.ID, core.VerificationExpired); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	_, err = verifier.Respond(context.Background(), req.Token, core.FeedbackConfirm, "")
	if !errors.Is(err, core.ErrRequestExpired) {
		t.Errorf("error = %v, want ErrRequestExpired", err)
	}
}

func TestRespondIdempotent(t *testing.T) {
	verifier, sink, _ := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	first, err := verifier.Respond(context.Background(), req.Token, core.FeedbackConfirm, "")
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	// Second answer is a no-op, even with a different feedback type
	second, err := verifier.Respond(context.Background(), req.Token, core.FeedbackReject, "")
	if err != nil {
		t.Fatalf("second Respond failed: %v", err)
	}
	if second.Status != first.Status {
		t.Errorf("status changed on repeated response: %q -> %q", first.Status, second.Status)
	}
	if second.UserResponse != string(core.FeedbackConfirm) {
		t.Errorf("user response rewritten to %q", second.UserResponse)
	}
	if sink.count() != 1 {
		t.Errorf("collector called %d times, want exactly 1", sink.count())
	}
}

func TestRespondConcurrentSingleTransition(t *testing.T) {
	verifier, sink, repo := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// Race conflicting answers at the same token: exactly one transition
	// wins, the rest are idempotent no-ops
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		feedbackType := core.FeedbackConfirm
		if i%2 == 1 {
			feedbackType = core.FeedbackReject
		}
		wg.Add(1)
		go func(ft core.FeedbackType) {
			defer wg.Done()
			if _, err := verifier.Respond(context.Background(), req.Token, ft, ""); err != nil {
				t.Errorf("Respond failed: %v", err)
			}
		}(feedbackType)
	}
	wg.Wait()

	if sink.count() != 1 {
		t.Errorf("collector called %d times, want exactly 1", sink.count())
	}

	current, err := repo.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if !current.Status.IsTerminal() || current.Status == core.VerificationExpired {
		t.Fatalf("status = %q, want a resolved terminal state", current.Status)
	}
	// The recorded response belongs to the single winning transition
	switch current.UserResponse {
	case string(core.FeedbackConfirm):
		if current.Status != core.VerificationConfirmed {
			t.Errorf("status = %q for a CONFIRM response", current.Status)
		}
	case string(core.FeedbackReject):
		if current.Status != core.VerificationRejected {
			t.Errorf("status = %q for a REJECT response", current.Status)
		}
	default:
		t.Errorf("user response = %q, want one of the raced answers", current.UserResponse)
	}
}

func TestCancel(t *testing.T) {
	verifier, _, repo := newVerifier(t)

	req, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !verifier.Cancel(context.Background(), req.ID) {
		t.Error("Cancel returned false for an existing request")
	}
	current, err := repo.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if current.Status != core.VerificationCanceled {
		t.Errorf("status = %q, want CANCELED", current.Status)
	}

	if verifier.Cancel(context.Background(), "no-such-id") {
		t.Error("Cancel returned true for a missing request")
	}
}

func TestExpireRequests(t *testing.T) {
	verifier, _, repo := newVerifier(t)

	// One request past its expiry, one still fresh
	stale := &core.VerificationRequest{
		ID:          "stale",
		UserID:      "u1",
		EmailID:     "e1",
		Status:      core.VerificationPending,
		Token:       "tok-stale",
		GeneratedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
	if err := repo.SaveRequest(context.Background(), stale); err != nil {
		t.Fatalf("SaveRequest failed: %v", err)
	}
	if _, err := verifier.Generate(context.Background(), "u1", testEmail(), 0.55); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	count, err := verifier.ExpireRequests(context.Background())
	if err != nil {
		t.Fatalf("ExpireRequests failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expired %d requests, want 1", count)
	}

	current, err := repo.GetRequest(context.Background(), "stale")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if current.Status != core.VerificationExpired {
		t.Errorf("status = %q, want EXPIRED", current.Status)
	}
}
