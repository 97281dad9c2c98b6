package core_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/adapters/store"
	"github.com/mikey/newsletter-filter/internal/core"
)

func testThresholds() core.PriorityThresholds {
	return core.PriorityThresholds{
		ContradictionMin:   0.8,
		ConfirmSurpriseMax: 0.2,
		BorderlineLow:      0.4,
		BorderlineHigh:     0.6,
	}
}

func testLearningConfig() core.LearningConfig {
	return core.LearningConfig{
		LearningRate:    0.1,
		MinConfidence:   0.1,
		DecayTrigger:    0.6,
		ReputationDelta: 0.1,
		WeightRate:      0.05,
		MinWeight:       0.05,
		MaxWeight:       1.0,
		AssignDelta:     1.0,
		RemoveDelta:     -0.5,
	}
}

func newLearner(s *store.MemoryStore, analyzers []core.SignalAnalyzer) *core.LearningService {
	return core.NewLearningService(s, s, s, s, analyzers, zap.NewNop(), testLearningConfig())
}

func saveSnapshot(t *testing.T, s *store.MemoryStore, userID, emailID string, confidence float64, features map[string]float64) {
	t.Helper()
	err := s.SaveSnapshot(context.Background(), &core.DetectionSnapshot{
		UserID:       userID,
		EmailID:      emailID,
		Sender:       "news@example.com",
		SenderDomain: "example.com",
		Subject:      "Weekly roundup",
		IsNewsletter: confidence >= 0.5,
		Confidence:   confidence,
		Features:     features,
		AnalyzedAt:   time.Now(),
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
}

func TestFeedbackPriority(t *testing.T) {
	tests := []struct {
		name       string
		typ        core.FeedbackType
		confidence float64
		want       core.FeedbackPriority
	}{
		{"reject of confident decision", core.FeedbackReject, 0.9, core.PriorityHigh},
		{"confirm of dismissed decision", core.FeedbackConfirm, 0.1, core.PriorityHigh},
		{"confirm on the borderline", core.FeedbackConfirm, 0.5, core.PriorityMedium},
		{"reject on the borderline", core.FeedbackReject, 0.5, core.PriorityMedium},
		{"verify request", core.FeedbackVerify, 0.9, core.PriorityMedium},
		{"uncertain", core.FeedbackUncertain, 0.9, core.PriorityLow},
		{"ignore", core.FeedbackIgnore, 0.1, core.PriorityLow},
		{"ordinary confirm", core.FeedbackConfirm, 0.9, core.PriorityMedium},
		{"ordinary reject", core.FeedbackReject, 0.2, core.PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			svc := core.NewFeedbackService(s, s, nil, nil, zap.NewNop(), testThresholds())
			saveSnapshot(t, s, "u1", "e1", tt.confidence, nil)

			item, err := svc.Collect(context.Background(), "u1", "e1", tt.typ, "")
			if err != nil {
				t.Fatalf("Collect failed: %v", err)
			}
			if item.Priority != tt.want {
				t.Errorf("priority = %q, want %q", item.Priority, tt.want)
			}
		})
	}
}

func TestCollectWithoutSnapshotUsesNeutralPrior(t *testing.T) {
	s := newTestStore(t)
	svc := core.NewFeedbackService(s, s, nil, nil, zap.NewNop(), testThresholds())

	item, err := svc.Collect(context.Background(), "u1", "missing", core.FeedbackConfirm, "")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if item.Confidence != 0.5 {
		t.Errorf("prior confidence = %v, want the neutral 0.5", item.Confidence)
	}
	// 0.5 sits inside the borderline band
	if item.Priority != core.PriorityMedium {
		t.Errorf("priority = %q, want MEDIUM", item.Priority)
	}
}

func TestCollectResolvesPendingVerification(t *testing.T) {
	s := newTestStore(t)
	verifier := core.NewVerificationService(s, zap.NewNop(), time.Hour, time.Hour)
	svc := core.NewFeedbackService(s, s, verifier, nil, zap.NewNop(), testThresholds())
	verifier.BindCollector(svc)

	email := testEmail()
	saveSnapshot(t, s, "u1", email.ID, 0.5, nil)
	req, err := verifier.Generate(context.Background(), "u1", email, 0.5)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := svc.Collect(context.Background(), "u1", email.ID, core.FeedbackReject, ""); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	current, err := s.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if current.Status != core.VerificationRejected {
		t.Errorf("request status = %q, want REJECTED", current.Status)
	}
}

func TestCollectFeedsLearner(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)
	svc := core.NewFeedbackService(s, s, nil, learner, zap.NewNop(), testThresholds())
	saveSnapshot(t, s, "u1", "e1", 0.9, nil)

	item, err := svc.Collect(context.Background(), "u1", "e1", core.FeedbackConfirm, "")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if !item.Processed {
		t.Error("expected feedback to be marked processed after learning")
	}
	if item.ProcessedAt == nil {
		t.Error("expected ProcessedAt to be set")
	}

	stored, err := s.GetFeedback(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetFeedback failed: %v", err)
	}
	if !stored.Processed {
		t.Error("processed flag not persisted")
	}

	rep, err := s.GetReputation(context.Background(), "news@example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if rep == nil {
		t.Fatal("expected the sender's reputation to move")
	}
	if rep.Score <= 0.5 {
		t.Errorf("reputation = %v, want above the 0.5 prior after a CONFIRM", rep.Score)
	}
}
