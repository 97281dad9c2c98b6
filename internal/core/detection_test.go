package core_test

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/adapters/store"
	"github.com/mikey/newsletter-filter/internal/core"
)

// stubAnalyzer returns a fixed score under a fixed method tag
type stubAnalyzer struct {
	method string
	score  float64
	weight float64
}

func (a *stubAnalyzer) Method() string  { return a.method }
func (a *stubAnalyzer) Weight() float64 { return a.weight }

func (a *stubAnalyzer) Analyze(_ context.Context, _ *core.Email) *core.DetectionScore {
	return &core.DetectionScore{
		Method:     a.method,
		Score:      a.score,
		Confidence: 0.9,
		Reason:     "stub",
	}
}

type trustedAll struct{}

func (trustedAll) IsTrusted(string) bool { return true }

func testBands() core.DetectionBands {
	return core.DetectionBands{
		NewsletterThreshold: 0.7,
		RejectThreshold:     0.3,
		GuessThreshold:      0.5,
	}
}

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore(zap.NewNop(), time.Hour)
	t.Cleanup(s.Stop)
	return s
}

func testEmail() *core.Email {
	return &core.Email{
		ID:      "email-1",
		From:    "newsletter@example.com",
		To:      []string{"alice@example.net"},
		Subject: "Weekly roundup",
		Headers: map[string][]string{},
	}
}

func newDetectionService(analyzers []core.SignalAnalyzer, s *store.MemoryStore, verifier *core.VerificationService, trusted core.TrustedDomains) *core.DetectionService {
	return core.NewDetectionService(analyzers, s, s, verifier, trusted, zap.NewNop(), testBands(), time.Hour)
}

func TestCombineNormalizesByWeightSum(t *testing.T) {
	s := newTestStore(t)
	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "a", score: 1.0, weight: 0.6},
		&stubAnalyzer{method: "b", score: 0.5, weight: 0.4},
	}, s, nil, nil)

	result, err := svc.AnalyzeEmail(context.Background(), "u1", testEmail())
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}

	want := (0.6*1.0 + 0.4*0.5) / 1.0
	if math.Abs(result.CombinedScore-want) > 1e-9 {
		t.Errorf("combined score = %v, want %v", result.CombinedScore, want)
	}
	if !result.IsNewsletter {
		t.Error("expected newsletter at score 0.8")
	}
	if result.NeedsVerification {
		t.Error("unexpected verification above the newsletter threshold")
	}
}

func TestCombineBands(t *testing.T) {
	tests := []struct {
		name              string
		scores            []float64
		isNewsletter      bool
		needsVerification bool
	}{
		{"certain newsletter at threshold", []float64{0.7, 0.7}, true, false},
		{"certain non-newsletter at threshold", []float64{0.3, 0.3}, false, false},
		{"ambiguous high guesses newsletter", []float64{0.6, 0.6}, true, true},
		{"ambiguous low guesses non-newsletter", []float64{0.4, 0.4}, false, true},
		{"clear reject", []float64{0.0, 0.1}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			analyzers := make([]core.SignalAnalyzer, len(tt.scores))
			for i, score := range tt.scores {
				analyzers[i] = &stubAnalyzer{method: string(rune('a' + i)), score: score, weight: 0.5}
			}
			svc := newDetectionService(analyzers, s, nil, nil)

			result, err := svc.AnalyzeEmail(context.Background(), "u1", testEmail())
			if err != nil {
				t.Fatalf("AnalyzeEmail failed: %v", err)
			}
			if result.IsNewsletter != tt.isNewsletter {
				t.Errorf("IsNewsletter = %v, want %v (score %v)", result.IsNewsletter, tt.isNewsletter, result.CombinedScore)
			}
			if result.NeedsVerification != tt.needsVerification {
				t.Errorf("NeedsVerification = %v, want %v (score %v)", result.NeedsVerification, tt.needsVerification, result.CombinedScore)
			}
		})
	}
}

func TestCombineZeroWeightSumForcesVerification(t *testing.T) {
	s := newTestStore(t)
	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "a", score: 1.0, weight: 0},
	}, s, nil, nil)

	result, err := svc.AnalyzeEmail(context.Background(), "u1", testEmail())
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}
	if !result.NeedsVerification {
		t.Error("expected verification when no weight is usable")
	}
	if result.CombinedScore != 0 {
		t.Errorf("combined score = %v, want 0", result.CombinedScore)
	}
}

func TestAnalyzeTrustedBypass(t *testing.T) {
	s := newTestStore(t)
	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "a", score: 1.0, weight: 1.0},
	}, s, nil, trustedAll{})

	result, err := svc.AnalyzeEmail(context.Background(), "u1", testEmail())
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}
	if result.IsNewsletter {
		t.Error("trusted sender must never classify as newsletter")
	}
	if result.NeedsVerification {
		t.Error("trusted sender must not open verification")
	}

	snapshot, err := s.GetSnapshot(context.Background(), "u1", "email-1")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snapshot != nil {
		t.Error("trusted bypass must not record a snapshot")
	}
}

func TestAnalyzeRecordsSnapshot(t *testing.T) {
	s := newTestStore(t)
	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "header_analysis", score: 0.9, weight: 1.0},
	}, s, nil, nil)

	email := testEmail()
	result, err := svc.AnalyzeEmail(context.Background(), "u1", email)
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}

	snapshot, err := s.GetSnapshot(context.Background(), "u1", email.ID)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if snapshot == nil {
		t.Fatal("expected a snapshot after analysis")
	}
	if snapshot.Confidence != result.CombinedScore {
		t.Errorf("snapshot confidence = %v, want %v", snapshot.Confidence, result.CombinedScore)
	}
	if snapshot.Sender != email.From {
		t.Errorf("snapshot sender = %q, want %q", snapshot.Sender, email.From)
	}
	if got := snapshot.Features["header_analysis"]; got != 0.9 {
		t.Errorf("snapshot feature = %v, want 0.9", got)
	}
}

func TestAnalyzeOpensVerificationRequest(t *testing.T) {
	s := newTestStore(t)
	verifier := core.NewVerificationService(s, zap.NewNop(), time.Hour, time.Hour)
	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "a", score: 0.5, weight: 1.0},
	}, s, verifier, nil)

	email := testEmail()
	if _, err := svc.AnalyzeEmail(context.Background(), "u1", email); err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}

	pending, err := s.FindPending(context.Background(), "u1", email.ID)
	if err != nil {
		t.Fatalf("FindPending failed: %v", err)
	}
	if pending == nil {
		t.Fatal("expected a pending verification request for an ambiguous score")
	}
	if pending.RequestSentCount != 1 {
		t.Errorf("sent count = %d, want 1", pending.RequestSentCount)
	}

	// Re-analysis reuses the pending request instead of creating another
	if _, err := svc.AnalyzeEmail(context.Background(), "u1", email); err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}
	pending, err = s.FindPending(context.Background(), "u1", email.ID)
	if err != nil {
		t.Fatalf("FindPending failed: %v", err)
	}
	if pending.RequestSentCount != 2 {
		t.Errorf("sent count after re-analysis = %d, want 2", pending.RequestSentCount)
	}
}

func TestAnalyzeAppliesWeightOverrides(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveWeight(context.Background(), "u1", "a", 1.0); err != nil {
		t.Fatalf("SaveWeight failed: %v", err)
	}
	if err := s.SaveWeight(context.Background(), "u1", "b", 0.0); err != nil {
		t.Fatalf("SaveWeight failed: %v", err)
	}

	svc := newDetectionService([]core.SignalAnalyzer{
		&stubAnalyzer{method: "a", score: 1.0, weight: 0.5},
		&stubAnalyzer{method: "b", score: 0.0, weight: 0.5},
	}, s, nil, nil)

	result, err := svc.AnalyzeEmail(context.Background(), "u1", testEmail())
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}
	// With the override the zero-scoring signal is weightless
	if result.CombinedScore != 1.0 {
		t.Errorf("combined score = %v, want 1.0", result.CombinedScore)
	}

	// A different user keeps the defaults
	result, err = svc.AnalyzeEmail(context.Background(), "u2", testEmail())
	if err != nil {
		t.Fatalf("AnalyzeEmail failed: %v", err)
	}
	if result.CombinedScore != 0.5 {
		t.Errorf("combined score without overrides = %v, want 0.5", result.CombinedScore)
	}
}
