package core_test

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

func feedbackItem(typ core.FeedbackType, priority core.FeedbackPriority, features map[string]float64) *core.FeedbackItem {
	return &core.FeedbackItem{
		ID:           "f1",
		UserID:       "u1",
		EmailID:      "e1",
		Sender:       "news@example.com",
		SenderDomain: "example.com",
		Type:         typ,
		Priority:     priority,
		Features:     features,
		Timestamp:    time.Now(),
	}
}

func TestReputationStartsNeutral(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	item := feedbackItem(core.FeedbackConfirm, core.PriorityMedium, nil)
	if err := learner.ProcessFeedback(context.Background(), item); err != nil {
		t.Fatalf("ProcessFeedback failed: %v", err)
	}

	rep, err := s.GetReputation(context.Background(), "news@example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if math.Abs(rep.Score-0.6) > 1e-9 {
		t.Errorf("sender reputation = %v, want 0.5 + 0.1", rep.Score)
	}
	if rep.SampleCount != 1 {
		t.Errorf("sample count = %d, want 1", rep.SampleCount)
	}

	domain, err := s.GetReputation(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if math.Abs(domain.Score-0.55) > 1e-9 {
		t.Errorf("domain reputation = %v, want 0.5 + 0.05", domain.Score)
	}
}

func TestReputationHighPriorityDoublesStep(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	item := feedbackItem(core.FeedbackReject, core.PriorityHigh, nil)
	if err := learner.ProcessFeedback(context.Background(), item); err != nil {
		t.Fatalf("ProcessFeedback failed: %v", err)
	}

	rep, err := s.GetReputation(context.Background(), "news@example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if math.Abs(rep.Score-0.3) > 1e-9 {
		t.Errorf("sender reputation = %v, want 0.5 - 2*0.1", rep.Score)
	}
}

func TestReputationClamped(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	err := s.SaveReputation(context.Background(), &core.SenderReputation{
		Key:   "news@example.com",
		Score: 0.05,
	})
	if err != nil {
		t.Fatalf("SaveReputation failed: %v", err)
	}

	item := feedbackItem(core.FeedbackReject, core.PriorityHigh, nil)
	if err := learner.ProcessFeedback(context.Background(), item); err != nil {
		t.Fatalf("ProcessFeedback failed: %v", err)
	}

	rep, err := s.GetReputation(context.Background(), "news@example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if rep.Score != 0 {
		t.Errorf("reputation = %v, want clamped to 0", rep.Score)
	}
}

func TestProcessFeedbackSkipsNonJudgments(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	for _, typ := range []core.FeedbackType{core.FeedbackUncertain, core.FeedbackIgnore, core.FeedbackVerify} {
		item := feedbackItem(typ, core.PriorityLow, nil)
		if err := learner.ProcessFeedback(context.Background(), item); err != nil {
			t.Fatalf("ProcessFeedback(%s) failed: %v", typ, err)
		}
	}

	rep, err := s.GetReputation(context.Background(), "news@example.com")
	if err != nil {
		t.Fatalf("GetReputation failed: %v", err)
	}
	if rep != nil {
		t.Error("non-judgment feedback must not move reputation")
	}
}

func TestWeightAdjustment(t *testing.T) {
	s := newTestStore(t)
	analyzers := []core.SignalAnalyzer{
		&stubAnalyzer{method: "agrees", weight: 0.4},
		&stubAnalyzer{method: "disagrees", weight: 0.4},
	}
	learner := newLearner(s, analyzers)

	// CONFIRM: the high-scoring signal agreed, the low-scoring one did not
	item := feedbackItem(core.FeedbackConfirm, core.PriorityMedium, map[string]float64{
		"agrees":    0.9,
		"disagrees": 0.1,
	})
	if err := learner.ProcessFeedback(context.Background(), item); err != nil {
		t.Fatalf("ProcessFeedback failed: %v", err)
	}

	weights, err := s.GetWeights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetWeights failed: %v", err)
	}
	if math.Abs(weights["agrees"]-0.45) > 1e-9 {
		t.Errorf("agreeing weight = %v, want 0.4 + 0.05", weights["agrees"])
	}
	if math.Abs(weights["disagrees"]-0.35) > 1e-9 {
		t.Errorf("disagreeing weight = %v, want 0.4 - 0.05", weights["disagrees"])
	}
}

func TestWeightBounds(t *testing.T) {
	s := newTestStore(t)
	analyzers := []core.SignalAnalyzer{&stubAnalyzer{method: "a", weight: 0.4}}
	learner := newLearner(s, analyzers)

	if err := s.SaveWeight(context.Background(), "u1", "a", 0.07); err != nil {
		t.Fatalf("SaveWeight failed: %v", err)
	}

	// HIGH priority reject with an agreeing-newsletter signal: -2*0.05
	item := feedbackItem(core.FeedbackReject, core.PriorityHigh, map[string]float64{"a": 0.9})
	if err := learner.ProcessFeedback(context.Background(), item); err != nil {
		t.Fatalf("ProcessFeedback failed: %v", err)
	}

	weights, err := s.GetWeights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetWeights failed: %v", err)
	}
	if weights["a"] != 0.05 {
		t.Errorf("weight = %v, want floored at 0.05", weights["a"])
	}
}

func TestDecayConflictingAssignments(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	assignments := []*core.CategoryAssignment{
		{NewsletterID: "n1", CategoryID: "manual", Confidence: 1.0, IsManual: true},
		{NewsletterID: "n1", CategoryID: "chosen", Confidence: 0.9},
		{NewsletterID: "n1", CategoryID: "conflicting", Confidence: 0.9},
		{NewsletterID: "n1", CategoryID: "weak", Confidence: 0.5},
		{NewsletterID: "n1", CategoryID: "near-floor", Confidence: 0.15},
	}
	for _, a := range assignments {
		if err := s.SaveAssignment(context.Background(), a); err != nil {
			t.Fatalf("SaveAssignment failed: %v", err)
		}
	}

	if err := learner.DecayConflictingAssignments(context.Background(), "n1", "chosen"); err != nil {
		t.Fatalf("DecayConflictingAssignments failed: %v", err)
	}

	got, err := s.GetAssignments(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetAssignments failed: %v", err)
	}
	byCategory := make(map[string]*core.CategoryAssignment)
	for _, a := range got {
		byCategory[a.CategoryID] = a
	}

	if byCategory["manual"].Confidence != 1.0 {
		t.Errorf("manual assignment decayed to %v", byCategory["manual"].Confidence)
	}
	if byCategory["chosen"].Confidence != 0.9 {
		t.Errorf("the chosen category decayed to %v", byCategory["chosen"].Confidence)
	}
	if math.Abs(byCategory["conflicting"].Confidence-0.8) > 1e-9 {
		t.Errorf("conflicting assignment = %v, want 0.9 - 0.1", byCategory["conflicting"].Confidence)
	}
	if byCategory["conflicting"].IsManual {
		t.Error("decayed assignment must stay automatic")
	}
	if byCategory["weak"].Confidence != 0.5 {
		t.Errorf("assignment at or below the trigger decayed to %v", byCategory["weak"].Confidence)
	}
	if byCategory["near-floor"].Confidence != 0.15 {
		t.Errorf("assignment below the trigger decayed to %v", byCategory["near-floor"].Confidence)
	}
}

func TestDecayFloorUnderRepeatedConflicts(t *testing.T) {
	s := newTestStore(t)
	cfg := testLearningConfig()
	// A rate large enough that a single decay would overshoot the floor
	cfg.LearningRate = 0.7
	learner := core.NewLearningService(s, s, s, s, nil, zap.NewNop(), cfg)

	assignments := []*core.CategoryAssignment{
		{NewsletterID: "n1", CategoryID: "overshoot", Confidence: 0.65},
		{NewsletterID: "n1", CategoryID: "strong", Confidence: 0.95},
	}
	for _, a := range assignments {
		if err := s.SaveAssignment(context.Background(), a); err != nil {
			t.Fatalf("SaveAssignment failed: %v", err)
		}
	}

	for i := 0; i < 5; i++ {
		if err := learner.DecayConflictingAssignments(context.Background(), "n1", "manual"); err != nil {
			t.Fatalf("DecayConflictingAssignments failed on pass %d: %v", i, err)
		}

		got, err := s.GetAssignments(context.Background(), "n1")
		if err != nil {
			t.Fatalf("GetAssignments failed: %v", err)
		}
		for _, a := range got {
			if a.Confidence < 0.1 {
				t.Fatalf("pass %d: %s confidence = %v, below the 0.1 floor", i, a.CategoryID, a.Confidence)
			}
		}
	}

	got, err := s.GetAssignments(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetAssignments failed: %v", err)
	}
	byCategory := make(map[string]float64)
	for _, a := range got {
		byCategory[a.CategoryID] = a.Confidence
	}
	// 0.65 - 0.7 overshoots, so the first pass pins it at the floor
	if byCategory["overshoot"] != 0.1 {
		t.Errorf("overshoot confidence = %v, want pinned at 0.1", byCategory["overshoot"])
	}
	// 0.95 decays to 0.25 once, then sits below the trigger untouched
	if math.Abs(byCategory["strong"]-0.25) > 1e-9 {
		t.Errorf("strong confidence = %v, want 0.25 after a single decay", byCategory["strong"])
	}
}

func TestAdjustPreferenceClamps(t *testing.T) {
	s := newTestStore(t)
	learner := newLearner(s, nil)

	// Two assignments in a row saturate at 1.0
	for i := 0; i < 2; i++ {
		if err := learner.AdjustPreference(context.Background(), "u1", "c1", 1.0); err != nil {
			t.Fatalf("AdjustPreference failed: %v", err)
		}
	}
	pref, err := s.GetPreference(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if pref != 1.0 {
		t.Errorf("preference = %v, want clamped to 1.0", pref)
	}

	if err := learner.AdjustPreference(context.Background(), "u1", "c1", -0.5); err != nil {
		t.Fatalf("AdjustPreference failed: %v", err)
	}
	pref, err = s.GetPreference(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if pref != 0.5 {
		t.Errorf("preference = %v, want 0.5", pref)
	}
}
