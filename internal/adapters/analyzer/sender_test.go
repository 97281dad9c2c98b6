package analyzer

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

func TestSenderPatternScoreTiers(t *testing.T) {
	tests := []struct {
		name string
		from string
		want float64
	}{
		{"bulk prefix", "newsletter@example.com", 0.8},
		{"no-reply prefix", "no-reply@example.com", 0.8},
		{"esp sending domain", "bounce@mail.substack.com", 0.7},
		{"friendly name marker", "The Weekly Brief <brief@example.com>", 0.6},
		{"marker in local part", "dispatch-team@example.com", 0.6},
		{"plain personal address", "alice@example.com", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := senderPatternScore(tt.from)
			if got != tt.want {
				t.Errorf("senderPatternScore(%q) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestSenderAnalyzerSubjectMarker(t *testing.T) {
	a := NewSenderAnalyzer(zap.NewNop(), 0.3)

	email := &core.Email{
		ID:      "e1",
		From:    "alice@example.com",
		Subject: "This week in distributed systems",
	}
	score := a.Analyze(context.Background(), email)
	// No address pattern, only the subject marker
	if math.Abs(score.Score-0.4) > 1e-9 {
		t.Errorf("score = %v, want 0.4", score.Score)
	}
	if score.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", score.Confidence)
	}
}

func TestSenderAnalyzerCombined(t *testing.T) {
	a := NewSenderAnalyzer(zap.NewNop(), 0.3)

	email := &core.Email{
		ID:      "e1",
		From:    "newsletter@example.com",
		Subject: "Issue #42",
	}
	score := a.Analyze(context.Background(), email)
	want := 0.6*0.8 + 0.4*1.0
	if math.Abs(score.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", score.Score, want)
	}
}

func TestSenderAnalyzerNoSender(t *testing.T) {
	a := NewSenderAnalyzer(zap.NewNop(), 0.3)

	score := a.Analyze(context.Background(), &core.Email{ID: "e1"})
	if score.Score != 0 || score.Confidence != 0.1 {
		t.Errorf("got score %v confidence %v, want degraded 0/0.1", score.Score, score.Confidence)
	}
}

func TestSplitAddress(t *testing.T) {
	address, display := splitAddress(`"Tech Digest" <digest@example.com>`)
	if address != "digest@example.com" {
		t.Errorf("address = %q", address)
	}
	if display != "Tech Digest" {
		t.Errorf("display = %q", display)
	}

	address, display = splitAddress("bare@example.com")
	if address != "bare@example.com" || display != "" {
		t.Errorf("bare address parsed as %q / %q", address, display)
	}
}
