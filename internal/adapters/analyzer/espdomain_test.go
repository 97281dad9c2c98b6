package analyzer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

func TestESPDomainAnalyzer(t *testing.T) {
	a := NewESPDomainAnalyzer(zap.NewNop(), 0.2)

	tests := []struct {
		name  string
		email *core.Email
		want  float64
	}{
		{
			"known esp domain",
			&core.Email{ID: "e1", From: "campaign@mailchimp.com"},
			1.0,
		},
		{
			"esp subdomain",
			&core.Email{ID: "e1", From: "bounce@mg.mailgun.org"},
			1.0,
		},
		{
			"esp in return path only",
			&core.Email{
				ID:   "e1",
				From: "news@example.com",
				Headers: map[string][]string{
					"Return-Path": {"<bounce@sendgrid.net>"},
				},
			},
			1.0,
		},
		{
			"dedicated mail subdomain",
			&core.Email{ID: "e1", From: "updates@mail.example.com"},
			0.5,
		},
		{
			"ordinary domain",
			&core.Email{ID: "e1", From: "alice@example.com"},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := a.Analyze(context.Background(), tt.email)
			if score.Score != tt.want {
				t.Errorf("score = %v, want %v (%s)", score.Score, tt.want, score.Reason)
			}
			if score.Confidence != 0.85 {
				t.Errorf("confidence = %v, want 0.85", score.Confidence)
			}
		})
	}
}

func TestESPDomainAnalyzerNoInput(t *testing.T) {
	a := NewESPDomainAnalyzer(zap.NewNop(), 0.2)

	score := a.Analyze(context.Background(), &core.Email{ID: "e1"})
	if score.Score != 0 || score.Confidence != 0.1 {
		t.Errorf("got score %v confidence %v, want degraded 0/0.1", score.Score, score.Confidence)
	}
}
