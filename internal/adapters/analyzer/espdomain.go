package analyzer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

const (
	// espDomainConfidence is high: the sending infrastructure is a
	// structural fact
	espDomainConfidence = 0.85

	// mailSubdomainScore: a dedicated mail subdomain is weaker evidence
	// than a known ESP domain
	mailSubdomainScore = 0.5
)

// mailSubdomainPrefixes are subdomain labels dedicated to bulk sending
var mailSubdomainPrefixes = []string{
	"mail.",
	"email.",
	"news.",
	"newsletter.",
	"mailer.",
	"e.",
	"em.",
	"marketing.",
}

// ESPDomainAnalyzer scores the sending domain against known email service
// providers
type ESPDomainAnalyzer struct {
	logger *zap.Logger
	weight float64
}

// NewESPDomainAnalyzer creates a new ESP-domain analyzer
func NewESPDomainAnalyzer(logger *zap.Logger, weight float64) *ESPDomainAnalyzer {
	return &ESPDomainAnalyzer{
		logger: logger,
		weight: weight,
	}
}

// Method returns the analyzer's score tag
func (a *ESPDomainAnalyzer) Method() string {
	return "esp_domain"
}

// Weight returns the default contribution weight
func (a *ESPDomainAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze scores the sender and Return-Path domains against the ESP list
func (a *ESPDomainAnalyzer) Analyze(ctx context.Context, email *core.Email) *core.DetectionScore {
	if email == nil || (email.From == "" && email.Headers == nil) {
		return failureScore(a.Method(), "no sender or headers available")
	}

	domains := []string{email.SenderDomain()}
	if returnPath := email.Header("Return-Path"); returnPath != "" {
		address, _ := splitAddress(returnPath)
		if _, domain := splitLocal(address); domain != "" {
			domains = append(domains, domain)
		}
	}

	best := 0.0
	reason := "no ESP domain matched"
	for _, domain := range domains {
		if domain == "" {
			continue
		}
		for _, esp := range espSendingDomains {
			if domain == esp || strings.HasSuffix(domain, "."+esp) {
				return &core.DetectionScore{
					Method:     a.Method(),
					Score:      1.0,
					Confidence: espDomainConfidence,
					Reason:     "ESP domain " + esp,
				}
			}
		}
		for _, prefix := range mailSubdomainPrefixes {
			if strings.HasPrefix(domain, prefix) && mailSubdomainScore > best {
				best = mailSubdomainScore
				reason = "dedicated mail subdomain " + domain
			}
		}
	}

	return &core.DetectionScore{
		Method:     a.Method(),
		Score:      best,
		Confidence: espDomainConfidence,
		Reason:     reason,
	}
}
