package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// CliFilter implements a command-line interface for newsletter detection
type CliFilter struct {
	service *core.DetectionService
	logger  *zap.Logger
	verbose bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.DetectionService, logger *zap.Logger, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		service: service,
		logger:  logger,
		verbose: verbose,
	}, nil
}

// ProcessEmail classifies an email and displays the results
func (f *CliFilter) ProcessEmail(ctx context.Context, userID string, email *core.Email) (*core.DetectionResult, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.From))

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.From)
	fmt.Printf("To: %s\n", email.To)
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.Body))

	// Print body preview if verbose
	if f.verbose {
		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Printf("\nBody preview:\n%s\n", preview)
	}

	fmt.Printf("\n")

	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Running signal analyzers...\n")
	startTime := time.Now()
	result, err := f.service.AnalyzeEmail(ctx, userID, email)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	// Print per-signal breakdown
	fmt.Printf("\n=== Signals ===\n")
	for _, score := range result.Scores {
		fmt.Printf("%-20s score=%.4f confidence=%.4f  %s\n",
			score.Method, score.Score, score.Confidence, score.Reason)
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Is newsletter: %t\n", result.IsNewsletter)
	fmt.Printf("Combined score: %.4f\n", result.CombinedScore)
	fmt.Printf("Needs verification: %t\n", result.NeedsVerification)
	fmt.Printf("Processing time: %v\n", duration)

	return result, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
