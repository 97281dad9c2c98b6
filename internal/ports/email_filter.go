package ports

import (
	"context"

	"github.com/mikey/newsletter-filter/internal/core"
)

// EmailFilter defines the interface for email ingest surfaces
type EmailFilter interface {
	// ProcessEmail classifies an email for a user and returns the detection result
	ProcessEmail(ctx context.Context, userID string, email *core.Email) (*core.DetectionResult, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
