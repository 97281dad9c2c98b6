package ports

import (
	"github.com/mikey/newsletter-filter/internal/core"
)

// Store bundles every repository one persistence backend provides
type Store interface {
	core.FeedbackRepository
	core.VerificationRepository
	core.CategoryRepository
	core.PreferenceRepository
	core.ReputationRepository
	core.WeightRepository
	core.SnapshotRepository

	// Stop stops background maintenance and releases the backend
	Stop()
}
