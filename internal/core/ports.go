package core

import (
	"context"
	"time"
)

// SignalAnalyzer is one independent newsletter-likelihood heuristic.
// Analyze never returns an error: internal failures are reported as a
// zero score with low confidence so the signal stays in the weighted
// combination.
type SignalAnalyzer interface {
	// Method returns the stable tag for this analyzer's scores
	Method() string

	// Analyze scores one email
	Analyze(ctx context.Context, email *Email) *DetectionScore

	// Weight returns the default contribution weight in the aggregator
	Weight() float64
}

// CategoryMatcher supplies scored category candidates for newsletter content
type CategoryMatcher interface {
	// MatchCategories returns candidate assignments, each with a confidence
	MatchCategories(ctx context.Context, content *NewsletterContent) ([]*CategoryAssignment, error)
}

// FeedbackRepository persists feedback items
type FeedbackRepository interface {
	// SaveFeedback stores a feedback item
	SaveFeedback(ctx context.Context, item *FeedbackItem) error

	// GetFeedback retrieves a feedback item by id
	GetFeedback(ctx context.Context, id string) (*FeedbackItem, error)

	// ListFeedback returns a user's feedback, optionally only unprocessed items
	ListFeedback(ctx context.Context, userID string, onlyUnprocessed bool) ([]*FeedbackItem, error)

	// MarkProcessed flips the processed flag and records the time
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
}

// VerificationRepository persists verification requests
type VerificationRepository interface {
	// SaveRequest inserts or updates a request
	SaveRequest(ctx context.Context, req *VerificationRequest) error

	// GetRequest retrieves a request by id
	GetRequest(ctx context.Context, id string) (*VerificationRequest, error)

	// GetRequestByToken retrieves a request by its token
	GetRequestByToken(ctx context.Context, token string) (*VerificationRequest, error)

	// FindPending returns the PENDING request for (user, email), if any
	FindPending(ctx context.Context, userID, emailID string) (*VerificationRequest, error)

	// ListPending returns all PENDING requests for a user
	ListPending(ctx context.Context, userID string) ([]*VerificationRequest, error)

	// ListExpired returns PENDING requests whose expiry is before now
	ListExpired(ctx context.Context, now time.Time) ([]*VerificationRequest, error)

	// UpdateStatus transitions a request's status
	UpdateStatus(ctx context.Context, id string, status VerificationStatus) error
}

// CategoryRepository persists categories and their assignments
type CategoryRepository interface {
	// SaveCategory inserts or updates a category
	SaveCategory(ctx context.Context, category *Category) error

	// GetCategory retrieves a category by id
	GetCategory(ctx context.Context, id string) (*Category, error)

	// ListCategories returns all categories
	ListCategories(ctx context.Context) ([]*Category, error)

	// SaveAssignment inserts or overwrites a (newsletter, category) assignment
	SaveAssignment(ctx context.Context, assignment *CategoryAssignment) error

	// RemoveAssignment deletes an assignment, reporting whether it existed
	RemoveAssignment(ctx context.Context, newsletterID, categoryID string) (bool, error)

	// GetAssignments returns all assignments for a newsletter
	GetAssignments(ctx context.Context, newsletterID string) ([]*CategoryAssignment, error)
}

// PreferenceRepository persists per-user category preference scores
type PreferenceRepository interface {
	// GetPreference returns the score for (user, category), zero if unset
	GetPreference(ctx context.Context, userID, categoryID string) (float64, error)

	// SavePreference stores the score for (user, category)
	SavePreference(ctx context.Context, userID, categoryID string, score float64) error

	// ListPreferences returns all of a user's preference scores keyed by category
	ListPreferences(ctx context.Context, userID string) (map[string]float64, error)
}

// ReputationRepository persists sender/domain reputation scores
type ReputationRepository interface {
	// GetReputation retrieves the reputation for a sender or domain key
	GetReputation(ctx context.Context, key string) (*SenderReputation, error)

	// SaveReputation stores a reputation entry
	SaveReputation(ctx context.Context, rep *SenderReputation) error
}

// WeightRepository persists per-user analyzer weight overrides
type WeightRepository interface {
	// GetWeights returns a user's weight overrides keyed by analyzer method
	GetWeights(ctx context.Context, userID string) (map[string]float64, error)

	// SaveWeight stores one weight override
	SaveWeight(ctx context.Context, userID, method string, weight float64) error
}

// SnapshotRepository persists detection snapshots for later feedback lookup
type SnapshotRepository interface {
	// SaveSnapshot stores a detection snapshot
	SaveSnapshot(ctx context.Context, snapshot *DetectionSnapshot) error

	// GetSnapshot retrieves the snapshot for (user, email)
	GetSnapshot(ctx context.Context, userID, emailID string) (*DetectionSnapshot, error)

	// Cleanup removes expired snapshots
	Cleanup(ctx context.Context) error
}
