package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/core"
)

// MemoryStore is an in-memory implementation of the repository interfaces,
// used for tests and single-process deployments
type MemoryStore struct {
	mu          sync.RWMutex
	feedback    map[string]*core.FeedbackItem
	requests    map[string]*core.VerificationRequest
	tokens      map[string]string
	categories  map[string]*core.Category
	assignments map[string]map[string]*core.CategoryAssignment
	preferences map[string]map[string]float64
	reputations map[string]*core.SenderReputation
	weights     map[string]map[string]float64
	snapshots   map[string]*core.DetectionSnapshot
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger, cleanupFreq time.Duration) *MemoryStore {
	s := &MemoryStore{
		feedback:    make(map[string]*core.FeedbackItem),
		requests:    make(map[string]*core.VerificationRequest),
		tokens:      make(map[string]string),
		categories:  make(map[string]*core.Category),
		assignments: make(map[string]map[string]*core.CategoryAssignment),
		preferences: make(map[string]map[string]float64),
		reputations: make(map[string]*core.SenderReputation),
		weights:     make(map[string]map[string]float64),
		snapshots:   make(map[string]*core.DetectionSnapshot),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	// Background cleanup keeps expired snapshots from accumulating
	go s.startCleanupTask()

	return s
}

// SaveFeedback stores a feedback item
func (s *MemoryStore) SaveFeedback(ctx context.Context, item *core.FeedbackItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *item
	s.feedback[item.ID] = &copied
	return nil
}

// GetFeedback retrieves a feedback item by id
func (s *MemoryStore) GetFeedback(ctx context.Context, id string) (*core.FeedbackItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.feedback[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

// ListFeedback returns a user's feedback, optionally only unprocessed items
func (s *MemoryStore) ListFeedback(ctx context.Context, userID string, onlyUnprocessed bool) ([]*core.FeedbackItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*core.FeedbackItem
	for _, item := range s.feedback {
		if item.UserID != userID {
			continue
		}
		if onlyUnprocessed && item.Processed {
			continue
		}
		copied := *item
		items = append(items, &copied)
	}
	return items, nil
}

// MarkProcessed flips the processed flag and records the time
func (s *MemoryStore) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.feedback[id]
	if !ok {
		return nil
	}
	item.Processed = true
	item.ProcessedAt = &processedAt
	return nil
}

// SaveRequest inserts or updates a verification request
func (s *MemoryStore) SaveRequest(ctx context.Context, req *core.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *req
	s.requests[req.ID] = &copied
	s.tokens[req.Token] = req.ID
	return nil
}

// GetRequest retrieves a verification request by id
func (s *MemoryStore) GetRequest(ctx context.Context, id string) (*core.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

// GetRequestByToken retrieves a verification request by token
func (s *MemoryStore) GetRequestByToken(ctx context.Context, token string) (*core.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

// FindPending returns the PENDING request for (user, email), if any
func (s *MemoryStore) FindPending(ctx context.Context, userID, emailID string) (*core.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requests {
		if req.UserID == userID && req.EmailID == emailID && req.Status == core.VerificationPending {
			copied := *req
			return &copied, nil
		}
	}
	return nil, nil
}

// ListPending returns all PENDING requests for a user
func (s *MemoryStore) ListPending(ctx context.Context, userID string) ([]*core.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*core.VerificationRequest
	for _, req := range s.requests {
		if req.UserID == userID && req.Status == core.VerificationPending {
			copied := *req
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

// ListExpired returns PENDING requests whose expiry is before now
func (s *MemoryStore) ListExpired(ctx context.Context, now time.Time) ([]*core.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*core.VerificationRequest
	for _, req := range s.requests {
		if req.Status == core.VerificationPending && req.ExpiresAt.Before(now) {
			copied := *req
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

// UpdateStatus transitions a request's status
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status core.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil
	}
	req.Status = status
	return nil
}

// SaveCategory inserts or updates a category
func (s *MemoryStore) SaveCategory(ctx context.Context, category *core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *category
	copied.Children = append([]string(nil), category.Children...)
	s.categories[category.ID] = &copied
	return nil
}

// GetCategory retrieves a category by id
func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, nil
	}
	copied := *category
	copied.Children = append([]string(nil), category.Children...)
	return &copied, nil
}

// ListCategories returns all categories
func (s *MemoryStore) ListCategories(ctx context.Context) ([]*core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]*core.Category, 0, len(s.categories))
	for _, category := range s.categories {
		copied := *category
		copied.Children = append([]string(nil), category.Children...)
		categories = append(categories, &copied)
	}
	return categories, nil
}

// SaveAssignment inserts or overwrites a (newsletter, category) assignment
func (s *MemoryStore) SaveAssignment(ctx context.Context, assignment *core.CategoryAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory, ok := s.assignments[assignment.NewsletterID]
	if !ok {
		byCategory = make(map[string]*core.CategoryAssignment)
		s.assignments[assignment.NewsletterID] = byCategory
	}
	copied := *assignment
	byCategory[assignment.CategoryID] = &copied
	return nil
}

// RemoveAssignment deletes an assignment, reporting whether it existed
func (s *MemoryStore) RemoveAssignment(ctx context.Context, newsletterID, categoryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory, ok := s.assignments[newsletterID]
	if !ok {
		return false, nil
	}
	if _, ok := byCategory[categoryID]; !ok {
		return false, nil
	}
	delete(byCategory, categoryID)
	return true, nil
}

// GetAssignments returns all assignments for a newsletter
func (s *MemoryStore) GetAssignments(ctx context.Context, newsletterID string) ([]*core.CategoryAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var assignments []*core.CategoryAssignment
	for _, assignment := range s.assignments[newsletterID] {
		copied := *assignment
		assignments = append(assignments, &copied)
	}
	return assignments, nil
}

// GetPreference returns the score for (user, category), zero if unset
func (s *MemoryStore) GetPreference(ctx context.Context, userID, categoryID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.preferences[userID][categoryID], nil
}

// SavePreference stores the score for (user, category)
func (s *MemoryStore) SavePreference(ctx context.Context, userID, categoryID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory, ok := s.preferences[userID]
	if !ok {
		byCategory = make(map[string]float64)
		s.preferences[userID] = byCategory
	}
	byCategory[categoryID] = score
	return nil
}

// ListPreferences returns all of a user's preference scores
func (s *MemoryStore) ListPreferences(ctx context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make(map[string]float64, len(s.preferences[userID]))
	for categoryID, score := range s.preferences[userID] {
		prefs[categoryID] = score
	}
	return prefs, nil
}

// GetReputation retrieves the reputation for a sender or domain key
func (s *MemoryStore) GetReputation(ctx context.Context, key string) (*core.SenderReputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reputations[key]
	if !ok {
		return nil, nil
	}
	copied := *rep
	return &copied, nil
}

// SaveReputation stores a reputation entry
func (s *MemoryStore) SaveReputation(ctx context.Context, rep *core.SenderReputation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rep
	s.reputations[rep.Key] = &copied
	return nil
}

// GetWeights returns a user's weight overrides keyed by analyzer method
func (s *MemoryStore) GetWeights(ctx context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	weights := make(map[string]float64, len(s.weights[userID]))
	for method, weight := range s.weights[userID] {
		weights[method] = weight
	}
	return weights, nil
}

// SaveWeight stores one weight override
func (s *MemoryStore) SaveWeight(ctx context.Context, userID, method string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMethod, ok := s.weights[userID]
	if !ok {
		byMethod = make(map[string]float64)
		s.weights[userID] = byMethod
	}
	byMethod[method] = weight
	return nil
}

// SaveSnapshot stores a detection snapshot
func (s *MemoryStore) SaveSnapshot(ctx context.Context, snapshot *core.DetectionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	s.snapshots[snapshotKey(snapshot.UserID, snapshot.EmailID)] = &copied
	return nil
}

// GetSnapshot retrieves the snapshot for (user, email)
func (s *MemoryStore) GetSnapshot(ctx context.Context, userID, emailID string) (*core.DetectionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[snapshotKey(userID, emailID)]
	if !ok {
		return nil, nil
	}
	if !snapshot.ExpiresAt.IsZero() && time.Now().After(snapshot.ExpiresAt) {
		return nil, nil
	}
	copied := *snapshot
	return &copied, nil
}

// Cleanup removes expired snapshots
func (s *MemoryStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiredCount := 0
	for key, snapshot := range s.snapshots {
		if !snapshot.ExpiresAt.IsZero() && now.After(snapshot.ExpiresAt) {
			delete(s.snapshots, key)
			expiredCount++
		}
	}

	s.logger.Debug("Cleaned up expired snapshots", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired snapshots
func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up snapshots", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	close(s.stopCh)
}

func snapshotKey(userID, emailID string) string {
	return userID + "/" + emailID
}
