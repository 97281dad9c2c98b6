package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CategoryService assigns categories above a confidence threshold, applies
// manual overrides at maximum confidence and keeps per-user preferences
type CategoryService struct {
	matcher   CategoryMatcher
	repo      CategoryRepository
	learner   *LearningService
	logger    *zap.Logger
	threshold float64
}

// NewCategoryService creates a new category service
func NewCategoryService(
	matcher CategoryMatcher,
	repo CategoryRepository,
	learner *LearningService,
	logger *zap.Logger,
	threshold float64,
) *CategoryService {
	return &CategoryService{
		matcher:   matcher,
		repo:      repo,
		learner:   learner,
		logger:    logger,
		threshold: threshold,
	}
}

// Categorize asks the matcher for candidates, keeps those at or above the
// confidence threshold, saves them as automatic assignments and returns
// the resolved categories. Candidates below the threshold are dropped
// silently; absence of a category is a valid outcome.
func (s *CategoryService) Categorize(ctx context.Context, content *NewsletterContent) ([]*Category, error) {
	candidates, err := s.matcher.MatchCategories(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to match categories: %w", err)
	}

	var categories []*Category
	for _, candidate := range candidates {
		if candidate.Confidence < s.threshold {
			continue
		}
		category, err := s.repo.GetCategory(ctx, candidate.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve category: %w", err)
		}
		if category == nil {
			// The matcher proposed a category that no longer exists
			s.logger.Warn("Dropping candidate for unknown category",
				zap.String("newsletter_id", content.NewsletterID),
				zap.String("category_id", candidate.CategoryID))
			continue
		}

		assignment := &CategoryAssignment{
			NewsletterID: content.NewsletterID,
			CategoryID:   candidate.CategoryID,
			Confidence:   Clamp01(candidate.Confidence),
			IsManual:     false,
			AssignedAt:   time.Now(),
		}
		if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
			return nil, fmt.Errorf("failed to save assignment: %w", err)
		}
		categories = append(categories, category)
	}

	s.logger.Debug("Categorized newsletter",
		zap.String("newsletter_id", content.NewsletterID),
		zap.Int("candidates", len(candidates)),
		zap.Int("assigned", len(categories)))
	return categories, nil
}

// Assign creates a manual assignment. Manual assignments always carry
// confidence 1.0, and conflicting automatic assignments for the same
// newsletter are decayed as negative examples.
func (s *CategoryService) Assign(ctx context.Context, newsletterID, categoryID, userID string) (*CategoryAssignment, error) {
	category, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category: %w", err)
	}
	if category == nil {
		return nil, fmt.Errorf("%w: id %q", ErrCategoryNotFound, categoryID)
	}

	assignment := &CategoryAssignment{
		NewsletterID: newsletterID,
		CategoryID:   categoryID,
		Confidence:   1.0,
		IsManual:     true,
		AssignedAt:   time.Now(),
	}
	if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to save manual assignment: %w", err)
	}

	s.logger.Info("Manual category assignment",
		zap.String("newsletter_id", newsletterID),
		zap.String("category_id", categoryID),
		zap.String("user_id", userID))

	if s.learner != nil {
		if err := s.learner.DecayConflictingAssignments(ctx, newsletterID, categoryID); err != nil {
			s.logger.Error("Failed to decay conflicting assignments",
				zap.Error(err),
				zap.String("newsletter_id", newsletterID))
		}
		if userID != "" {
			if err := s.learner.AdjustPreference(ctx, userID, categoryID, s.learner.Config().AssignDelta); err != nil {
				s.logger.Error("Failed to adjust preference after assignment",
					zap.Error(err),
					zap.String("user_id", userID))
			}
		}
	}
	return assignment, nil
}

// Remove deletes an assignment and reports whether it existed. An explicit
// removal is a negative preference signal for the user.
func (s *CategoryService) Remove(ctx context.Context, newsletterID, categoryID, userID string) (bool, error) {
	removed, err := s.repo.RemoveAssignment(ctx, newsletterID, categoryID)
	if err != nil {
		return false, fmt.Errorf("failed to remove assignment: %w", err)
	}
	if removed && s.learner != nil && userID != "" {
		if err := s.learner.AdjustPreference(ctx, userID, categoryID, s.learner.Config().RemoveDelta); err != nil {
			s.logger.Error("Failed to adjust preference after removal",
				zap.Error(err),
				zap.String("user_id", userID))
		}
	}
	return removed, nil
}

// CategoriesForNewsletter returns the current assignments for a newsletter
func (s *CategoryService) CategoriesForNewsletter(ctx context.Context, newsletterID string) ([]*CategoryAssignment, error) {
	assignments, err := s.repo.GetAssignments(ctx, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return assignments, nil
}

// ListForUser returns all categories ordered by the user's preference,
// descending, with ties broken by name
func (s *CategoryService) ListForUser(ctx context.Context, userID string) ([]*Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	var prefs map[string]float64
	if s.learner != nil && userID != "" {
		prefs, err = s.learner.preferences.ListPreferences(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load preferences: %w", err)
		}
	}

	sort.SliceStable(categories, func(i, j int) bool {
		pi, pj := prefs[categories[i].ID], prefs[categories[j].ID]
		if pi != pj {
			return pi > pj
		}
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

// CreateCategory adds a category to the tree, keeping the parent's
// children list consistent
func (s *CategoryService) CreateCategory(ctx context.Context, name, description, parentID, icon, color string) (*Category, error) {
	now := time.Now()
	category := &Category{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		ParentID:    parentID,
		Icon:        icon,
		Color:       color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if parentID != "" {
		parent, err := s.repo.GetCategory(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent category: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("%w: parent id %q", ErrCategoryNotFound, parentID)
		}
		parent.Children = append(parent.Children, category.ID)
		parent.UpdatedAt = now
		if err := s.repo.SaveCategory(ctx, parent); err != nil {
			return nil, fmt.Errorf("failed to update parent category: %w", err)
		}
	}

	if err := s.repo.SaveCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to save category: %w", err)
	}
	return category, nil
}
