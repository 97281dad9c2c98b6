package keyword

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/mikey/newsletter-filter/internal/core"
)

// maxKeywordConfidence caps what keyword evidence alone can claim
const maxKeywordConfidence = 0.85

// KeywordMatcher matches newsletters to categories by keyword occurrence.
// It is the offline fallback when no LLM provider is configured.
type KeywordMatcher struct {
	keywords map[string][]string
	logger   *zap.Logger
}

// NewKeywordMatcher creates a matcher from a category-id to keyword-list map.
// Keywords are normalized so that decorated unicode in subject lines still
// matches plain-ASCII keywords.
func NewKeywordMatcher(keywords map[string][]string, logger *zap.Logger) *KeywordMatcher {
	normalized := make(map[string][]string, len(keywords))
	for categoryID, words := range keywords {
		list := make([]string, 0, len(words))
		for _, word := range words {
			word = normalizeText(word)
			if word != "" {
				list = append(list, word)
			}
		}
		if len(list) > 0 {
			normalized[categoryID] = list
		}
	}

	return &KeywordMatcher{
		keywords: normalized,
		logger:   logger,
	}
}

// MatchCategories scores each configured category by the fraction of its
// keywords found in the newsletter's subject and body
func (m *KeywordMatcher) MatchCategories(ctx context.Context, content *core.NewsletterContent) ([]*core.CategoryAssignment, error) {
	if len(m.keywords) == 0 {
		return nil, nil
	}

	text := normalizeText(content.Subject + "\n" + content.Body)

	var assignments []*core.CategoryAssignment
	for categoryID, words := range m.keywords {
		hits := 0
		for _, word := range words {
			if strings.Contains(text, word) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		confidence := float64(hits) / float64(len(words))
		if confidence > maxKeywordConfidence {
			confidence = maxKeywordConfidence
		}

		m.logger.Debug("Keyword category match",
			zap.String("category_id", categoryID),
			zap.Int("hits", hits),
			zap.Int("keywords", len(words)),
			zap.Float64("confidence", confidence))

		assignments = append(assignments, &core.CategoryAssignment{
			NewsletterID: content.NewsletterID,
			CategoryID:   categoryID,
			Confidence:   confidence,
		})
	}

	// Deterministic order for callers and tests
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Confidence != assignments[j].Confidence {
			return assignments[i].Confidence > assignments[j].Confidence
		}
		return assignments[i].CategoryID < assignments[j].CategoryID
	})

	return assignments, nil
}

// normalizeText lowercases and NFKC-normalizes text so stylized unicode
// (fullwidth forms, ligatures) matches plain keywords
func normalizeText(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
