package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/adapters/bedrock"
	"github.com/mikey/newsletter-filter/internal/adapters/gemini"
	"github.com/mikey/newsletter-filter/internal/adapters/keyword"
	"github.com/mikey/newsletter-filter/internal/adapters/openai"
	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// MatcherFactory creates category matchers based on configuration
type MatcherFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewMatcherFactory creates a new matcher factory
func NewMatcherFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *MatcherFactory {
	return &MatcherFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateMatcher creates a category matcher based on the configuration
func (f *MatcherFactory) CreateMatcher(categories core.CategoryRepository) (core.CategoryMatcher, error) {
	matcherCfg := f.cfg.GetMatcher()

	switch matcherCfg.Provider {
	case "keyword":
		return keyword.NewKeywordMatcher(f.cfg.GetCategory().Keywords, f.logger), nil
	case "bedrock":
		factory := bedrock.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateMatcher(categories)
	case "gemini":
		factory := gemini.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateMatcher(categories)
	case "openai":
		factory := openai.NewFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateMatcher(categories)
	default:
		return nil, fmt.Errorf("unsupported matcher provider: %s", matcherCfg.Provider)
	}
}
