package gemini

import (
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// Factory creates new instances of GeminiMatcher
type Factory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for GeminiMatcher instances
func NewFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateMatcher creates a new GeminiMatcher
func (f *Factory) CreateMatcher(categories core.CategoryRepository) (core.CategoryMatcher, error) {
	geminiCfg := f.cfg.GetGemini()

	return NewGeminiMatcher(
		geminiCfg.APIKey,
		categories,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		geminiCfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	)
}
