package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/adapters/analyzer"
	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
)

// AnalyzerFactory creates the signal analyzer set based on configuration
type AnalyzerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAnalyzerFactory creates a new analyzer factory
func NewAnalyzerFactory(cfg *config.Config, logger *zap.Logger) *AnalyzerFactory {
	return &AnalyzerFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAnalyzers creates the full analyzer set with configured base weights
func (f *AnalyzerFactory) CreateAnalyzers(reputation core.ReputationRepository) ([]core.SignalAnalyzer, error) {
	detectionCfg, err := f.cfg.GetDetection()
	if err != nil {
		return nil, fmt.Errorf("invalid detection configuration: %w", err)
	}

	weightFor := func(method string, fallback float64) float64 {
		if weight, ok := detectionCfg.Weights[method]; ok {
			return weight
		}
		return fallback
	}

	return []core.SignalAnalyzer{
		analyzer.NewHeaderAnalyzer(f.logger, weightFor("header_analysis", 0.4)),
		analyzer.NewSenderAnalyzer(f.logger, weightFor("sender_pattern", 0.3)),
		analyzer.NewESPDomainAnalyzer(f.logger, weightFor("esp_domain", 0.2)),
		analyzer.NewReputationAnalyzer(reputation, f.logger, weightFor("sender_reputation", 0.1)),
	}, nil
}
