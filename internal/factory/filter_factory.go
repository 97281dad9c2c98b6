package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/adapters/ingest"
	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/ports"
)

// FilterFactory creates email ingest filters based on configuration
type FilterFactory struct {
	cfg       *config.Config
	logger    *zap.Logger
	detection *core.DetectionService
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, detection *core.DetectionService) *FilterFactory {
	return &FilterFactory{
		cfg:       cfg,
		logger:    logger,
		detection: detection,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FilterType {
	case "smtp":
		return ingest.NewSMTPFilter(
			f.detection,
			f.logger,
			serverCfg.ListenAddress,
			serverCfg.NewsletterHeader,
			serverCfg.ScoreHeader,
			serverCfg.ReasonHeader,
			serverCfg.UpstreamAddress,
			serverCfg.DefaultUser,
		), nil
	case "cli":
		return ingest.NewCliFilter(
			f.detection,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
		)
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", serverCfg.FilterType)
	}
}
