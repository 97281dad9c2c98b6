package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/newsletter-filter/internal/config"
	"github.com/mikey/newsletter-filter/internal/core"
	"github.com/mikey/newsletter-filter/internal/factory"
	"github.com/mikey/newsletter-filter/internal/logging"
	"github.com/mikey/newsletter-filter/internal/ports"
	"github.com/mikey/newsletter-filter/internal/trusted"
	"github.com/mikey/newsletter-filter/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAnalyzerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMatcherFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}

	if err := provideStore(container); err != nil {
		return nil, err
	}
	if err := provideServices(container); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideStore registers the persistence store and the repository views
// the services depend on
func provideStore(container *dig.Container) error {
	if err := container.Provide(func(f *factory.StoreFactory) (ports.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}

	if err := container.Provide(func(s ports.Store) core.FeedbackRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.VerificationRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.CategoryRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.PreferenceRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.ReputationRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.WeightRepository { return s }); err != nil {
		return err
	}
	if err := container.Provide(func(s ports.Store) core.SnapshotRepository { return s }); err != nil {
		return err
	}
	return nil
}

// provideServices registers the domain services
func provideServices(container *dig.Container) error {
	// Trusted domains
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.TrustedDomains, error) {
		detectionCfg, err := cfg.GetDetection()
		if err != nil {
			return nil, err
		}
		return trusted.NewChecker(detectionCfg.TrustedDomains, logger), nil
	}); err != nil {
		return err
	}

	// Signal analyzers
	if err := container.Provide(func(f *factory.AnalyzerFactory, reputation core.ReputationRepository) ([]core.SignalAnalyzer, error) {
		return f.CreateAnalyzers(reputation)
	}); err != nil {
		return err
	}

	// Verification workflow
	if err := container.Provide(func(repo core.VerificationRepository, cfg *config.Config, logger *zap.Logger) (*core.VerificationService, error) {
		verificationCfg, err := cfg.GetVerification()
		if err != nil {
			return nil, err
		}
		return core.NewVerificationService(repo, logger, verificationCfg.TTL, verificationCfg.SweepFrequency), nil
	}); err != nil {
		return err
	}

	// Learning service
	if err := container.Provide(func(
		reputation core.ReputationRepository,
		weights core.WeightRepository,
		preferences core.PreferenceRepository,
		categories core.CategoryRepository,
		analyzers []core.SignalAnalyzer,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.LearningService {
		learningCfg := cfg.GetLearning()
		return core.NewLearningService(reputation, weights, preferences, categories, analyzers, logger, core.LearningConfig{
			LearningRate:    learningCfg.LearningRate,
			MinConfidence:   learningCfg.MinConfidence,
			DecayTrigger:    learningCfg.DecayTrigger,
			ReputationDelta: learningCfg.ReputationDelta,
			WeightRate:      learningCfg.WeightRate,
			MinWeight:       learningCfg.MinWeight,
			MaxWeight:       learningCfg.MaxWeight,
			AssignDelta:     learningCfg.AssignDelta,
			RemoveDelta:     learningCfg.RemoveDelta,
		})
	}); err != nil {
		return err
	}

	// Feedback collector, bound to the verifier so resolved requests flow back
	if err := container.Provide(func(
		repo core.FeedbackRepository,
		snapshots core.SnapshotRepository,
		verifier *core.VerificationService,
		learner *core.LearningService,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.FeedbackService {
		feedbackCfg := cfg.GetFeedback()
		collector := core.NewFeedbackService(repo, snapshots, verifier, learner, logger, core.PriorityThresholds{
			ContradictionMin:   feedbackCfg.ContradictionMin,
			ConfirmSurpriseMax: feedbackCfg.ConfirmSurpriseMax,
			BorderlineLow:      feedbackCfg.BorderlineLow,
			BorderlineHigh:     feedbackCfg.BorderlineHigh,
		})
		verifier.BindCollector(collector)
		return collector
	}); err != nil {
		return err
	}

	// Detection aggregator
	if err := container.Provide(func(
		analyzers []core.SignalAnalyzer,
		weights core.WeightRepository,
		snapshots core.SnapshotRepository,
		verifier *core.VerificationService,
		trustedDomains core.TrustedDomains,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.DetectionService, error) {
		detectionCfg, err := cfg.GetDetection()
		if err != nil {
			return nil, err
		}
		bands := core.DetectionBands{
			NewsletterThreshold: detectionCfg.NewsletterThreshold,
			RejectThreshold:     detectionCfg.RejectThreshold,
			GuessThreshold:      detectionCfg.GuessThreshold,
		}
		return core.NewDetectionService(analyzers, weights, snapshots, verifier, trustedDomains, logger, bands, detectionCfg.SnapshotTTL), nil
	}); err != nil {
		return err
	}

	// Category matcher and engine
	if err := container.Provide(func(f *factory.MatcherFactory, categories core.CategoryRepository) (core.CategoryMatcher, error) {
		return f.CreateMatcher(categories)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		matcher core.CategoryMatcher,
		repo core.CategoryRepository,
		learner *core.LearningService,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.CategoryService {
		return core.NewCategoryService(matcher, repo, learner, logger, cfg.GetCategory().Threshold)
	}); err != nil {
		return err
	}

	return nil
}
