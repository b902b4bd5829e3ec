package di

import (
	"context"
	"io"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishguard/internal/adapters/gmail"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"github.com/mikey/phishguard/internal/factory"
	"github.com/mikey/phishguard/internal/fraud"
	"github.com/mikey/phishguard/internal/logging"
	"github.com/mikey/phishguard/internal/ports"
	"github.com/mikey/phishguard/internal/utils"
	"github.com/mikey/phishguard/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container
// for the long-running service. configPath may be empty.
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.New(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}
	return container, nil
}

// provideAnalysis registers everything below the configuration and logger:
// the analysis pipeline, the mailbox scheduler and the email filters
func provideAnalysis(container *dig.Container) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewLLMFactory,
		factory.NewCacheFactory,
		factory.NewReputationFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register LLM client, nil when no provider is configured
	if err := container.Provide(func(f *factory.LLMFactory) (core.LLMClient, error) {
		return f.CreateLLMClient(context.Background())
	}); err != nil {
		return err
	}

	// Register cache repository, nil when disabled
	if err := container.Provide(func(f *factory.CacheFactory) (factory.Repository, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return err
	}

	// Register credential pool and reputation client
	if err := container.Provide(func(f *factory.ReputationFactory) *credentials.Pool {
		return f.CreatePool()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ReputationFactory, pool *credentials.Pool) (core.ReputationClient, error) {
		return f.CreateClient(pool)
	}); err != nil {
		return err
	}

	// Register fraud classifier
	if err := container.Provide(func(
		cfg *config.Config,
		llm core.LLMClient,
		text *utils.TextProcessor,
		logger *zap.Logger,
	) core.FraudClassifier {
		fraudCfg := cfg.GetFraud()
		return fraud.NewClassifier(llm, text, fraud.Config{
			MaxBodySize: fraudCfg.MaxBodySize,
			Timeout:     fraudCfg.Timeout,
		}, logger)
	}); err != nil {
		return err
	}

	// Register analysis pipeline
	if err := container.Provide(func(
		cfg *config.Config,
		reputation core.ReputationClient,
		classifier core.FraudClassifier,
		cache factory.Repository,
		logger *zap.Logger,
	) *core.Pipeline {
		cacheCfg := cfg.GetCache()
		var repo core.CacheRepository
		if cache != nil {
			repo = cache
		}
		return core.NewPipeline(reputation, classifier, repo, logger, core.PipelineConfig{
			FraudThreshold: cfg.GetFraud().Threshold,
			URLWorkers:     cfg.GetScan().URLWorkers,
			AnalysisWait:   cfg.GetReputation().AnalysisWait,
			CacheEnabled:   cacheCfg.Enabled,
			CacheTTL:       cacheCfg.TTL,
		})
	}); err != nil {
		return err
	}
	if err := container.Provide(func(p *core.Pipeline) (core.Analyzer, core.URLChecker) {
		return p, p
	}); err != nil {
		return err
	}

	// Register whitelist
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
		return whitelist.NewChecker(cfg.GetServer().WhitelistedDomains, logger)
	}); err != nil {
		return err
	}

	// Register mailbox and scheduler, both nil without mailbox credentials
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *gmail.Mailbox {
		return factory.CreateMailbox(cfg, logger)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(
		cfg *config.Config,
		mailbox *gmail.Mailbox,
		analyzer core.Analyzer,
		pool *credentials.Pool,
		logger *zap.Logger,
	) *core.Scheduler {
		if mailbox == nil {
			return nil
		}
		mailboxCfg := cfg.GetMailbox()
		scanCfg := cfg.GetScan()
		return core.NewScheduler(mailbox, analyzer, pool.Len, logger, core.SchedulerConfig{
			MaxWorkers: scanCfg.MaxWorkers,
			Labels: core.Labels{
				Phishing: mailboxCfg.PhishingLabel,
				Safe:     mailboxCfg.SafeLabel,
			},
			ExcludeLabels: scanCfg.ExcludeLabels,
		})
	}); err != nil {
		return err
	}

	// Register filters
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return err
	}
	return nil
}

// Shutdown releases the resources held by container-built components
func Shutdown(container *dig.Container) {
	_ = container.Invoke(func(cache factory.Repository, llm core.LLMClient, logger *zap.Logger) {
		if cache != nil {
			cache.Stop()
		}
		if closer, ok := llm.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close LLM client", zap.Error(err))
			}
		}
		_ = logger.Sync()
	})
}
