package factory

import (
	"fmt"
	"os"

	"github.com/mikey/phishguard/internal/adapters/filter"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"github.com/mikey/phishguard/internal/ports"
	"github.com/mikey/phishguard/internal/whitelist"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg       *config.Config
	logger    *zap.Logger
	analyzer  core.Analyzer
	urls      core.URLChecker
	scheduler *core.Scheduler
	pool      *credentials.Pool
	whitelist *whitelist.Checker
}

// NewFilterFactory creates a new filter factory. scheduler may be nil when
// no mailbox is configured.
func NewFilterFactory(
	cfg *config.Config,
	logger *zap.Logger,
	analyzer core.Analyzer,
	urls core.URLChecker,
	scheduler *core.Scheduler,
	pool *credentials.Pool,
	checker *whitelist.Checker,
) *FilterFactory {
	return &FilterFactory{
		cfg:       cfg,
		logger:    logger,
		analyzer:  analyzer,
		urls:      urls,
		scheduler: scheduler,
		pool:      pool,
		whitelist: checker,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	filterType := f.cfg.GetServer().FilterType

	switch filterType {
	case "postfix":
		return filter.NewPostfixFilter(f.analyzer, f.whitelist, f.logger, f.cfg.GetServer()), nil
	case "mailbox":
		if f.scheduler == nil {
			return nil, fmt.Errorf("mailbox filter requires mailbox.credentials_file")
		}
		scanCfg := f.cfg.GetScan()
		return filter.NewMailboxPoller(f.scheduler, f.logger, scanCfg.Interval, scanCfg.MaxEmails), nil
	case "cli":
		return f.CreateCliFilter(false), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", filterType)
	}
}

// CreateCliFilter creates a CLI filter writing to stdout
func (f *FilterFactory) CreateCliFilter(verbose bool) *filter.CliFilter {
	return filter.NewCliFilter(f.analyzer, f.urls, f.scheduler, f.pool, f.logger, os.Stdout, verbose)
}
