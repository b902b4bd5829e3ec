package factory

import (
	"fmt"
	"net/http"

	"github.com/mikey/phishguard/internal/adapters/virustotal"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/credentials"
	"go.uber.org/zap"
)

// ReputationFactory creates the credential pool and the reputation client
// that draws from it
type ReputationFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewReputationFactory creates a new reputation factory
func NewReputationFactory(cfg *config.Config, logger *zap.Logger) *ReputationFactory {
	return &ReputationFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreatePool builds the API key pool. An empty pool is allowed so the
// text-only paths keep working; lookups then fail with ErrNoCredentials.
func (f *ReputationFactory) CreatePool() *credentials.Pool {
	repCfg := f.cfg.GetReputation()
	pool := credentials.NewPool(repCfg.APIKeys,
		credentials.WithWindow(repCfg.Window),
		credentials.WithRequestsPerWindow(repCfg.RequestsPerWindow),
		credentials.WithLogger(f.logger))

	if pool.Len() == 0 {
		f.logger.Warn("No reputation API keys configured, attachment and URL checks will fail")
	} else {
		f.logger.Info("Loaded reputation API keys", zap.Int("count", pool.Len()))
	}
	return pool
}

// CreateClient builds the reputation client over a pool
func (f *ReputationFactory) CreateClient(pool *credentials.Pool) (*virustotal.Client, error) {
	if pool == nil {
		return nil, fmt.Errorf("credential pool is required")
	}
	repCfg := f.cfg.GetReputation()
	return virustotal.NewClient(&http.Client{}, pool, virustotal.Config{
		BaseURL: repCfg.BaseURL,
		Timeout: repCfg.Timeout,
	}, f.logger), nil
}
