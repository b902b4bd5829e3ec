package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

// LLMFactory creates the language model behind the fraud classifier
type LLMFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger) *LLMFactory {
	return &LLMFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLLMClient creates a new LLM client based on the configuration. The
// "none" provider yields a nil client and the classifier runs on keywords only.
func (f *LLMFactory) CreateLLMClient(ctx context.Context) (core.LLMClient, error) {
	provider := strings.ToLower(f.cfg.GetLLM().Provider)

	switch provider {
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger).CreateLLMClient(ctx)
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger).CreateLLMClient()
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger).CreateLLMClient(ctx)
	case "none", "":
		f.logger.Info("No LLM provider configured, fraud classification uses keyword heuristics")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
