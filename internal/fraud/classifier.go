package fraud

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/utils"
	"go.uber.org/zap"
)

// Config holds the classifier settings
type Config struct {
	// MaxBodySize bounds the text placed in the prompt
	MaxBodySize int
	Timeout     time.Duration
}

// Classifier implements core.FraudClassifier. It asks an AI model first and
// falls back to keyword heuristics when no usable answer comes back.
type Classifier struct {
	llm    core.LLMClient
	text   *utils.TextProcessor
	cfg    Config
	logger *zap.Logger
}

// NewClassifier creates a classifier. llm may be nil, in which case every
// email is classified by the heuristic.
func NewClassifier(llm core.LLMClient, text *utils.TextProcessor, cfg Config, logger *zap.Logger) *Classifier {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Classifier{
		llm:    llm,
		text:   text,
		cfg:    cfg,
		logger: logger,
	}
}

// Classify never fails; every failure path degrades to the heuristic
func (c *Classifier) Classify(ctx context.Context, subject, body, html string) *core.FraudResult {
	text := c.text.StripMarkup(strings.Join([]string{subject, body, html}, " "))
	if text == "" {
		return &core.FraudResult{
			Reason:     "No text content",
			Indicators: []string{},
			Method:     core.MethodEmpty,
		}
	}

	if c.llm == nil {
		return heuristic(text, "Keyword analysis, no AI provider configured")
	}

	prompt := buildPrompt(c.text.TruncateText(c.text.SanitizeUTF8(text), c.cfg.MaxBodySize))

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	logger := c.logger.With(zap.String("model", c.llm.Name()))
	completion, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, core.ErrRateLimited) {
			logger.Warn("AI provider rate limited, using keyword analysis")
		} else {
			logger.Error("AI provider failed, using keyword analysis", zap.Error(err))
		}
		return heuristic(text, "Keyword analysis, AI provider unavailable")
	}

	result, ok := parseCompletion(completion)
	if !ok {
		logger.Warn("AI answer had no usable content, using keyword analysis")
		return heuristic(text, "Keyword analysis, AI answer unusable")
	}

	logger.Info("AI fraud analysis",
		zap.Bool("detected", result.Detected),
		zap.Int("confidence", result.Confidence),
		zap.String("method", result.Method))
	return result
}
