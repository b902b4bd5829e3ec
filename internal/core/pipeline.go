package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PipelineConfig holds the tunables of the analysis pipeline
type PipelineConfig struct {
	// FraudThreshold is the minimum classifier confidence for a fraud trigger
	FraudThreshold int
	// URLWorkers bounds concurrent URL checks within one email
	URLWorkers int
	// AnalysisWait is the fixed delay between submitting a URL and polling its verdict
	AnalysisWait time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultPipelineConfig returns the reference tuning
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		FraudThreshold: 30,
		URLWorkers:     2,
		AnalysisWait:   15 * time.Second,
		CacheTTL:       24 * time.Hour,
	}
}

// stageFunc evaluates one stage. A nil result means the stage was not entered.
type stageFunc func(ctx context.Context, req *AnalysisRequest) (StageResult, error)

// Pipeline runs the attachment, URL and fraud checks in priority order and
// stops at the first positive stage
type Pipeline struct {
	reputation ReputationClient
	classifier FraudClassifier
	cache      CacheRepository
	logger     *zap.Logger
	cfg        PipelineConfig
	sleep      func(ctx context.Context, d time.Duration) error
	stages     []stageFunc
}

// NewPipeline creates a new analysis pipeline. cache may be nil.
func NewPipeline(
	reputation ReputationClient,
	classifier FraudClassifier,
	cache CacheRepository,
	logger *zap.Logger,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.URLWorkers < 1 {
		cfg.URLWorkers = 1
	}
	p := &Pipeline{
		reputation: reputation,
		classifier: classifier,
		cache:      cache,
		logger:     logger,
		cfg:        cfg,
		sleep:      sleepContext,
	}
	p.stages = []stageFunc{p.checkFiles, p.checkURLs, p.checkFraud}
	return p
}

// SetSleeper replaces the wait used between URL submission and polling
func (p *Pipeline) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	p.sleep = sleep
}

// Analyze validates the request and evaluates the stages in order. Only
// validation failures and credential exhaustion are returned as errors;
// every other failure is recorded in the stage evidence.
func (p *Pipeline) Analyze(ctx context.Context, req *AnalysisRequest) (*Verdict, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	req = sanitized(req)

	details := make(map[Stage]StageResult)
	for _, evaluate := range p.stages {
		result, err := evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		if result == nil {
			continue
		}
		details[result.Stage()] = result

		if result.Malicious() {
			p.logger.Warn("Phishing detected",
				zap.String("stage", string(result.Stage())),
				zap.String("threat", result.Threat()))
			return newVerdict(result, details), nil
		}
	}

	p.logger.Info("Email is safe, all checks passed", zap.Int("stages_run", len(details)))
	return newVerdict(nil, details), nil
}

func (p *Pipeline) cacheEnabled() bool {
	return p.cfg.CacheEnabled && p.cache != nil
}

// lookup consults the reputation cache before calling fetch, and stores
// successful answers
func (p *Pipeline) lookup(
	ctx context.Context,
	key string,
	fetch func(ctx context.Context) (*ReputationCounts, error),
) (*ReputationCounts, bool, error) {
	if p.cacheEnabled() {
		if entry, err := p.cache.Get(ctx, key); err == nil {
			p.logger.Debug("Cache hit for artifact", zap.String("key", key))
			counts := entry.Counts
			return &counts, true, nil
		}
	}

	counts, err := fetch(ctx)
	if err != nil {
		return nil, false, err
	}

	if p.cacheEnabled() {
		now := time.Now()
		entry := &CacheEntry{
			Key:       key,
			Counts:    *counts,
			LastSeen:  now,
			ExpiresAt: now.Add(p.cfg.CacheTTL),
		}
		if err := p.cache.Set(ctx, entry); err != nil {
			p.logger.Error("Failed to update cache", zap.Error(err))
		}
	}
	return counts, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
