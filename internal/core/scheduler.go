package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authenticator is implemented by mailboxes that need a session before use
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// SchedulerConfig holds the batch scan settings
type SchedulerConfig struct {
	// MaxWorkers caps the worker pool regardless of credentials or batch size
	MaxWorkers    int
	Labels        Labels
	ExcludeLabels []string
}

// Scheduler fans a batch of mailbox items out across a bounded worker pool
type Scheduler struct {
	mailbox         Mailbox
	analyzer        Analyzer
	credentialCount func() int
	logger          *zap.Logger
	cfg             SchedulerConfig
}

// NewScheduler creates a new batch scheduler. credentialCount reports how
// many reputation credentials are configured and sizes the pool.
func NewScheduler(
	mailbox Mailbox,
	analyzer Analyzer,
	credentialCount func() int,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &Scheduler{
		mailbox:         mailbox,
		analyzer:        analyzer,
		credentialCount: credentialCount,
		logger:          logger,
		cfg:             cfg,
	}
}

// WorkerCount returns the pool size used for a batch of n items
func (s *Scheduler) WorkerCount(n int) int {
	workers := s.cfg.MaxWorkers
	if s.credentialCount != nil {
		workers = min(workers, s.credentialCount())
	}
	workers = min(workers, n)
	return max(workers, 1)
}

// ScanUnread lists unread items outside the excluded labels and scans them.
// An empty mailbox yields an empty outcome.
func (s *Scheduler) ScanUnread(ctx context.Context, maxItems int) (*BatchOutcome, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	ids, err := s.mailbox.ListUnread(ctx, s.cfg.ExcludeLabels, maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread emails: %w", err)
	}
	if len(ids) == 0 {
		s.logger.Info("No unread emails to scan")
		return &BatchOutcome{BatchID: uuid.NewString(), Items: []ItemOutcome{}}, nil
	}
	return s.ScanBatch(ctx, ids)
}

// ScanBatch analyses and labels every item. It fails only when the ids are
// malformed or the mailbox cannot be reached at all; per-item failures are
// recorded in the outcome.
func (s *Scheduler) ScanBatch(ctx context.Context, ids []string) (*BatchOutcome, error) {
	if err := ValidateItemIDs(ids); err != nil {
		return nil, err
	}
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	batchID := uuid.NewString()
	workers := s.WorkerCount(len(ids))
	logger := s.logger.With(zap.String("batch_id", batchID))
	logger.Info("Starting batch scan",
		zap.Int("emails", len(ids)),
		zap.Int("workers", workers))

	items := make([]ItemOutcome, len(ids))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < len(ids); i += workers {
				items[i] = s.processItem(ctx, logger, worker, ids[i])
			}
		}(w)
	}
	wg.Wait()

	outcome := &BatchOutcome{
		BatchID:  batchID,
		Workers:  workers,
		Items:    items,
		Duration: time.Since(start),
	}
	for _, item := range items {
		outcome.Processed++
		switch {
		case !item.Success:
			outcome.Errored++
		case item.Verdict.IsPhishing:
			outcome.Flagged++
		default:
			outcome.Safe++
		}
	}

	logger.Info("Batch scan complete",
		zap.Int("processed", outcome.Processed),
		zap.Int("flagged", outcome.Flagged),
		zap.Int("safe", outcome.Safe),
		zap.Int("errored", outcome.Errored),
		zap.Duration("duration", outcome.Duration))
	return outcome, nil
}

// LabelCounts reports how many mailbox items carry each verdict label
type LabelCounts struct {
	Phishing int
	Safe     int
}

// PhishingRate is the share of labelled items flagged as phishing, in percent
func (c LabelCounts) PhishingRate() float64 {
	total := c.Phishing + c.Safe
	if total == 0 {
		return 0
	}
	return float64(c.Phishing) * 100 / float64(total)
}

// CountLabels lists up to maxItems items under each verdict label
func (s *Scheduler) CountLabels(ctx context.Context, maxItems int) (*LabelCounts, error) {
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	counts := &LabelCounts{}
	for _, l := range []struct {
		label string
		count *int
	}{
		{s.cfg.Labels.Phishing, &counts.Phishing},
		{s.cfg.Labels.Safe, &counts.Safe},
	} {
		if l.label == "" {
			continue
		}
		ids, err := s.mailbox.ListByLabel(ctx, l.label, maxItems)
		if err != nil {
			return nil, fmt.Errorf("failed to list label %s: %w", l.label, err)
		}
		*l.count = len(ids)
	}
	return counts, nil
}

func (s *Scheduler) authenticate(ctx context.Context) error {
	auth, ok := s.mailbox.(Authenticator)
	if !ok {
		return nil
	}
	if err := auth.Authenticate(ctx); err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return nil
}

// processItem runs fetch, analysis and labelling for one item. Panics are
// recovered into the item's error.
func (s *Scheduler) processItem(ctx context.Context, logger *zap.Logger, worker int, id string) (out ItemOutcome) {
	out = ItemOutcome{ID: id, Worker: worker}
	logger = logger.With(zap.String("email_id", id), zap.Int("worker", worker))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing email", zap.Any("panic", r))
			out.Success = false
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	req, err := s.mailbox.GetContent(ctx, id)
	if err != nil {
		logger.Error("Failed to fetch email", zap.Error(err))
		out.Error = fmt.Sprintf("fetch: %v", err)
		return out
	}

	verdict, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		logger.Error("Failed to analyze email", zap.Error(err))
		out.Error = fmt.Sprintf("analyze: %v", err)
		return out
	}
	out.Verdict = verdict

	label := verdict.Label(s.cfg.Labels)
	if label != "" {
		if err := s.mailbox.AddLabel(ctx, id, label); err != nil {
			logger.Error("Failed to label email", zap.String("label", label), zap.Error(err))
			out.Error = fmt.Sprintf("label: %v", err)
			return out
		}
	}
	if err := s.mailbox.MarkRead(ctx, id); err != nil {
		logger.Error("Failed to mark email as read", zap.Error(err))
		out.Error = fmt.Sprintf("mark read: %v", err)
		return out
	}

	logger.Info("Email processed",
		zap.Bool("is_phishing", verdict.IsPhishing),
		zap.String("stage", string(verdict.TriggeringStage)))
	out.Success = true
	return out
}
