package filter

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

// MailboxPoller scans the mailbox's unread items on a fixed interval
type MailboxPoller struct {
	scheduler *core.Scheduler
	logger    *zap.Logger
	interval  time.Duration
	maxItems  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMailboxPoller creates a new poller. A non-positive interval means a
// single scan at start.
func NewMailboxPoller(scheduler *core.Scheduler, logger *zap.Logger, interval time.Duration, maxItems int) *MailboxPoller {
	return &MailboxPoller{
		scheduler: scheduler,
		logger:    logger,
		interval:  interval,
		maxItems:  maxItems,
	}
}

// Start begins polling in the background
func (p *MailboxPoller) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.logger.Info("Mailbox poller starting",
		zap.Duration("interval", p.interval),
		zap.Int("max_emails", p.maxItems))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.scan(ctx)
		if p.interval <= 0 {
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.scan(ctx)
			}
		}
	}()
	return nil
}

func (p *MailboxPoller) scan(ctx context.Context) {
	outcome, err := p.scheduler.ScanUnread(ctx, p.maxItems)
	if err != nil {
		p.logger.Error("Mailbox scan failed", zap.Error(err))
		return
	}
	if outcome.Processed > 0 {
		p.logger.Info("Mailbox scan finished",
			zap.String("batch_id", outcome.BatchID),
			zap.Int("flagged", outcome.Flagged),
			zap.Int("errored", outcome.Errored))
	}
}

// Stop cancels the in-flight scan and waits for the poller to exit
func (p *MailboxPoller) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
