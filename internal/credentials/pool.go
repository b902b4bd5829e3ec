package credentials

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
)

const (
	defaultWindow            = time.Minute
	defaultRequestsPerWindow = 4
)

// Credential is one API key handed out by the pool. Slot identifies the key
// in logs so the token itself is never printed.
type Credential struct {
	Slot  int
	Token string
}

// Usage is a snapshot of one credential's counters
type Usage struct {
	Slot          int
	Requests      int
	WindowStart   time.Time
	TotalRequests int
	LimitedCount  int
}

type slot struct {
	token         string
	requests      int
	windowStart   time.Time
	totalRequests int
	limitedCount  int
}

// Pool rotates a set of API keys, each allowed a fixed number of requests
// per rolling window
type Pool struct {
	mu       sync.Mutex
	slots    []*slot
	cursor   int
	window   time.Duration
	capacity int
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// Option configures a Pool
type Option func(*Pool)

// WithWindow sets the rate-limit window length
func WithWindow(d time.Duration) Option {
	return func(p *Pool) { p.window = d }
}

// WithRequestsPerWindow sets how many requests one key may make per window
func WithRequestsPerWindow(n int) Option {
	return func(p *Pool) { p.capacity = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithSleeper replaces the wait used when every key is exhausted
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pool) { p.sleep = sleep }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a pool over the given tokens. Blank tokens are dropped.
func NewPool(tokens []string, opts ...Option) *Pool {
	p := &Pool{
		window:   defaultWindow,
		capacity: defaultRequestsPerWindow,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.capacity < 1 {
		p.capacity = 1
	}

	start := p.now()
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		p.slots = append(p.slots, &slot{token: t, windowStart: start})
	}

	p.logger.Info("Credential pool initialized",
		zap.Int("credentials", len(p.slots)),
		zap.Int("requests_per_window", p.capacity),
		zap.Duration("window", p.window))
	return p
}

// Len returns the number of usable credentials
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Next returns the next credential with remaining quota, rotating across
// qualifying keys. When every key is exhausted it waits one window, resets
// the windows that began before the wait and tries once more. A waiter that
// finds the keys already renewed by another waiter waits again.
func (p *Pool) Next(ctx context.Context) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slots) == 0 {
		return Credential{}, core.ErrNoCredentials
	}
	if c, ok := p.acquire(); ok {
		return c, nil
	}

	for {
		sleepStart := p.now()
		p.mu.Unlock()
		p.logger.Warn("All credentials rate limited, waiting for window reset",
			zap.Duration("wait", p.window))
		err := p.sleep(ctx, p.window)
		p.mu.Lock()
		if err != nil {
			return Credential{}, err
		}

		// windows opened during the wait keep their counts
		now := p.now()
		renewed := false
		for _, s := range p.slots {
			if s.windowStart.After(sleepStart) {
				renewed = true
				continue
			}
			s.requests = 0
			s.windowStart = now
		}
		if c, ok := p.acquire(); ok {
			return c, nil
		}
		if !renewed {
			return Credential{}, core.ErrNoCredentials
		}
	}
}

// acquire must be called with the lock held
func (p *Pool) acquire() (Credential, bool) {
	now := p.now()
	var available []int
	for i, s := range p.slots {
		if now.Sub(s.windowStart) >= p.window {
			s.requests = 0
			s.windowStart = now
		}
		if s.requests < p.capacity {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		return Credential{}, false
	}

	i := available[p.cursor%len(available)]
	p.cursor = (p.cursor + 1) % len(available)

	s := p.slots[i]
	s.requests++
	s.totalRequests++
	return Credential{Slot: i, Token: s.token}, true
}

// MarkLimited exhausts a credential's quota for the rest of its window
func (p *Pool) MarkLimited(c Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.Slot < 0 || c.Slot >= len(p.slots) || p.slots[c.Slot].token != c.Token {
		return
	}
	s := p.slots[c.Slot]
	s.requests = p.capacity
	s.limitedCount++
	p.logger.Warn("Credential marked as rate limited", zap.Int("slot", c.Slot))
}

// Stats returns the current counters of every credential
func (p *Pool) Stats() []Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make([]Usage, len(p.slots))
	for i, s := range p.slots {
		stats[i] = Usage{
			Slot:          i,
			Requests:      s.requests,
			WindowStart:   s.windowStart,
			TotalRequests: s.totalRequests,
			LimitedCount:  s.limitedCount,
		}
	}
	return stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
