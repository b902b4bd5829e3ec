package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// janitor runs a cache's Cleanup on a fixed interval until stopped
type janitor struct {
	stopCh   chan struct{}
	stopOnce sync.Once
}

func startJanitor(freq time.Duration, cleanup func(context.Context) error, logger *zap.Logger) *janitor {
	j := &janitor{stopCh: make(chan struct{})}
	if freq <= 0 {
		return j
	}

	go func() {
		ticker := time.NewTicker(freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := cleanup(context.Background()); err != nil {
					logger.Error("Failed to clean up cache", zap.Error(err))
				}
			case <-j.stopCh:
				return
			}
		}
	}()
	return j
}

func (j *janitor) stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}
