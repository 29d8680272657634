package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultTaskTimeout = 30 * time.Second

// Background runs fire-and-forget work that must not fail a turn. Failures
// are only logged. Wait lets shutdown drain what is still running.
type Background struct {
	wg      sync.WaitGroup
	logger  *slog.Logger
	timeout time.Duration
}

func NewBackground(logger *slog.Logger, timeout time.Duration) *Background {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Background{logger: logger, timeout: timeout}
}

// Go runs fn with the default timeout, detached from the caller's
// cancellation.
func (b *Background) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	b.GoWithTimeout(ctx, name, b.timeout, fn)
}

// GoWithTimeout is Go with a task-specific deadline.
func (b *Background) GoWithTimeout(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	if timeout <= 0 {
		timeout = b.timeout
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := fn(taskCtx); err != nil {
			b.logger.Warn("background task failed", "task", name, "err", err)
		}
	}()
}

// Wait blocks until every task finished or ctx is done.
func (b *Background) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
