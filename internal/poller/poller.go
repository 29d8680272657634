// Package poller pulls updates from the messaging platform and hands them
// to a handler one at a time.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bruno-bot/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// Source is the long-poll side of the messaging platform.
type Source interface {
	Updates(ctx context.Context, offset int, timeout time.Duration) ([]domain.Update, error)
}

// Handler processes a single inbound event.
type Handler func(ctx context.Context, ev domain.InboundEvent) error

// Poller is a non-restartable iterator over update batches. Acknowledgement
// is by offset, so a batch returned by Next is never delivered again.
type Poller struct {
	source  Source
	timeout time.Duration
	offset  int
	logger  *slog.Logger
}

type Option func(*Poller)

func WithTimeout(timeout time.Duration) Option {
	return func(p *Poller) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(source Source, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, errors.New("poller: source must not be nil")
	}
	p := &Poller{source: source, timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Offset is the id the next request starts from.
func (p *Poller) Offset() int {
	return p.offset
}

// Next blocks until a non-empty batch arrives and advances the offset past
// it. Empty long-poll responses are retried. Cancellation is checked before
// every request.
func (p *Poller) Next(ctx context.Context) ([]domain.Update, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updates, err := p.source.Updates(ctx, p.offset, p.timeout)
		if err != nil {
			return nil, fmt.Errorf("poller: get updates at offset %d: %w", p.offset, err)
		}
		if len(updates) == 0 {
			continue
		}
		for _, u := range updates {
			if u.ID >= p.offset {
				p.offset = u.ID + 1
			}
		}
		return updates, nil
	}
}

// Run feeds every event to handle in arrival order until ctx is cancelled
// or the source fails. A handler error is logged and does not stop the loop.
// Turns are not cancelled mid-way: handlers get a context without ctx's
// cancellation, and the batch in hand is finished before Run returns nil.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errors.New("poller: handler must not be nil")
	}
	p.logger.Info("polling updates", "timeout", p.timeout)
	turnCtx := context.WithoutCancel(ctx)
	for {
		updates, err := p.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, u := range updates {
			if u.Event == nil {
				p.logger.Debug("skipping unsupported update", "update_id", u.ID)
				continue
			}
			start := time.Now()
			if err := handle(turnCtx, *u.Event); err != nil {
				p.logger.Error("update failed", "update_id", u.ID, "chat_id", u.Event.ChatID, "err", err)
				continue
			}
			p.logger.Debug("update handled", "update_id", u.ID, "chat_id", u.Event.ChatID, "elapsed", time.Since(start))
		}
	}
}
