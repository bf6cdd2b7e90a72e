package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bakkerme/giftcard-bot/internal/core"
)

// Pool runs a Handler for each submitted update on its own goroutine, with at most
// maxConcurrency running at once. A panic in one handler is logged and does not affect others.
type Pool struct {
	handler Handler
	sem     chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewPool(handler Handler, maxConcurrency int, logger *slog.Logger) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		handler: handler,
		sem:     make(chan struct{}, maxConcurrency),
		logger:  logger,
	}
}

// Submit blocks until a slot is free or ctx is done. It returns false if the update was not started.
// A started handler keeps ctx's values but not its cancellation, so shutdown lets it finish.
func (p *Pool) Submit(ctx context.Context, update core.Update) bool {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	handlerCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("update handler panicked", "update_id", update.UpdateID, "panic", r)
			}
		}()
		p.handler(handlerCtx, update)
	}()
	return true
}

// Wait blocks until every started handler has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
