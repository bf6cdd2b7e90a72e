package telegram

import (
	"context"
	"log/slog"
	"time"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/transport"
)

const (
	minPollBackoff = time.Second
	maxPollBackoff = 30 * time.Second
	ackTimeout     = 5 * time.Second
)

// UpdateSource is the long-poll half of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]core.Update, error)
}

// Poller long-polls getUpdates and feeds every update into a transport.Pool.
type Poller struct {
	source  UpdateSource
	pool    *transport.Pool
	timeout time.Duration
	logger  *slog.Logger
}

func NewPoller(source UpdateSource, pool *transport.Pool, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	return &Poller{source: source, pool: pool, timeout: timeout, logger: logger}
}

// Run polls until ctx is cancelled. It does not wait for in-flight handlers; call Pool.Wait.
// Before returning it confirms every submitted update so a restart does not
// receive them again.
func (p *Poller) Run(ctx context.Context) error {
	var offset, confirmed int64
	defer func() { p.acknowledge(ctx, offset, confirmed) }()

	backoff := minPollBackoff
	p.logger.Info("polling for updates", "timeout", p.timeout)
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed", "error", err, "retry_in", backoff)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			backoff *= 2
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			continue
		}
		backoff = minPollBackoff
		confirmed = offset

		for _, update := range updates {
			if !p.pool.Submit(ctx, update) {
				return nil
			}
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
		}
	}
}

// acknowledge tells the Bot API that updates below offset were handled.
// Telegram only forgets an update once a later getUpdates call carries a
// higher offset, so the final batch needs one more short call.
func (p *Poller) acknowledge(ctx context.Context, offset, confirmed int64) {
	if offset <= confirmed {
		return
	}
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if _, err := p.source.GetUpdates(ackCtx, offset, 0); err != nil {
		p.logger.Warn("confirming last updates failed", "offset", offset, "error", err)
		return
	}
	p.logger.Debug("confirmed updates", "offset", offset)
}
