package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/transport"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler accepts updates pushed by Telegram and hands them to a transport.Pool.
// Handlers run on ctx, not the request context, so they outlive the HTTP response.
type WebhookHandler struct {
	ctx    context.Context
	secret string
	pool   *transport.Pool
	logger *slog.Logger
}

func NewWebhookHandler(ctx context.Context, secret string, pool *transport.Pool, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{ctx: ctx, secret: secret, pool: pool, logger: logger}
}

func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.secret != "" {
		got := c.Request().Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook request with bad secret token", "remote_ip", c.RealIP())
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	var update core.Update
	if err := json.NewDecoder(c.Request().Body).Decode(&update); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if !h.pool.Submit(h.ctx, update) {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
