// Package server exposes the bot's HTTP surface: health, metrics and the Telegram webhook.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Counter reports the number of redeemed users for the health endpoint.
type Counter interface {
	Count() int
}

type Options struct {
	Counter Counter
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
	// Webhook is mounted on POST WebhookPath when set.
	Webhook     echo.HandlerFunc
	WebhookPath string
	Logger      *slog.Logger
}

type Server struct {
	echo    *echo.Echo
	counter Counter
	logger  *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				logger.Warn("http request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("http request", attrs...)
			return nil
		},
	}))

	s := &Server{echo: e, counter: opts.Counter, logger: logger}

	e.GET("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}
	if opts.Webhook != nil && opts.WebhookPath != "" {
		e.POST(opts.WebhookPath, opts.Webhook)
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown. A clean shutdown returns nil.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	Redeemed int    `json:"redeemed"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{Status: "ok"}
	if s.counter != nil {
		resp.Redeemed = s.counter.Count()
	}
	return c.JSON(http.StatusOK, resp)
}
