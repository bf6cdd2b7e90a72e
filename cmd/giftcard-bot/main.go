package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/bakkerme/giftcard-bot/internal/config"
	"github.com/bakkerme/giftcard-bot/internal/dispatcher"
	"github.com/bakkerme/giftcard-bot/internal/eligibility"
	issuerimpl "github.com/bakkerme/giftcard-bot/internal/issuer/impl"
	"github.com/bakkerme/giftcard-bot/internal/ledger"
	"github.com/bakkerme/giftcard-bot/internal/observability/logging"
	"github.com/bakkerme/giftcard-bot/internal/observability/metrics"
	"github.com/bakkerme/giftcard-bot/internal/observability/otelx"
	"github.com/bakkerme/giftcard-bot/internal/outputs/email/smtp"
	"github.com/bakkerme/giftcard-bot/internal/report"
	"github.com/bakkerme/giftcard-bot/internal/server"
	"github.com/bakkerme/giftcard-bot/internal/transport"
	"github.com/bakkerme/giftcard-bot/internal/transport/telegram"
)

const shutdownTimeout = 5 * time.Second

func main() {
	env := config.LoadEnv()
	configPath := flag.String("config", env.ConfigPath, "path to the bot's YAML config")
	flag.Parse()

	doc, err := config.Load(*configPath, env)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, logCloser, err := logging.Setup(logging.Options{
		Service:    env.OTel.ServiceName,
		Level:      doc.Log.Level,
		Format:     doc.Log.Format,
		File:       doc.Log.File,
		MaxSizeMB:  doc.Log.MaxSizeMB,
		MaxBackups: doc.Log.MaxBackups,
		MaxAgeDays: doc.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otelx.Init(ctx, logger, env.OTel)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	store, err := ledger.Open(doc.Ledger.Driver, doc.StorePath, logger)
	if err != nil {
		var loadErr *ledger.LoadError
		switch {
		case errors.As(err, &loadErr):
			log.Fatalf("ledger %s is unreadable, refusing to start: %v", doc.StorePath, err)
		case errors.Is(err, ledger.ErrLocked):
			log.Fatalf("ledger %s is in use by another process", doc.StorePath)
		default:
			log.Fatalf("failed to open ledger: %v", err)
		}
	}

	exitCode := 0
	if err := run(ctx, doc, store, logger); err != nil {
		logger.Error("bot stopped with error", "error", err)
		exitCode = 1
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("ledger close failed", "error", err)
		exitCode = 1
	}
	logger.Info("bot stopped")
	if exitCode != 0 {
		_ = logCloser.Close()
		os.Exit(exitCode)
	}
}

func run(ctx context.Context, doc *config.Document, store ledger.Ledger, logger *slog.Logger) error {
	rule, err := eligibility.NewRule(doc.Dispatcher.EligibilityRule)
	if err != nil {
		return err
	}

	bot := telegram.NewClient(logger, doc.TelegramToken, doc.Telegram.APIURL, 0)
	collectors := metrics.New(store.Count)

	dispatch := dispatcher.New(dispatcher.Config{
		AdminUsername:   doc.AdminUsername,
		BotUsername:     doc.BotUsername,
		GroupID:         doc.GroupID,
		GroupLink:       doc.GroupLink,
		DaysPerGiftcard: doc.DaysPerGiftcard,
		Secret:          doc.CreateGiftcardSecret,
		RateLimit:       doc.Dispatcher.RateLimit,
		RateBurst:       doc.Dispatcher.RateBurst,
		Rule:            rule,
	}, dispatcher.Deps{
		Ledger:    store,
		Issuer:    issuerimpl.NewClient(doc.Issuer.Timeout.Std(), doc.Issuer.URL),
		Transport: bot,
		Metrics:   collectors,
		Logger:    logger,
	})
	pool := transport.NewPool(dispatch.Handle, doc.Telegram.MaxConcurrency, logger)
	defer pool.Wait()

	if doc.Report.Schedule != "" {
		scheduler, err := newReportScheduler(doc, store, bot, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srvOpts := server.Options{Counter: store, Metrics: collectors.Handler(), Logger: logger}
	if doc.Telegram.Mode == "webhook" {
		hook := telegram.NewWebhookHandler(ctx, doc.Telegram.WebhookSecret, pool, logger)
		srvOpts.Webhook = hook.Handle
		srvOpts.WebhookPath = doc.Telegram.WebhookPath
	}

	var srv *server.Server
	srvErr := make(chan error, 1)
	if doc.HTTP.Listen != "" {
		srv = server.New(srvOpts)
		go func() { srvErr <- srv.Start(doc.HTTP.Listen) }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("giftcard bot started",
		"mode", doc.Telegram.Mode,
		"ledger_driver", doc.Ledger.Driver,
		"redeemed", store.Count(),
	)

	switch doc.Telegram.Mode {
	case "webhook":
		if err := bot.SetWebhook(ctx, doc.Telegram.WebhookURL, doc.Telegram.WebhookSecret); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-srvErr:
			return err
		}
	default:
		if err := bot.DeleteWebhook(ctx); err != nil {
			logger.Warn("deleteWebhook failed, polling anyway", "error", err)
		}
		pollErr := make(chan error, 1)
		go func() { pollErr <- telegram.NewPoller(bot, pool, doc.Telegram.PollTimeout.Std(), logger).Run(ctx) }()
		select {
		case err := <-pollErr:
			return err
		case err := <-srvErr:
			return err
		}
	}
}

func newReportScheduler(doc *config.Document, store ledger.Ledger, bot transport.Transport, logger *slog.Logger) (*report.Scheduler, error) {
	opts := report.Options{Chat: bot, ChatID: doc.Report.TelegramChatID, Logger: logger}
	if e := doc.Report.Email; e != nil {
		sender, err := smtp.NewSender(smtp.Config{
			Host:     e.SMTPHost,
			Port:     e.SMTPPort,
			Username: e.SMTPUser,
			Password: e.SMTPPassword,
			TLSMode:  e.TLSMode,
		})
		if err != nil {
			return nil, err
		}
		opts.Sender = sender
		opts.Email = report.EmailTarget{From: e.From, To: e.To, Subject: e.Subject}
	}
	job, err := report.NewJob(store, opts)
	if err != nil {
		return nil, err
	}
	return report.NewScheduler(job, doc.Report.Schedule, doc.Report.Timezone, logger)
}
