// Package dispatcher turns inbound chat updates into gift card redemptions.
//
// Each update is handled on its own: private messages from ordinary users run the
// redemption flow, the administrator can ask for the recipient count, and mentions of the
// bot in a group are answered with a hint to talk to it privately.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/eligibility"
	"github.com/bakkerme/giftcard-bot/internal/issuer"
	"github.com/bakkerme/giftcard-bot/internal/ledger"
	"github.com/bakkerme/giftcard-bot/internal/messages"
	"github.com/bakkerme/giftcard-bot/internal/observability/metrics"
	"github.com/bakkerme/giftcard-bot/internal/transport"
)

// RecipientCountCommand is the admin command that reports how many users received a card.
const RecipientCountCommand = "#RecipientCount"

// Outcomes recorded on the span and in the completion log line.
const (
	outcomeIgnored         = "ignored"
	outcomeRateLimited     = "rate_limited"
	outcomeAlreadyRedeemed = "already_redeemed"
	outcomeInProgress      = "in_progress"
	outcomeNotMember       = "not_member"
	outcomeNotEligible     = "not_eligible"
	outcomeIssueFailed     = "issue_failed"
	outcomeRecordFailed    = "record_failed"
	outcomeRedeemed        = "redeemed"
	outcomeAdminCount      = "admin_count"
	outcomeGroupHint       = "group_hint"
)

type Config struct {
	AdminUsername   string
	BotUsername     string
	GroupID         int64
	GroupLink       string
	DaysPerGiftcard int
	Secret          string
	RateLimit       float64
	RateBurst       int
	Rule            *eligibility.Rule
}

type Deps struct {
	Ledger    ledger.Ledger
	Issuer    issuer.Issuer
	Transport transport.Transport
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Dispatcher struct {
	cfg       Config
	ledger    ledger.Ledger
	issuer    issuer.Issuer
	transport transport.Transport
	metrics   *metrics.Metrics
	logger    *slog.Logger
	limiter   *userLimiter
	inflight  *inflight
}

func New(cfg Config, deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.AdminUsername = strings.TrimPrefix(strings.TrimSpace(cfg.AdminUsername), "@")
	cfg.BotUsername = strings.TrimPrefix(strings.TrimSpace(cfg.BotUsername), "@")
	return &Dispatcher{
		cfg:       cfg,
		ledger:    deps.Ledger,
		issuer:    deps.Issuer,
		transport: deps.Transport,
		metrics:   deps.Metrics,
		logger:    logger,
		limiter:   newUserLimiter(cfg.RateLimit, cfg.RateBurst),
		inflight:  newInflight(),
	}
}

// Handle processes one update. It satisfies transport.Handler.
func (d *Dispatcher) Handle(ctx context.Context, update core.Update) {
	start := time.Now()
	requestID := uuid.NewString()

	logger := d.logger.With("request_id", requestID, "update_id", update.UpdateID)
	ctx = core.WithRequestID(ctx, requestID)

	msg := update.Message
	chatType := ""
	if msg != nil {
		chatType = string(msg.Chat.Type)
		if msg.From != nil {
			logger = logger.With("user_id", msg.From.ID)
			ctx = core.WithUserID(ctx, msg.From.ID)
		}
	}
	ctx = core.WithLogger(ctx, logger)
	d.metrics.ObserveUpdate(chatType)

	ctx, span := otel.Tracer("giftcard-bot/dispatcher").Start(ctx, "dispatcher.Handle")
	defer span.End()
	span.SetAttributes(core.SpanAttributes(ctx)...)
	span.SetAttributes(
		attribute.Int64("telegram.update_id", update.UpdateID),
		attribute.String("telegram.chat_type", chatType),
	)

	outcome := d.route(ctx, msg)

	span.SetAttributes(attribute.String("dispatch.outcome", outcome))
	if outcome == outcomeRecordFailed || outcome == outcomeIssueFailed {
		span.SetStatus(codes.Error, outcome)
	}
	d.metrics.ObserveHandleSeconds(time.Since(start).Seconds())
	if outcome != outcomeIgnored {
		logger.Info("update handled", "outcome", outcome, "duration", time.Since(start))
	}
}

func (d *Dispatcher) route(ctx context.Context, msg *core.Message) string {
	if msg == nil || msg.From == nil {
		return outcomeIgnored
	}
	switch {
	case msg.Chat.Type == core.ChatTypePrivate:
		if d.isAdmin(msg.From) {
			return d.handleAdmin(ctx, msg)
		}
		return d.handleRedemption(ctx, msg)
	case msg.Chat.Type.IsGroup():
		return d.handleGroup(ctx, msg)
	default:
		return outcomeIgnored
	}
}

func (d *Dispatcher) isAdmin(user *core.User) bool {
	return d.cfg.AdminUsername != "" && strings.EqualFold(user.Username, d.cfg.AdminUsername)
}

func (d *Dispatcher) handleAdmin(ctx context.Context, msg *core.Message) string {
	if strings.TrimSpace(msg.Text) != RecipientCountCommand {
		return outcomeIgnored
	}
	d.reply(ctx, msg.Chat.ID, 0, messages.RecipientCount, messages.Data{Count: d.ledger.Count()})
	return outcomeAdminCount
}

func (d *Dispatcher) handleGroup(ctx context.Context, msg *core.Message) string {
	if !core.MentionsUser(msg.Text, d.cfg.BotUsername) {
		return outcomeIgnored
	}
	d.reply(ctx, msg.Chat.ID, msg.MessageID, messages.PrivateMessageHint, messages.Data{})
	return outcomeGroupHint
}

func (d *Dispatcher) handleRedemption(ctx context.Context, msg *core.Message) string {
	logger := core.LoggerFromContext(ctx)
	user := msg.From
	chatID := msg.Chat.ID

	if d.ledger.IsRedeemed(user.ID) {
		d.reply(ctx, chatID, 0, messages.AlreadyRedeemed, messages.Data{})
		return outcomeAlreadyRedeemed
	}

	// Only the path that reaches Telegram membership and the issuer is limited.
	if !d.limiter.Allow(user.ID) {
		d.metrics.ObserveRateLimited()
		logger.Debug("private message rate limited")
		return outcomeRateLimited
	}

	if !d.inflight.acquire(user.ID) {
		d.reply(ctx, chatID, 0, messages.RequestInProgress, messages.Data{})
		return outcomeInProgress
	}
	defer d.inflight.release(user.ID)

	// A request that finished between the first check and acquire has already recorded the user.
	if d.ledger.IsRedeemed(user.ID) {
		d.reply(ctx, chatID, 0, messages.AlreadyRedeemed, messages.Data{})
		return outcomeAlreadyRedeemed
	}

	if !d.transport.IsMember(ctx, user.ID, d.cfg.GroupID) {
		d.reply(ctx, chatID, 0, messages.MustJoin, messages.Data{GroupLink: d.cfg.GroupLink})
		return outcomeNotMember
	}

	allowed, err := d.cfg.Rule.Allows(*user)
	if err != nil {
		logger.Warn("eligibility rule failed", "error", err)
	}
	if !allowed {
		d.reply(ctx, chatID, 0, messages.NotEligible, messages.Data{})
		return outcomeNotEligible
	}

	code, err := d.issuer.Issue(ctx, issuer.Request{DaysPerCard: d.cfg.DaysPerGiftcard, Secret: d.cfg.Secret})
	if err != nil {
		d.metrics.ObserveIssuer(metrics.OutcomeError)
		logger.Error("gift card issue failed", "error", err)
		d.reply(ctx, chatID, 0, messages.IssueFailed, messages.Data{})
		return outcomeIssueFailed
	}
	d.metrics.ObserveIssuer(metrics.OutcomeSuccess)

	if err := d.ledger.MarkRedeemed(user.ID); err != nil {
		d.metrics.ObserveLedgerWriteFailure()
		// The card exists at the issuer but is withheld; operators reconcile from this line.
		logger.Error("recording redemption failed, code withheld", "error", err)
		d.reply(ctx, chatID, 0, messages.RecordFailed, messages.Data{})
		return outcomeRecordFailed
	}
	d.metrics.ObserveRedemption()

	d.reply(ctx, chatID, 0, messages.Congratulations, messages.Data{Days: d.cfg.DaysPerGiftcard})
	d.reply(ctx, chatID, 0, messages.GiftCode, messages.Data{Code: code})
	d.reply(ctx, chatID, 0, messages.RedeemInstructions, messages.Data{})
	return outcomeRedeemed
}

// reply renders kind and sends it. Failures are logged and otherwise ignored.
func (d *Dispatcher) reply(ctx context.Context, chatID, replyTo int64, kind messages.Kind, data messages.Data) {
	logger := core.LoggerFromContext(ctx)
	text, err := messages.Render(kind, data)
	if err != nil {
		logger.Error("render message failed", "kind", kind, "error", err)
		return
	}
	out := core.OutgoingMessage{ChatID: chatID, Text: text, ReplyToMessageID: replyTo}
	if err := d.transport.Send(ctx, out); err != nil {
		logger.Warn("send message failed", "kind", kind, "chat_id", chatID, "error", err)
	}
}
