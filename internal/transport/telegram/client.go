package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/retry"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxBodySize    = 1 << 20
)

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) RetryDelay() time.Duration { return e.RetryAfter }

func (e *APIError) transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Client is a small Telegram Bot API client covering the methods the bot needs.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
	timeout time.Duration
	retry   retry.Config
	logger  *slog.Logger
}

func NewClient(logger *slog.Logger, token, baseURL string, timeout time.Duration) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		retry:   retry.Config{Attempts: 3, BaseDelay: 300 * time.Millisecond, MaxDelay: 5 * time.Second},
		logger:  logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters,omitempty"`
}

// call performs one Bot API request and decodes result into out when non-nil.
// Each request is bounded by timeout; long polls pass a longer one than ordinary calls.
func (c *Client) call(ctx context.Context, method string, timeout time.Duration, params interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram: %s: encode: %w", method, err)
	}
	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, redactURL(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, redactURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("telegram: %s: read response: %w", method, err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("telegram: %s: response too large", method)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: "malformed response"}
	}
	if !envelope.OK {
		apiErr := &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram: %s: decode result: %w", method, err)
	}
	return nil
}

// callWithRetry retries network failures, 429 and 5xx. Other API errors are returned as is.
func (c *Client) callWithRetry(ctx context.Context, method string, params interface{}, out interface{}) (err error) {
	ctx, span := otel.Tracer("giftcard-bot/telegram").Start(ctx, "telegram."+method)
	span.SetAttributes(core.SpanAttributes(ctx)...)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	attempts := 0
	err = retry.Do(ctx, c.retry, func() error {
		attempts++
		callErr := c.call(ctx, method, c.timeout, params, out)
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && !apiErr.transient() {
			return retry.Permanent(callErr)
		}
		return callErr
	})
	span.SetAttributes(attribute.Int("telegram.attempts", attempts))
	return err
}

type chatMember struct {
	Status   string `json:"status"`
	IsMember bool   `json:"is_member"`
}

// IsMember checks getChatMember. Any failure is logged and treated as not a member.
func (c *Client) IsMember(ctx context.Context, userID, groupID int64) bool {
	var member chatMember
	err := c.callWithRetry(ctx, "getChatMember", map[string]int64{
		"chat_id": groupID,
		"user_id": userID,
	}, &member)
	if err != nil {
		core.LoggerFromContext(ctx).Warn("membership lookup failed, treating as non-member", "user_id", userID, "group_id", groupID, "error", err)
		return false
	}
	switch member.Status {
	case "member", "administrator", "creator":
		return true
	case "restricted":
		return member.IsMember
	default:
		return false
	}
}

type sendMessageParams struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Send delivers an HTML-formatted message.
func (c *Client) Send(ctx context.Context, message core.OutgoingMessage) error {
	if message.ChatID == 0 {
		return fmt.Errorf("telegram: sendMessage: chat id is required")
	}
	if strings.TrimSpace(message.Text) == "" {
		return fmt.Errorf("telegram: sendMessage: text is required")
	}
	return c.callWithRetry(ctx, "sendMessage", sendMessageParams{
		ChatID:                message.ChatID,
		Text:                  message.Text,
		ParseMode:             "HTML",
		ReplyToMessageID:      message.ReplyToMessageID,
		DisableWebPagePreview: true,
	}, nil)
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// GetUpdates long-polls for updates after offset. It is not retried; the poller backs off.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]core.Update, error) {
	var updates []core.Update
	err := c.call(ctx, "getUpdates", timeout+10*time.Second, getUpdatesParams{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}, &updates)
	return updates, err
}

type setWebhookParams struct {
	URL            string   `json:"url"`
	SecretToken    string   `json:"secret_token,omitempty"`
	AllowedUpdates []string `json:"allowed_updates"`
}

func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	return c.callWithRetry(ctx, "setWebhook", setWebhookParams{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: []string{"message"},
	}, nil)
}

// DeleteWebhook is required before getUpdates works on a bot that had a webhook.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.callWithRetry(ctx, "deleteWebhook", map[string]bool{"drop_pending_updates": false}, nil)
}

// redactURL strips the request URL, which embeds the bot token, from transport errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}
