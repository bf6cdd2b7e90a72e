package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/issuer"
)

const (
	defaultURL       = "https://web-backend.geph.io/support/create-giftcards"
	defaultUserAgent = "giftcard-bot/0.1"
	maxBodySize      = 64 << 10
)

// Client calls the gift card creation endpoint. It never retries: a failed call has
// produced no card as far as the caller can tell.
type Client struct {
	client    *http.Client
	url       string
	userAgent string
}

func NewClient(timeout time.Duration, url string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(url) == "" {
		url = defaultURL
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		userAgent: defaultUserAgent,
	}
}

type createRequest struct {
	DaysPerCard int    `json:"days_per_card"`
	NumCards    int    `json:"num_cards"`
	Secret      string `json:"secret"`
}

func (c *Client) Issue(ctx context.Context, request issuer.Request) (code string, err error) {
	ctx, span := otel.Tracer("giftcard-bot/issuer").Start(ctx, "issuer.Issue")
	span.SetAttributes(core.SpanAttributes(ctx)...)
	span.SetAttributes(attribute.Int("giftcard.days_per_card", request.DaysPerCard))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if request.DaysPerCard <= 0 {
		return "", &issuer.Error{Err: fmt.Errorf("days per card must be positive")}
	}
	if request.Secret == "" {
		return "", &issuer.Error{Err: fmt.Errorf("secret is required")}
	}

	payload, err := json.Marshal(createRequest{
		DaysPerCard: request.DaysPerCard,
		NumCards:    1,
		Secret:      request.Secret,
	})
	if err != nil {
		return "", &issuer.Error{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &issuer.Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &issuer.Error{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", &issuer.Error{StatusCode: resp.StatusCode, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if int64(len(body)) > maxBodySize {
		return "", &issuer.Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("response too large")}
	}
	text := strings.TrimSpace(string(body))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &issuer.Error{StatusCode: resp.StatusCode, Body: text, Err: fmt.Errorf("request failed: %s", resp.Status)}
	}
	if text == "" {
		return "", &issuer.Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("empty gift card code")}
	}
	return text, nil
}
