// Package report delivers the recipient count to administrators on a schedule.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bakkerme/giftcard-bot/internal/core"
	"github.com/bakkerme/giftcard-bot/internal/messages"
	"github.com/bakkerme/giftcard-bot/internal/outputs/email"
	"github.com/bakkerme/giftcard-bot/internal/transport"
)

// Counter is the read side of the ledger the report needs.
type Counter interface {
	Count() int
}

// EmailTarget addresses the e-mail copy of the report.
type EmailTarget struct {
	From    string
	To      string
	Subject string
}

type Job struct {
	counter   Counter
	chat      transport.Transport
	chatID    int64
	sender    email.Sender
	target    EmailTarget
	converter goldmark.Markdown
	logger    *slog.Logger
	now       func() time.Time
}

type Options struct {
	// Chat and ChatID enable the Telegram copy when both are set.
	Chat   transport.Transport
	ChatID int64
	// Sender enables the e-mail copy.
	Sender email.Sender
	Email  EmailTarget
	Logger *slog.Logger
}

func NewJob(counter Counter, opts Options) (*Job, error) {
	if counter == nil {
		return nil, fmt.Errorf("report: counter is required")
	}
	hasChat := opts.Chat != nil && opts.ChatID != 0
	if !hasChat && opts.Sender == nil {
		return nil, fmt.Errorf("report: at least one destination is required")
	}
	if opts.Sender != nil && opts.Email.To == "" {
		return nil, fmt.Errorf("report: email recipient is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	job := &Job{
		counter:   counter,
		sender:    opts.Sender,
		target:    opts.Email,
		converter: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:    logger,
		now:       time.Now,
	}
	if hasChat {
		job.chat = opts.Chat
		job.chatID = opts.ChatID
	}
	return job, nil
}

// Run sends one report to every configured destination. A failing destination does not
// stop the others; their errors are joined.
func (j *Job) Run(ctx context.Context) error {
	count := j.counter.Count()
	logger := j.logger.With("count", count)

	var errs []error
	if j.chat != nil {
		if err := j.sendChat(ctx, count); err != nil {
			logger.Error("report telegram delivery failed", "chat_id", j.chatID, "error", err)
			errs = append(errs, err)
		}
	}
	if j.sender != nil {
		if err := j.sendEmail(ctx, count); err != nil {
			logger.Error("report email delivery failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		logger.Info("recipient report sent")
	}
	return errors.Join(errs...)
}

func (j *Job) sendChat(ctx context.Context, count int) error {
	text, err := messages.Render(messages.RecipientCount, messages.Data{Count: count})
	if err != nil {
		return err
	}
	return j.chat.Send(ctx, core.OutgoingMessage{ChatID: j.chatID, Text: text})
}

func (j *Job) sendEmail(ctx context.Context, count int) error {
	markdown, err := messages.Render(messages.RecipientReport, messages.Data{
		Count: count,
		Date:  j.now().UTC().Format("2006-01-02 15:04 MST"),
	})
	if err != nil {
		return err
	}
	html, err := renderMarkdown(j.converter, markdown)
	if err != nil {
		return fmt.Errorf("report: render markdown: %w", err)
	}
	return j.sender.Send(ctx, email.Message{
		From:     j.target.From,
		To:       j.target.To,
		Subject:  j.target.Subject,
		TextBody: markdown,
		HTMLBody: html,
	})
}

func renderMarkdown(converter goldmark.Markdown, input string) (string, error) {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
