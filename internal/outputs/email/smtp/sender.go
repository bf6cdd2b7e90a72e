package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/bakkerme/giftcard-bot/internal/outputs/email"
)

// TLSMode determines how the SMTP client negotiates TLS.
type TLSMode string

const (
	// TLSModeAuto uses implicit TLS on 465 and STARTTLS elsewhere.
	TLSModeAuto     TLSMode = "auto"
	TLSModeDisabled TLSMode = "disabled"
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeImplicit TLSMode = "implicit"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string
}

type Sender struct {
	cfg  Config
	mode TLSMode
}

// NewSender validates cfg and resolves the TLS mode up front so misconfiguration fails at startup.
func NewSender(cfg Config) (*Sender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	mode, err := resolveTLSMode(cfg.TLSMode, cfg.Port)
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, mode: mode}, nil
}

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if message.From == "" {
		message.From = s.cfg.Username
	}
	m, err := buildMessage(message)
	if err != nil {
		return err
	}

	err = s.dialAndSend(ctx, m, s.cfg.Username != "")
	if err == nil {
		return nil
	}

	// Local sinks such as mailpit reject AUTH; retry them without credentials.
	if s.cfg.Username != "" && isAuthUnsupported(err) && isLocalDevSMTPHost(s.cfg.Host) {
		if retryErr := s.dialAndSend(ctx, m, false); retryErr == nil {
			return nil
		}
	}
	return err
}

func (s *Sender) dialAndSend(ctx context.Context, m *mail.Msg, withAuth bool) error {
	client, err := mail.NewClient(s.cfg.Host, s.clientOptions(withAuth)...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *Sender) clientOptions(withAuth bool) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	switch s.mode {
	case TLSModeDisabled:
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	case TLSModeImplicit:
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if withAuth && s.cfg.Username != "" {
		opts = append(opts,
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}
	return opts
}

func buildMessage(message email.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(message.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", message.From, err)
	}
	if err := m.EnvelopeFrom(message.From); err != nil {
		return nil, fmt.Errorf("invalid envelope from address %q: %w", message.From, err)
	}
	if err := m.ToFromString(message.To); err != nil {
		return nil, fmt.Errorf("invalid to address(es) %q: %w", message.To, err)
	}
	m.Subject(message.Subject)

	switch {
	case message.TextBody != "" && message.HTMLBody != "":
		m.SetBodyString(mail.TypeTextPlain, message.TextBody)
		m.AddAlternativeString(mail.TypeTextHTML, message.HTMLBody)
	case message.HTMLBody != "":
		m.SetBodyString(mail.TypeTextHTML, message.HTMLBody)
	default:
		m.SetBodyString(mail.TypeTextPlain, message.TextBody)
	}
	return m, nil
}

func resolveTLSMode(raw string, port int) (TLSMode, error) {
	mode, err := parseTLSMode(raw)
	if err != nil {
		return "", err
	}
	if mode != TLSModeAuto {
		return mode, nil
	}
	if port == 465 {
		return TLSModeImplicit, nil
	}
	return TLSModeStartTLS, nil
}

func parseTLSMode(mode string) (TLSMode, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "auto":
		return TLSModeAuto, nil
	case "disabled", "off", "none":
		return TLSModeDisabled, nil
	case "starttls", "start_tls":
		return TLSModeStartTLS, nil
	case "implicit", "smtps", "smtp_tls":
		return TLSModeImplicit, nil
	default:
		return "", fmt.Errorf("invalid smtp tls mode %q (expected auto, disabled, starttls or implicit)", mode)
	}
}

func isAuthUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "server does not support SMTP AUTH") ||
		strings.Contains(msg, "SMTP Auth autodiscover was not able to detect a supported authentication mechanism")
}

func isLocalDevSMTPHost(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	switch host {
	case "":
		return false
	case "localhost", "mailpit":
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
