package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultIssuerURL     = "https://web-backend.geph.io/support/create-giftcards"
	DefaultTelegramAPI   = "https://api.telegram.org"
	DefaultGroupLink     = "https://t.me/gephusers"
	DefaultWebhookPath   = "/telegram/webhook"
	DefaultLedgerDriver  = "json"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	defaultIssuerTimeout = 10 * time.Second
	defaultPollTimeout   = 50 * time.Second
)

// Document is the top-level structure of a giftcard-bot.yaml file.
// The first block of keys is the historical flat layout; everything below is optional.
// group_id is accepted as a synonym for geph_group_id.
type Document struct {
	StorePath            string `yaml:"store_path"`
	TelegramToken        string `yaml:"telegram_token"`
	AdminUsername        string `yaml:"admin_uname"`
	BotUsername          string `yaml:"bot_uname"`
	GroupID              int64  `yaml:"geph_group_id"`
	GroupIDAlias         int64  `yaml:"group_id,omitempty"`
	GroupLink            string `yaml:"group_link,omitempty"`
	CreateGiftcardSecret string `yaml:"create_giftcard_secret"`
	DaysPerGiftcard      int    `yaml:"days_per_giftcard"`

	Ledger     LedgerConfig     `yaml:"ledger,omitempty"`
	Issuer     IssuerConfig     `yaml:"issuer,omitempty"`
	Telegram   TelegramConfig   `yaml:"telegram,omitempty"`
	HTTP       HTTPConfig       `yaml:"http,omitempty"`
	Dispatcher DispatcherConfig `yaml:"dispatcher,omitempty"`
	Report     ReportConfig     `yaml:"report,omitempty"`
	Log        LogConfig        `yaml:"log,omitempty"`
}

// LedgerConfig selects the storage driver backing the redemption ledger.
// The ledger location is always Document.StorePath.
type LedgerConfig struct {
	Driver string `yaml:"driver,omitempty"` // "json", "sqlite" or "badger"
}

type IssuerConfig struct {
	URL     string   `yaml:"url,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

type TelegramConfig struct {
	APIURL         string   `yaml:"api_url,omitempty"`
	Mode           string   `yaml:"mode,omitempty"` // "poll" or "webhook"
	PollTimeout    Duration `yaml:"poll_timeout,omitempty"`
	WebhookURL     string   `yaml:"webhook_url,omitempty"`
	WebhookPath    string   `yaml:"webhook_path,omitempty"`
	WebhookSecret  string   `yaml:"webhook_secret,omitempty"`
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

type DispatcherConfig struct {
	// RateLimit is the sustained number of private messages per second accepted from one user.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
	// EligibilityRule is an optional expr expression that must evaluate to true
	// before a card is issued, e.g. `user.language_code != "en"`.
	EligibilityRule string `yaml:"eligibility_rule,omitempty"`
}

// ReportConfig schedules the recipient-count report for administrators.
type ReportConfig struct {
	Schedule       string       `yaml:"schedule,omitempty"`
	Timezone       string       `yaml:"timezone,omitempty"`
	TelegramChatID int64        `yaml:"telegram_chat_id,omitempty"`
	Email          *EmailReport `yaml:"email,omitempty"`
}

type EmailReport struct {
	To           string `yaml:"to"`
	From         string `yaml:"from,omitempty"`
	Subject      string `yaml:"subject,omitempty"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port,omitempty"`
	SMTPUser     string `yaml:"smtp_user,omitempty"`
	SMTPPassword string `yaml:"smtp_password,omitempty"`
	TLSMode      string `yaml:"tls_mode,omitempty"`
}

type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	Format     string `yaml:"format,omitempty"` // "text" or "json"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// Load reads, decodes, applies env overrides and defaults, and validates the document at path.
func Load(path string, env EnvConfig) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.ApplyEnv(env)
	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse decodes a YAML document. Unknown keys are rejected so typos fail at startup.
func Parse(data []byte) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: document is empty")
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &doc, nil
}

// ApplyEnv overrides secrets and deploy-time settings from the environment.
func (d *Document) ApplyEnv(env EnvConfig) {
	if env.TelegramToken != "" {
		d.TelegramToken = env.TelegramToken
	}
	if env.CreateGiftcardSecret != "" {
		d.CreateGiftcardSecret = env.CreateGiftcardSecret
	}
	if env.LogLevel != "" {
		d.Log.Level = env.LogLevel
	}
	if env.HTTPListen != "" {
		d.HTTP.Listen = env.HTTPListen
	}
}

func (d *Document) ApplyDefaults() {
	d.AdminUsername = strings.TrimPrefix(strings.TrimSpace(d.AdminUsername), "@")
	d.BotUsername = strings.TrimPrefix(strings.TrimSpace(d.BotUsername), "@")
	if d.GroupID == 0 {
		d.GroupID = d.GroupIDAlias
	}
	if d.GroupLink == "" {
		d.GroupLink = DefaultGroupLink
	}
	if d.Ledger.Driver == "" {
		d.Ledger.Driver = DefaultLedgerDriver
	}
	d.Ledger.Driver = strings.ToLower(strings.TrimSpace(d.Ledger.Driver))
	if d.Issuer.URL == "" {
		d.Issuer.URL = DefaultIssuerURL
	}
	if d.Issuer.Timeout <= 0 {
		d.Issuer.Timeout = Duration(defaultIssuerTimeout)
	}
	if d.Telegram.APIURL == "" {
		d.Telegram.APIURL = DefaultTelegramAPI
	}
	if d.Telegram.Mode == "" {
		d.Telegram.Mode = "poll"
	}
	d.Telegram.Mode = strings.ToLower(strings.TrimSpace(d.Telegram.Mode))
	if d.Telegram.PollTimeout <= 0 {
		d.Telegram.PollTimeout = Duration(defaultPollTimeout)
	}
	if d.Telegram.WebhookPath == "" {
		d.Telegram.WebhookPath = DefaultWebhookPath
	}
	if d.Telegram.MaxConcurrency <= 0 {
		d.Telegram.MaxConcurrency = 16
	}
	if d.Dispatcher.RateLimit <= 0 {
		d.Dispatcher.RateLimit = 1
	}
	if d.Dispatcher.RateBurst <= 0 {
		d.Dispatcher.RateBurst = 3
	}
	if d.Report.Email != nil {
		if d.Report.Email.SMTPPort == 0 {
			d.Report.Email.SMTPPort = 587
		}
		if d.Report.Email.Subject == "" {
			d.Report.Email.Subject = "Gift card recipients"
		}
	}
	if d.Log.Level == "" {
		d.Log.Level = DefaultLogLevel
	}
	if d.Log.Format == "" {
		d.Log.Format = DefaultLogFormat
	}
}

// Validate checks the document and returns the first problem found.
func (d *Document) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"store_path", d.StorePath},
		{"telegram_token", d.TelegramToken},
		{"admin_uname", d.AdminUsername},
		{"bot_uname", d.BotUsername},
		{"create_giftcard_secret", d.CreateGiftcardSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("config: '%s' is required", r.field)
		}
	}
	if d.GroupID == 0 {
		return fmt.Errorf("config: 'geph_group_id' is required")
	}
	if d.GroupIDAlias != 0 && d.GroupIDAlias != d.GroupID {
		return fmt.Errorf("config: 'geph_group_id' and 'group_id' are both set and disagree")
	}
	if d.DaysPerGiftcard <= 0 {
		return fmt.Errorf("config: 'days_per_giftcard' must be positive")
	}

	switch d.Ledger.Driver {
	case "json", "sqlite", "badger":
	default:
		return fmt.Errorf("config: ledger driver %q is not supported (expected json, sqlite or badger)", d.Ledger.Driver)
	}

	switch d.Telegram.Mode {
	case "poll":
	case "webhook":
		if d.Telegram.WebhookURL == "" {
			return fmt.Errorf("config: telegram webhook_url is required in webhook mode")
		}
		if d.HTTP.Listen == "" {
			return fmt.Errorf("config: http listen address is required in webhook mode")
		}
		if !strings.HasPrefix(d.Telegram.WebhookPath, "/") {
			return fmt.Errorf("config: telegram webhook_path must start with '/'")
		}
	default:
		return fmt.Errorf("config: telegram mode %q is not supported (expected poll or webhook)", d.Telegram.Mode)
	}

	if d.Report.Schedule == "" && (d.Report.TelegramChatID != 0 || d.Report.Email != nil) {
		return fmt.Errorf("config: report schedule is required when a report destination is set")
	}
	if d.Report.Schedule != "" {
		if d.Report.TelegramChatID == 0 && d.Report.Email == nil {
			return fmt.Errorf("config: report needs telegram_chat_id or email")
		}
		if d.Report.Timezone != "" {
			if _, err := time.LoadLocation(d.Report.Timezone); err != nil {
				return fmt.Errorf("config: report timezone: %w", err)
			}
		}
	}
	if e := d.Report.Email; e != nil {
		if e.SMTPHost == "" {
			return fmt.Errorf("config: report email smtp_host is required")
		}
		if _, err := mail.ParseAddress(e.To); err != nil {
			return fmt.Errorf("config: report email: invalid to address")
		}
		if e.From != "" {
			if _, err := mail.ParseAddress(e.From); err != nil {
				return fmt.Errorf("config: report email: invalid from address")
			}
		}
	}

	switch d.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format %q is not supported (expected text or json)", d.Log.Format)
	}
	return nil
}
