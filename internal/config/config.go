// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the Telegram
// credentials, the update delivery mode (long polling or webhook), server
// timeouts, logging, the database path, rate limits and observability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Update delivery modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// webhookSecretRE is the character set Telegram accepts for secret_token.
var webhookSecretRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// TelegramConfig defines the Bot API client settings.
type TelegramConfig struct {
	Token     string        // BOT_TOKEN
	APIURL    string        // TELEGRAM_API_URL
	Timeout   time.Duration // TELEGRAM_TIMEOUT, per HTTP call
	SendRPS   float64       // SEND_RPS, outbound message pacing (0 = off)
	SendBurst int           // SEND_BURST
}

// WebhookConfig defines webhook mode settings.
type WebhookConfig struct {
	URL    string // WEBHOOK_URL, public https URL Telegram posts to
	Secret string // WEBHOOK_SECRET, echoed in X-Telegram-Bot-Api-Secret-Token
	Path   string // WEBHOOK_PATH, route the server listens on
}

// PollingConfig defines long-polling mode settings.
type PollingConfig struct {
	Timeout time.Duration // POLL_TIMEOUT, getUpdates long-poll timeout
	Workers int           // POLL_WORKERS
}

// BroadcastConfig defines the promotional post sent by /send.
type BroadcastConfig struct {
	Text        string // BROADCAST_TEXT
	ButtonText  string // BROADCAST_BUTTON_TEXT
	ButtonCount int    // BROADCAST_BUTTON_COUNT
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "referralbot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	Mode string // polling|webhook

	Telegram  TelegramConfig
	Webhook   WebhookConfig
	Polling   PollingConfig
	Broadcast BroadcastConfig

	// Ownership
	OwnerID          int64  // OWNER_ID, seeded when no owner is stored (0 = none)
	OwnerClaimSecret string // OWNER_CLAIM_SECRET, enables /setowner

	// Server (webhook mode, plus /health and /metrics)
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	DBPath         string        // SQLite path
	UpdateDedupTTL time.Duration // how long a processed update_id is remembered
	ListPageSize   int           // channels per /list page

	// Rate limiting of the webhook route
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	ownerID, err := getint64Strict("OWNER_ID")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode: strings.ToLower(strings.TrimSpace(getenv("MODE", ModePolling))),

		Telegram: TelegramConfig{
			Token:     strings.TrimSpace(getenv("BOT_TOKEN", "")),
			APIURL:    getenv("TELEGRAM_API_URL", "https://api.telegram.org"),
			Timeout:   getdur("TELEGRAM_TIMEOUT", 60*time.Second),
			SendRPS:   getfloat("SEND_RPS", 20),
			SendBurst: getint("SEND_BURST", 5),
		},
		Webhook: WebhookConfig{
			URL:    strings.TrimSpace(getenv("WEBHOOK_URL", "")),
			Secret: getenv("WEBHOOK_SECRET", ""),
			Path:   normalizeBasePath(getenv("WEBHOOK_PATH", "/telegram/webhook")),
		},
		Polling: PollingConfig{
			Timeout: getdur("POLL_TIMEOUT", 50*time.Second),
			Workers: getint("POLL_WORKERS", 4),
		},
		Broadcast: BroadcastConfig{
			Text:        getenv("BROADCAST_TEXT", ""),
			ButtonText:  getenv("BROADCAST_BUTTON_TEXT", ""),
			ButtonCount: getint("BROADCAST_BUTTON_COUNT", 1),
		},

		OwnerID:          ownerID,
		OwnerClaimSecret: getenv("OWNER_CLAIM_SECRET", ""),

		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		DBPath:         getenv("DB_PATH", "referralbot.db"),
		UpdateDedupTTL: getdur("UPDATE_DEDUP_TTL", 48*time.Hour),
		ListPageSize:   getint("LIST_PAGE_SIZE", 10),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 30.0),
		RateBurst: getint("RATE_BURST", 60),

		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "referralbot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, cfg.Validate()
}

// Validate checks the invariants Load relies on. It is exported so callers
// that build a Config by hand (tests, the CLI) get the same checks.
func (cfg Config) Validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Telegram.Token == "" {
		return errors.New("BOT_TOKEN must not be empty")
	}
	if cfg.Telegram.Timeout <= 0 {
		return errors.New("TELEGRAM_TIMEOUT must be > 0")
	}
	if cfg.Telegram.SendRPS < 0 {
		return errors.New("SEND_RPS must be >= 0")
	}
	if cfg.Telegram.SendBurst < 1 {
		return errors.New("SEND_BURST must be >= 1")
	}

	switch cfg.Mode {
	case ModePolling:
		if cfg.Polling.Timeout <= 0 {
			return errors.New("POLL_TIMEOUT must be > 0")
		}
		// The HTTP call must outlive the server-side long poll.
		if cfg.Telegram.Timeout <= cfg.Polling.Timeout {
			return errors.New("TELEGRAM_TIMEOUT must be greater than POLL_TIMEOUT")
		}
		if cfg.Polling.Workers < 1 {
			return errors.New("POLL_WORKERS must be >= 1")
		}
	case ModeWebhook:
		u, err := url.Parse(cfg.Webhook.URL)
		if cfg.Webhook.URL == "" || err != nil || u.Scheme != "https" || u.Host == "" {
			return errors.New("WEBHOOK_URL must be an https URL in webhook mode")
		}
		if !webhookSecretRE.MatchString(cfg.Webhook.Secret) {
			return errors.New("WEBHOOK_SECRET must be 1-256 characters of A-Z, a-z, 0-9, _ or - in webhook mode")
		}
		if cfg.Webhook.Path == "/" {
			return errors.New("WEBHOOK_PATH must not be the root path")
		}
	default:
		return fmt.Errorf("MODE must be %q or %q", ModePolling, ModeWebhook)
	}

	if cfg.Broadcast.ButtonCount < 1 || cfg.Broadcast.ButtonCount > 8 {
		return errors.New("BROADCAST_BUTTON_COUNT must be between 1 and 8")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.UpdateDedupTTL <= 0 {
		return errors.New("UPDATE_DEDUP_TTL must be > 0")
	}
	// Telegram caps an inline keyboard at 100 buttons.
	if cfg.ListPageSize < 1 || cfg.ListPageSize > 50 {
		return errors.New("LIST_PAGE_SIZE must be between 1 and 50")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getint64Strict parses an optional int64. Unlike the other helpers it does
// not fall back silently: a malformed owner id is a configuration error.
func getint64Strict(k string) (int64, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer user id", k)
	}
	return n, nil
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
