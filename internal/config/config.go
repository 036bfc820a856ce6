// Package config provides run configuration loaded from environment
// variables with defaults and validation. It centralizes settings such as
// logging, ledger locations, dispatch pacing, provider endpoints, and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-outreach-batch")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ProviderConfig holds provider endpoints and credential fallbacks. CLI
// arguments take precedence over the credential fields.
type ProviderConfig struct {
	HTTPTimeout time.Duration

	TwilioBaseURL    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	BitlyBaseURL string
	BitlyToken   string

	PayPalMode         string // sandbox|live
	PayPalBaseURL      string // optional override of the mode URL
	PayPalClientID     string
	PayPalClientSecret string
}

// Config holds all configuration values for a run.
type Config struct {
	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // console logs on stderr
	LogRedact bool   // scrub phone numbers and e-mails from logs
	LogDir    string // directory for per-command log files

	// Ledger / blacklist
	LedgerPath          string // JSON array file, or *.db for SQLite
	LedgerExcludedCodes []int  // provider error codes never treated as permanent
	BlacklistPath       string

	// Dispatch pacing
	SMSChunkSize    int
	SMSChunkPause   time.Duration
	SettlementWait  time.Duration
	SendRPS         float64 // 0 = unlimited
	SendBurst       int
	PayoutBatchSize int

	// Link shortening
	ShortenPauseEvery int
	ShortenPause      time.Duration

	// Providers
	Providers ProviderConfig

	// Local status server / metrics export
	StatusAddr      string // empty disables the listener
	MetricsTextfile string // empty disables textfile export

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
	cfg := Config{
		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
		LogRedact: getbool("LOG_REDACT", true),
		LogDir:    getenv("LOG_DIR", "logs"),

		// Ledger / blacklist
		LedgerPath:    getenv("LEDGER_PATH", "messaging/bad_numbers.json"),
		BlacklistPath: getenv("BLACKLIST_PATH", "payments/blacklist.json"),

		// Dispatch pacing
		SMSChunkSize:    getint("SMS_CHUNK_SIZE", 75),
		SMSChunkPause:   getdur("SMS_CHUNK_PAUSE", 10*time.Second),
		SettlementWait:  getdur("SETTLEMENT_WAIT", 45*time.Second),
		SendRPS:         getfloat("SEND_RPS", 0),
		SendBurst:       getint("SEND_BURST", 1),
		PayoutBatchSize: getint("PAYOUT_BATCH_SIZE", 250),

		// Link shortening
		ShortenPauseEvery: getint("SHORTEN_PAUSE_EVERY", 99),
		ShortenPause:      getdur("SHORTEN_PAUSE", 60*time.Second),

		Providers: ProviderConfig{
			HTTPTimeout:        getdur("HTTP_TIMEOUT", 30*time.Second),
			TwilioBaseURL:      getenv("TWILIO_BASE_URL", "https://api.twilio.com"),
			TwilioAccountSID:   getenv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:    getenv("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:         getenv("TWILIO_FROM", ""),
			BitlyBaseURL:       getenv("BITLY_BASE_URL", "https://api-ssl.bitly.com"),
			BitlyToken:         getenv("BITLY_TOKEN", ""),
			PayPalMode:         strings.ToLower(getenv("PAYPAL_MODE", "sandbox")),
			PayPalBaseURL:      getenv("PAYPAL_BASE_URL", ""),
			PayPalClientID:     getenv("PAYPAL_CLIENT_ID", ""),
			PayPalClientSecret: getenv("PAYPAL_CLIENT_SECRET", ""),
		},

		StatusAddr:      getenv("STATUS_ADDR", ""),
		MetricsTextfile: getenv("METRICS_TEXTFILE", ""),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-outreach-batch"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	codes, err := parseCodes(getenv("LEDGER_EXCLUDED_CODES", "30001"))
	if err != nil {
		return cfg, err
	}
	cfg.LedgerExcludedCodes = codes

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		return cfg, errors.New("LOG_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.LedgerPath) == "" {
		return cfg, errors.New("LEDGER_PATH must not be empty")
	}
	if cfg.SMSChunkSize < 1 {
		return cfg, errors.New("SMS_CHUNK_SIZE must be >= 1")
	}
	if cfg.SMSChunkPause < 0 || cfg.SettlementWait < 0 || cfg.ShortenPause < 0 {
		return cfg, errors.New("pauses must be non-negative durations")
	}
	if cfg.SendRPS < 0 {
		return cfg, errors.New("SEND_RPS must be >= 0")
	}
	if cfg.SendBurst < 1 {
		return cfg, errors.New("SEND_BURST must be >= 1")
	}
	if cfg.PayoutBatchSize < 1 || cfg.PayoutBatchSize > 250 {
		return cfg, errors.New("PAYOUT_BATCH_SIZE must be between 1 and 250")
	}
	if cfg.ShortenPauseEvery < 0 {
		return cfg, errors.New("SHORTEN_PAUSE_EVERY must be >= 0")
	}
	if cfg.Providers.HTTPTimeout <= 0 {
		return cfg, errors.New("HTTP_TIMEOUT must be a positive duration")
	}
	switch cfg.Providers.PayPalMode {
	case "sandbox", "live":
	default:
		return cfg, errors.New("PAYPAL_MODE must be one of: sandbox, live")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseCodes turns a comma-separated list of integers into a slice. Unlike
// the scalar helpers it reports malformed entries instead of falling back.
func parseCodes(s string) ([]int, error) {
	parts := splitCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.New("LEDGER_EXCLUDED_CODES must be a comma-separated list of integers")
		}
		out = append(out, n)
	}
	return out, nil
}
