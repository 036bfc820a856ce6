package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.LedgerPath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.SMSChunkSize != 75 || cfg.SMSChunkPause != 10*time.Second || cfg.SettlementWait != 45*time.Second {
		t.Fatalf("dispatch defaults unexpected: %+v", cfg)
	}
	if cfg.PayoutBatchSize != 250 {
		t.Fatalf("payout batch default = %d, want 250", cfg.PayoutBatchSize)
	}
	if !cfg.LogRedact {
		t.Fatalf("log redaction should be on by default")
	}
	if cfg.ShortenPauseEvery != 99 || cfg.ShortenPause != time.Minute {
		t.Fatalf("shorten defaults unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.LedgerExcludedCodes, []int{30001}) {
		t.Fatalf("excluded codes default = %v", cfg.LedgerExcludedCodes)
	}
	if cfg.LedgerPath != "messaging/bad_numbers.json" || cfg.BlacklistPath != "payments/blacklist.json" {
		t.Fatalf("paths unexpected: %q %q", cfg.LedgerPath, cfg.BlacklistPath)
	}
	if cfg.Providers.PayPalMode != "sandbox" {
		t.Fatalf("paypal mode default = %q", cfg.Providers.PayPalMode)
	}
	if cfg.StatusAddr != "" || cfg.MetricsTextfile != "" {
		t.Fatalf("status server / textfile should be disabled by default")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("LOG_DIR", "/tmp/logs")
	t.Setenv("LOG_REDACT", "off")

	t.Setenv("LEDGER_PATH", "ledger.db")
	t.Setenv("LEDGER_EXCLUDED_CODES", " 30001, 21610 ,")
	t.Setenv("BLACKLIST_PATH", "bl.json")

	t.Setenv("SMS_CHUNK_SIZE", "10")
	t.Setenv("SMS_CHUNK_PAUSE", "1s")
	t.Setenv("SETTLEMENT_WAIT", "2s")
	t.Setenv("SEND_RPS", "x")      // -> default 0
	t.Setenv("SEND_BURST", "nope") // -> default 1
	t.Setenv("PAYOUT_BATCH_SIZE", "100")

	t.Setenv("SHORTEN_PAUSE_EVERY", "5")
	t.Setenv("SHORTEN_PAUSE", "3s")

	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("PAYPAL_MODE", "LIVE")
	t.Setenv("TWILIO_FROM", "+15550001111")

	t.Setenv("STATUS_ADDR", "127.0.0.1:9100")
	t.Setenv("METRICS_TEXTFILE", "run.prom")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.LogRedact || cfg.LogDir != "/tmp/logs" {
		t.Fatalf("logging unexpected: %+v", cfg)
	}
	if cfg.LedgerPath != "ledger.db" || cfg.BlacklistPath != "bl.json" {
		t.Fatalf("paths unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.LedgerExcludedCodes, []int{30001, 21610}) {
		t.Fatalf("excluded codes unexpected: %v", cfg.LedgerExcludedCodes)
	}
	if cfg.SMSChunkSize != 10 || cfg.SMSChunkPause != time.Second || cfg.SettlementWait != 2*time.Second {
		t.Fatalf("dispatch unexpected: %+v", cfg)
	}
	if cfg.SendRPS != 0 || cfg.SendBurst != 1 {
		t.Fatalf("send rate fallback unexpected: %+v", cfg)
	}
	if cfg.PayoutBatchSize != 100 || cfg.ShortenPauseEvery != 5 || cfg.ShortenPause != 3*time.Second {
		t.Fatalf("batch/shorten unexpected: %+v", cfg)
	}
	if cfg.Providers.HTTPTimeout != 5*time.Second || cfg.Providers.PayPalMode != "live" || cfg.Providers.TwilioFrom != "+15550001111" {
		t.Fatalf("providers unexpected: %+v", cfg.Providers)
	}
	if cfg.StatusAddr != "127.0.0.1:9100" || cfg.MetricsTextfile != "run.prom" {
		t.Fatalf("status/metrics unexpected: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty LOG_DIR via spaces", "LOG_DIR", "   ", "LOG_DIR must not be empty"},
		{"empty LEDGER_PATH via spaces", "LEDGER_PATH", "   ", "LEDGER_PATH must not be empty"},
		{"bad excluded codes", "LEDGER_EXCLUDED_CODES", "30001,abc", "LEDGER_EXCLUDED_CODES"},
		{"chunk size < 1", "SMS_CHUNK_SIZE", "0", "SMS_CHUNK_SIZE"},
		{"negative pause", "SMS_CHUNK_PAUSE", "-1s", "pauses must be non-negative"},
		{"negative settlement", "SETTLEMENT_WAIT", "-1s", "pauses must be non-negative"},
		{"send rps negative", "SEND_RPS", "-1", "SEND_RPS"},
		{"send burst < 1", "SEND_BURST", "0", "SEND_BURST"},
		{"payout batch too large", "PAYOUT_BATCH_SIZE", "251", "PAYOUT_BATCH_SIZE"},
		{"shorten every negative", "SHORTEN_PAUSE_EVERY", "-1", "SHORTEN_PAUSE_EVERY"},
		{"http timeout non-positive", "HTTP_TIMEOUT", "0s", "HTTP_TIMEOUT"},
		{"paypal mode unknown", "PAYPAL_MODE", "staging", "PAYPAL_MODE"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %s validation error, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off", "Off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_parseCodes(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}

	got, err := parseCodes("1, 2,3")
	if err != nil || !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("parseCodes = %v, %v", got, err)
	}
	if got, err := parseCodes(""); err != nil || len(got) != 0 {
		t.Fatalf("parseCodes empty = %v, %v", got, err)
	}
	if _, err := parseCodes("1,x"); err == nil {
		t.Fatalf("parseCodes should reject non-integers")
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("LEDGER_PATH")
	os.Unsetenv("PAYPAL_MODE")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
