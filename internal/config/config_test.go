package config

import (
	"os"
	"path/filepath"
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
	if cfg.APIBasePath != "/api/v1" || cfg.DBPath != "chat.db" || cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WriteTimeout != 0 || cfg.RecordErrors || cfg.Speech.Enabled() {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.OTEL.ServiceName != "go-llm-chat" || cfg.Security.HSTSMaxAge != 180*24*time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "WARNING") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("SWAGGER_ENABLED", "1")
	t.Setenv("API_BASE_PATH", "api/v1/") // -> "/api/v1"

	// Storage / chat
	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("DEFAULT_MODEL", " OpenAI:gpt-4o-mini ")
	t.Setenv("PROVIDER_TIMEOUT", "90s")
	t.Setenv("MODELS_CACHE_TTL", "0s")
	t.Setenv("MAX_PROMPT_RUNES", "100")
	t.Setenv("RECORD_ERRORS", "true")

	// Rate limiting
	t.Setenv("RATE_RPS", "2.5")
	t.Setenv("RATE_BURST", "3")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// Speech
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("ELEVENLABS_VOICE_ID", "voice")
	t.Setenv("SPEECH_CACHE_SIZE", "8")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.DefaultModel != "OpenAI:gpt-4o-mini" ||
		cfg.ProviderTimeout != 90*time.Second || cfg.ModelsCacheTTL != 0 ||
		cfg.MaxPromptRunes != 100 || !cfg.RecordErrors {
		t.Fatalf("chat fields unexpected: %+v", cfg)
	}
	if cfg.RateRPS != 2.5 || cfg.RateBurst != 3 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}
	if !cfg.Speech.Enabled() || cfg.Speech.CacheSize != 8 || cfg.Speech.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("speech unexpected: %+v", cfg.Speech)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_UnparseableValue(t *testing.T) {
	t.Setenv("RATE_RPS", "x")
	if _, err := Load(); err == nil || !containsErr(err, "config:") {
		t.Fatalf("expected parse error, got: %v", err)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"negative write timeout", "WRITE_TIMEOUT", "-1s", "WRITE_TIMEOUT"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"provider timeout", "PROVIDER_TIMEOUT", "0s", "PROVIDER_TIMEOUT"},
		{"models cache ttl", "MODELS_CACHE_TTL", "-1m", "MODELS_CACHE_TTL"},
		{"max prompt runes", "MAX_PROMPT_RUNES", "-1", "MAX_PROMPT_RUNES"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"speech cache size", "SPEECH_CACHE_SIZE", "0", "SPEECH_CACHE_SIZE"},
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

// --- providers ---

func TestLoad_ProviderCredentialsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("HF_TOKEN", "hf-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	creds := cfg.Credentials()
	if creds["openai"].APIKey != "sk-env" || creds["huggingface"].APIKey != "hf-env" {
		t.Fatalf("credentials unexpected: %+v", creds)
	}
	if _, ok := creds["anthropic"]; ok {
		t.Fatalf("unset provider should have no credential")
	}
}

func TestLoad_ProvidersFileOverlay(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("MY_MISTRAL_KEY", "ms-file")

	path := filepath.Join(t.TempDir(), "providers.yaml")
	body := `providers:
  OpenAI:
    base_url: http://localhost:9999/v1
  mistral:
    api_key: ${MY_MISTRAL_KEY}
  groq:
    api_key: gq
    enable: false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROVIDERS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	creds := cfg.Credentials()
	if c := creds["openai"]; c.APIKey != "sk-env" || c.BaseURL != "http://localhost:9999/v1" || c.Disabled {
		t.Fatalf("openai overlay unexpected: %+v", c)
	}
	if c := creds["mistral"]; c.APIKey != "ms-file" {
		t.Fatalf("env expansion failed: %+v", c)
	}
	if c := creds["groq"]; !c.Disabled || c.APIKey != "gq" {
		t.Fatalf("enable:false not honoured: %+v", c)
	}
}

func TestLoad_ProvidersFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("PROVIDERS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil || !containsErr(err, "PROVIDERS_FILE") {
			t.Fatalf("expected PROVIDERS_FILE error, got: %v", err)
		}
	})
	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("providers: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("PROVIDERS_FILE", path)
		if _, err := Load(); err == nil || !containsErr(err, "PROVIDERS_FILE") {
			t.Fatalf("expected PROVIDERS_FILE error, got: %v", err)
		}
	})
}

// --- helpers ---

func TestHelpers_trimAll_and_normalizeBasePath(t *testing.T) {
	if out := trimAll(nil); out != nil {
		t.Fatalf("trimAll empty should return nil")
	}
	want := []string{"a", "b", "c"}
	if got := trimAll([]string{" a", " ", "b ", "  c  ", ""}); !reflect.DeepEqual(got, want) {
		t.Fatalf("trimAll mismatch: got %#v want %#v", got, want)
	}

	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// Ensure ambient credentials on the test machine do not leak into results.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Unsetenv("PROVIDERS_FILE")
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "HF_TOKEN", "MISTRAL_API_KEY", "GROQ_API_KEY", "ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
