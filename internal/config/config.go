// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, provider credentials,
// rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"  envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"                envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME"           envDefault:"go-llm-chat"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG"     envDefault:"1.0"`
}

// SpeechConfig holds the optional text-to-speech settings. Speech is off
// unless both the key and the voice are set.
type SpeechConfig struct {
	APIKey    string        `env:"ELEVENLABS_API_KEY"`
	VoiceID   string        `env:"ELEVENLABS_VOICE_ID"`
	ModelID   string        `env:"ELEVENLABS_MODEL_ID"   envDefault:"eleven_multilingual_v2"`
	BaseURL   string        `env:"ELEVENLABS_BASE_URL"`
	CacheSize int           `env:"SPEECH_CACHE_SIZE"     envDefault:"64"`
	CacheTTL  time.Duration `env:"SPEECH_CACHE_TTL"      envDefault:"30m"`
}

// Enabled reports whether speech synthesis is configured.
func (s SpeechConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.VoiceID) != ""
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT"                envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"        envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT"       envDefault:"0s"` // 0 = no limit, replies stream
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT"        envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES"    envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE"            envDefault:"release"`

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL"       envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY"      envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH"   envDefault:"/api/v1"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"chat.db"`

	// Chat
	DefaultModel    string        `env:"DEFAULT_MODEL"`                           // "provider:model" for new conversations
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT"  envDefault:"60s"`
	ModelsCacheTTL  time.Duration `env:"MODELS_CACHE_TTL"  envDefault:"10m"`
	MaxPromptRunes  int           `env:"MAX_PROMPT_RUNES"  envDefault:"32000"`
	RecordErrors    bool          `env:"RECORD_ERRORS"     envDefault:"false"`
	ProvidersFile   string        `env:"PROVIDERS_FILE"`

	// Rate limiting
	RateRPS   float64 `env:"RATE_RPS"   envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Speech
	Speech SpeechConfig

	// Observability
	OTEL OTELConfig

	// Providers holds per-provider credentials from the environment,
	// overlaid by ProvidersFile when set. Keys are provider names.
	Providers map[string]ProviderConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads an optional .env file, then configuration from environment
// variables, applies defaults, normalizes values, and validates the result.
// Variables already present in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	// --- normalization ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	cfg.DefaultModel = strings.TrimSpace(cfg.DefaultModel)

	providers, err := loadProviders(cfg.ProvidersFile)
	if err != nil {
		return cfg, err
	}
	cfg.Providers = providers

	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.WriteTimeout < 0 {
		return errors.New("WRITE_TIMEOUT must be >= 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.ModelsCacheTTL < 0 {
		return errors.New("MODELS_CACHE_TTL must be >= 0")
	}
	if cfg.MaxPromptRunes < 0 {
		return errors.New("MAX_PROMPT_RUNES must be >= 0")
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
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Speech.CacheSize < 1 {
		return errors.New("SPEECH_CACHE_SIZE must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
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

func lookup(k string) string {
	v, _ := os.LookupEnv(k)
	return strings.TrimSpace(v)
}
