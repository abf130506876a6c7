// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev           bool
	UpdateWorkers int `yaml:"update_workers" envconfig:"CB_UPDATE_WORKERS"`
}

type BotConfig struct {
	Token    string  `yaml:"token" envconfig:"CB_BOT_TOKEN"`
	Username string  `yaml:"username" envconfig:"CB_BOT_USERNAME"`
	Debug    bool    `yaml:"debug" envconfig:"CB_BOT_DEBUG"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"CB_BOT_ADMIN_IDS"`
	Language string  `yaml:"language" envconfig:"CB_BOT_LANGUAGE"`
	// long polling timeout in seconds
	PollTimeout int `yaml:"poll_timeout" envconfig:"CB_BOT_POLL_TIMEOUT"`
}

type LogConfig struct {
	Level    string `yaml:"level" envconfig:"CB_LOG_LEVEL"`   // trace|debug|info|warn|error
	Format   string `yaml:"format" envconfig:"CB_LOG_FORMAT"` // json|console
	Sampling bool   `yaml:"sampling" envconfig:"CB_LOG_SAMPLING"`
}

type DatabaseConfig struct {
	URL           string        `yaml:"url" envconfig:"CB_DATABASE_URL"`
	MaxConns      int32         `yaml:"max_conns" envconfig:"CB_DATABASE_MAX_CONNS"`
	QueryTimeout  time.Duration `yaml:"query_timeout" envconfig:"CB_DATABASE_QUERY_TIMEOUT"`
	MigrateOnBoot bool          `yaml:"migrate_on_boot" envconfig:"CB_DATABASE_MIGRATE"`
}

type RedisConfig struct {
	URL      string `yaml:"url" envconfig:"CB_REDIS_URL"`
	Password string `yaml:"password" envconfig:"CB_REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"CB_REDIS_DB"`
	// inbound updates allowed per user per RateWindow; 0 disables limiting
	RateLimit  int           `yaml:"rate_limit" envconfig:"CB_REDIS_RATE_LIMIT"`
	RateWindow time.Duration `yaml:"rate_window" envconfig:"CB_REDIS_RATE_WINDOW"`
}

type LLMConfig struct {
	OpenAIKey        string            `yaml:"openai_key" envconfig:"CB_LLM_OPENAI_KEY"`
	OpenAIBaseURL    string            `yaml:"openai_base_url" envconfig:"CB_LLM_OPENAI_BASE_URL"`
	GeminiKey        string            `yaml:"gemini_key" envconfig:"CB_LLM_GEMINI_KEY"`
	GeminiURL        string            `yaml:"gemini_url" envconfig:"CB_LLM_GEMINI_URL"`
	DefaultProvider  string            `yaml:"default_provider" envconfig:"CB_LLM_DEFAULT_PROVIDER"`
	ModelProviders   map[string]string `yaml:"model_providers" ignored:"true"`
	// Failover retries a failed call on the other provider with its own model.
	Failover         bool              `yaml:"failover" envconfig:"CB_LLM_FAILOVER"`
	ConcurrentLimit  int               `yaml:"concurrent_limit" envconfig:"CB_LLM_CONCURRENT_LIMIT"`
	MaxContextTokens int               `yaml:"max_context_tokens" envconfig:"CB_LLM_MAX_CONTEXT_TOKENS"`
	MaxOutputTokens  int               `yaml:"max_output_tokens" envconfig:"CB_LLM_MAX_OUTPUT_TOKENS"`
	Timeout          time.Duration     `yaml:"timeout" envconfig:"CB_LLM_TIMEOUT"`
}

type PaymentConfig struct {
	ProviderToken string `yaml:"provider_token" envconfig:"CB_PAYMENT_PROVIDER_TOKEN"`
	Currency      string `yaml:"currency" envconfig:"CB_PAYMENT_CURRENCY"`
	// minor units per price unit, e.g. 100 for kopecks
	MinorUnits    int64  `yaml:"minor_units" envconfig:"CB_PAYMENT_MINOR_UNITS"`
	WebhookSecret string `yaml:"webhook_secret" envconfig:"CB_PAYMENT_WEBHOOK_SECRET"`
}

type StateConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl" envconfig:"CB_STATE_CACHE_TTL"`
	HistoryMaxBytes int           `yaml:"history_max_bytes" envconfig:"CB_STATE_HISTORY_MAX_BYTES"`
	PrefsMaxBytes   int           `yaml:"prefs_max_bytes" envconfig:"CB_STATE_PREFS_MAX_BYTES"`
	SessionMaxBytes int           `yaml:"session_max_bytes" envconfig:"CB_STATE_SESSION_MAX_BYTES"`
}

type BookingConfig struct {
	HoldTTL time.Duration `yaml:"hold_ttl" envconfig:"CB_BOOKING_HOLD_TTL"`
	// number of whole-hour start times offered for scheduled sessions
	UpcomingStarts int `yaml:"upcoming_starts" envconfig:"CB_BOOKING_UPCOMING_STARTS"`
}

type SchedulerConfig struct {
	SweepInterval      time.Duration `yaml:"sweep_interval" envconfig:"CB_SCHEDULER_SWEEP_INTERVAL"`
	CacheEvictInterval time.Duration `yaml:"cache_evict_interval" envconfig:"CB_SCHEDULER_CACHE_EVICT_INTERVAL"`
	TickTimeout        time.Duration `yaml:"tick_timeout" envconfig:"CB_SCHEDULER_TICK_TIMEOUT"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" envconfig:"CB_HTTP_ADDR"`
}

type PersonaConfig struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Model          string  `yaml:"model"`
	Prompt         string  `yaml:"prompt"`
	Description    string  `yaml:"description"`
	Specialty      string  `yaml:"specialty"`
	Greeting       string  `yaml:"greeting"`
	PricePerMinute float64 `yaml:"price_per_minute"`
}

type CatalogConfig struct {
	DefaultPersona string          `yaml:"default_persona"`
	Personas       []PersonaConfig `yaml:"personas"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Payment   PaymentConfig   `yaml:"payment"`
	State     StateConfig     `yaml:"state"`
	Booking   BookingConfig   `yaml:"booking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	HTTP      HTTPConfig      `yaml:"http"`
	Catalog   CatalogConfig   `yaml:"catalog" ignored:"true"`

	Runtime RuntimeConfig `yaml:"runtime"`
}

// LoadConfig parses flags and delegates to Load.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", envOr("CONFIG_PATH", "config.yaml"), "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = cfg.Runtime.Dev || dev
	return cfg, nil
}

// Load reads the YAML file (optional), overlays environment variables and
// applies defaults before validating.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only configuration
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Runtime.UpdateWorkers <= 0 {
		c.Runtime.UpdateWorkers = 8
	}
	if c.Bot.PollTimeout <= 0 {
		c.Bot.PollTimeout = 30
	}
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Database.QueryTimeout = orDuration(c.Database.QueryTimeout, 5*time.Second)
	c.Redis.RateWindow = orDuration(c.Redis.RateWindow, time.Minute)

	if c.LLM.ConcurrentLimit <= 0 {
		c.LLM.ConcurrentLimit = 16
	}
	if c.LLM.MaxContextTokens <= 0 {
		c.LLM.MaxContextTokens = 3000
	}
	if c.LLM.MaxOutputTokens <= 0 {
		c.LLM.MaxOutputTokens = 1024
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	c.LLM.Timeout = orDuration(c.LLM.Timeout, 60*time.Second)

	if c.Payment.Currency == "" {
		c.Payment.Currency = "RUB"
	}
	if c.Payment.MinorUnits <= 0 {
		c.Payment.MinorUnits = 100
	}

	c.State.CacheTTL = orDuration(c.State.CacheTTL, 300*time.Second)
	if c.State.HistoryMaxBytes <= 0 {
		c.State.HistoryMaxBytes = 5120
	}
	if c.State.PrefsMaxBytes <= 0 {
		c.State.PrefsMaxBytes = 1024
	}
	if c.State.SessionMaxBytes <= 0 {
		c.State.SessionMaxBytes = 32 * 1024
	}

	c.Booking.HoldTTL = orDuration(c.Booking.HoldTTL, 5*time.Minute)
	if c.Booking.UpcomingStarts <= 0 {
		c.Booking.UpcomingStarts = 6
	}

	c.Scheduler.SweepInterval = orDuration(c.Scheduler.SweepInterval, 60*time.Second)
	c.Scheduler.CacheEvictInterval = orDuration(c.Scheduler.CacheEvictInterval, 600*time.Second)
	c.Scheduler.TickTimeout = orDuration(c.Scheduler.TickTimeout, 30*time.Second)

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate performs the minimal checks needed to boot.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.RateLimit < 0 {
		return errors.New("redis.rate_limit must be >= 0")
	}
	seen := make(map[string]struct{}, len(c.Catalog.Personas))
	for _, p := range c.Catalog.Personas {
		if p.ID == "" {
			return errors.New("catalog.personas[].id is required")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("catalog persona %q declared twice", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.PricePerMinute < 0 {
			return fmt.Errorf("catalog persona %q has negative price", p.ID)
		}
	}
	return nil
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
