package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`

	// Auth
	StudyguideAPIKey string `mapstructure:"studyguide_api_key"`

	// Perplexity generation
	PplxAPIKey  string `mapstructure:"pplx_api_key"`
	PplxBaseURL string `mapstructure:"pplx_base_url"`
	PplxModel   string `mapstructure:"pplx_model"`

	// Token budget per guide
	TokenBudgetUSD   float64 `mapstructure:"token_budget_usd"`
	PricePer1KTokens float64 `mapstructure:"price_per_1k_tokens"`

	// Output
	SiteDir       string `mapstructure:"site_dir"`
	TemplateDir   string `mapstructure:"template_dir"`
	AssetDir      string `mapstructure:"asset_dir"`
	DiagramFormat string `mapstructure:"diagram_format"`
	DiagramFont   string `mapstructure:"diagram_font"`

	// Response cache
	CacheType      string        `mapstructure:"cache_type"`
	RedisURL       string        `mapstructure:"redis_url"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CacheNamespace string        `mapstructure:"cache_namespace"`

	// Worker pool
	WorkerCount           int `mapstructure:"worker_count"`
	MaxQueueSize          int `mapstructure:"max_queue_size"`
	MaxConcurrentGenerate int `mapstructure:"max_concurrent_generate"`
	MaxRetries            int `mapstructure:"max_retries"`
	MaxParseAttempts      int `mapstructure:"max_parse_attempts"`

	// Job state
	JobTTL time.Duration `mapstructure:"job_ttl"`

	// Storage
	DatabasePath string `mapstructure:"database_path"`

	// Reference uploads
	MaxUploadBytes       int64 `mapstructure:"max_upload_bytes"`
	ReferenceMaxTokens   int   `mapstructure:"reference_max_tokens"`
	PDFFallbackPdftotext bool  `mapstructure:"pdf_fallback_pdftotext"`

	// Observability
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")
	v.SetDefault("studyguide_api_key", "")

	v.SetDefault("pplx_api_key", "")
	v.SetDefault("pplx_base_url", "https://api.perplexity.ai")
	v.SetDefault("pplx_model", "sonar")

	v.SetDefault("token_budget_usd", 0.25)
	v.SetDefault("price_per_1k_tokens", 0.001)

	v.SetDefault("site_dir", "site")
	v.SetDefault("template_dir", "templates")
	v.SetDefault("asset_dir", "assets")
	v.SetDefault("diagram_format", "png")
	v.SetDefault("diagram_font", "")

	v.SetDefault("cache_type", "memory")
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("cache_namespace", "perplexity_api")

	v.SetDefault("worker_count", 2)
	v.SetDefault("max_queue_size", 50)
	v.SetDefault("max_concurrent_generate", 3)
	v.SetDefault("max_retries", 5)
	v.SetDefault("max_parse_attempts", 2)

	v.SetDefault("job_ttl", "1h")

	v.SetDefault("database_path", "studyguide.db")

	v.SetDefault("max_upload_bytes", 20971520) // 20MB
	v.SetDefault("reference_max_tokens", 2000)
	v.SetDefault("pdf_fallback_pdftotext", true)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("tracing_enabled", false)
}

// Load reads configuration from defaults, an optional YAML file named by
// STUDYGUIDE_CONFIG, a .env file in the working directory, and the
// environment, later sources overriding earlier ones.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("STUDYGUIDE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 50
	}
	if c.MaxConcurrentGenerate <= 0 {
		c.MaxConcurrentGenerate = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxParseAttempts <= 0 {
		c.MaxParseAttempts = 1
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 20971520
	}
	if c.ReferenceMaxTokens <= 0 {
		c.ReferenceMaxTokens = 2000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	c.CacheType = strings.ToLower(c.CacheType)
	c.DiagramFormat = strings.ToLower(c.DiagramFormat)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.StudyguideAPIKey == "" {
		return fmt.Errorf("STUDYGUIDE_API_KEY is required")
	}
	return c.ValidateGeneration()
}

// ValidateGeneration checks the settings needed to call the model and cache
// its responses. The CLI uses it without requiring a server key.
func (c Config) ValidateGeneration() error {
	if c.PplxAPIKey == "" {
		return fmt.Errorf("PPLX_API_KEY is required")
	}
	switch c.CacheType {
	case "memory", "none":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_TYPE=redis")
		}
	default:
		return fmt.Errorf("unsupported CACHE_TYPE %q", c.CacheType)
	}
	switch c.DiagramFormat {
	case "png", "dot":
	default:
		return fmt.Errorf("unsupported DIAGRAM_FORMAT %q", c.DiagramFormat)
	}
	return nil
}
