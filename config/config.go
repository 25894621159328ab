package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for tickerscope.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Data      DataConfig      `mapstructure:"data"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug       bool          `mapstructure:"debug"`
	LogLevel    string        `mapstructure:"log_level"`
	RunDeadline time.Duration `mapstructure:"run_deadline"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Provider  string                 `mapstructure:"provider"`
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model to use for each call site
type LLMRoutingConfig struct {
	Planning string `mapstructure:"planning"`
	Summary  string `mapstructure:"summary"`
	News     string `mapstructure:"news"`
}

// Active returns the selected provider entry.
func (l LLMConfig) Active() (LLMProvider, bool) {
	p, ok := l.Providers[l.Provider]
	return p, ok
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0 when telemetry is enabled")
	}
	return nil
}

// AgentsConfig bounds the indicator worker pool.
type AgentsConfig struct {
	MaxWorkers  int           `mapstructure:"max_workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

func (a AgentsConfig) Validate() error {
	if a.MaxWorkers <= 0 {
		return fmt.Errorf("agents.max_workers must be greater than zero")
	}
	if a.TaskTimeout <= 0 {
		return fmt.Errorf("agents.task_timeout must be greater than zero")
	}
	return nil
}

// AnalysisConfig controls run defaults and report output.
type AnalysisConfig struct {
	DefaultPeriod string `mapstructure:"default_period"`
	ReportsDir    string `mapstructure:"reports_dir"`
	SaveMarkdown  bool   `mapstructure:"save_markdown"`
	SaveDatabase  bool   `mapstructure:"save_database"`
}

// DataConfig selects and tunes the historical price provider.
type DataConfig struct {
	Provider          string        `mapstructure:"provider"` // yahoo, synthetic
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	SyntheticFallback bool          `mapstructure:"synthetic_fallback"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
}

func (d DataConfig) Validate() error {
	switch d.Provider {
	case "yahoo", "synthetic":
	default:
		return fmt.Errorf("data.provider must be yahoo or synthetic, got %q", d.Provider)
	}
	if d.Retries < 0 {
		return fmt.Errorf("data.retries must be >= 0")
	}
	return nil
}

// SourcesConfig holds auxiliary data sources used by individual indicators.
type SourcesConfig struct {
	NewsAPI      NewsAPIConfig      `mapstructure:"newsapi"`
	Fundamentals FundamentalsConfig `mapstructure:"fundamentals"`
}

// NewsAPIConfig configures the headline source.
type NewsAPIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	MaxResults int    `mapstructure:"max_results"`
}

// FundamentalsConfig configures the valuation data source.
type FundamentalsConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig contains storage backends; each is optional.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether Postgres is configured at all.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.URL) != "" || strings.TrimSpace(p.Host) != ""
}

// DSN builds a connection string, preferring URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if !p.Enabled() || strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// SchedulerConfig drives the watch command.
type SchedulerConfig struct {
	Cron     string        `mapstructure:"cron"`
	Subjects []string      `mapstructure:"subjects"`
	Mode     string        `mapstructure:"mode"`
	Period   string        `mapstructure:"period"`
	Interval time.Duration `mapstructure:"interval"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	return errors.Join(
		c.Telemetry.Validate(),
		c.Agents.Validate(),
		c.Data.Validate(),
		c.Storage.Redis.Validate(),
		c.Storage.Postgres.Validate(),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.debug", false)
	v.SetDefault("general.run_deadline", 2*time.Minute)

	v.SetDefault("server.address", ":8080")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.providers", map[string]any{
		"openai": map[string]any{
			"type":        "openai",
			"base_url":    "https://api.openai.com/v1",
			"timeout":     60 * time.Second,
			"max_retries": 2,
			"models": map[string]any{
				"gpt-4-turbo": map[string]any{
					"name":        "gpt-4-turbo",
					"api_name":    "gpt-4-turbo",
					"max_tokens":  1200,
					"temperature": 0.2,
				},
			},
		},
	})
	v.SetDefault("llm.routing.planning", "gpt-4-turbo")
	v.SetDefault("llm.routing.summary", "gpt-4-turbo")
	v.SetDefault("llm.routing.news", "gpt-4-turbo")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "tickerscope")
	v.SetDefault("telemetry.metrics_port", 0)

	v.SetDefault("agents.max_workers", 5)
	v.SetDefault("agents.task_timeout", 30*time.Second)

	v.SetDefault("analysis.default_period", "1y")
	v.SetDefault("analysis.reports_dir", "reports")
	v.SetDefault("analysis.save_markdown", true)
	v.SetDefault("analysis.save_database", false)

	v.SetDefault("data.provider", "yahoo")
	v.SetDefault("data.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("data.timeout", 15*time.Second)
	v.SetDefault("data.retries", 2)
	v.SetDefault("data.synthetic_fallback", true)
	v.SetDefault("data.cache_ttl", 30*time.Minute)

	v.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	v.SetDefault("sources.newsapi.max_results", 20)
	v.SetDefault("sources.fundamentals.base_url", "https://query2.finance.yahoo.com")

	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.postgres.timeout", 10*time.Second)

	v.SetDefault("scheduler.cron", "0 22 * * 1-5")
	v.SetDefault("scheduler.mode", "technical")
	v.SetDefault("scheduler.period", "1y")
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)
}

// Load reads configuration from an optional file plus TICKERSCOPE_* environment variables.
// A missing config file is not an error when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("TICKERSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overrideFromEnv applies the conventional unprefixed variables used by the
// upstream services.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.LLM.Providers == nil {
			cfg.LLM.Providers = map[string]LLMProvider{}
		}
		p := cfg.LLM.Providers[cfg.LLM.Provider]
		if p.APIKey == "" {
			p.APIKey = key
			cfg.LLM.Providers[cfg.LLM.Provider] = p
		}
	}
	if key := os.Getenv("NEWSAPI_API_KEY"); key != "" && cfg.Sources.NewsAPI.APIKey == "" {
		cfg.Sources.NewsAPI.APIKey = key
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && cfg.Storage.Postgres.URL == "" {
		cfg.Storage.Postgres.URL = dsn
	}
	if host := os.Getenv("REDIS_HOST"); host != "" && cfg.Storage.Redis.Host == "" {
		cfg.Storage.Redis.Host = host
		cfg.Storage.Redis.Port = os.Getenv("REDIS_PORT")
		if cfg.Storage.Redis.Port == "" {
			cfg.Storage.Redis.Port = "6379"
		}
		cfg.Storage.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}
