package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadenrich-cli/internal/cost"
)

// Config holds the full application configuration. It is constructed once at
// process start and passed by reference; there is no ambient mutable state
// beyond the global logger.
type Config struct {
	RapidAPI RapidAPIConfig `yaml:"rapidapi" mapstructure:"rapidapi"`
	Apify    ApifyConfig    `yaml:"apify" mapstructure:"apify"`
	Run      RunConfig      `yaml:"run" mapstructure:"run"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Pricing  cost.Rates     `yaml:"pricing" mapstructure:"pricing"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`

	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// RapidAPIConfig holds the Google Search provider settings.
type RapidAPIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Host    string `yaml:"host" mapstructure:"host"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ApifyConfig holds the Instagram scrape provider settings.
type ApifyConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ActorID     string `yaml:"actor_id" mapstructure:"actor_id"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RunConfig configures batch processing behavior.
type RunConfig struct {
	EnrichEnabled       bool    `yaml:"enrich_enabled" mapstructure:"enrich_enabled"`
	MaxRows             int     `yaml:"max_rows" mapstructure:"max_rows"`
	PerCallDelaySeconds float64 `yaml:"per_call_delay_seconds" mapstructure:"per_call_delay_seconds"`
	CostCeiling         float64 `yaml:"cost_ceiling" mapstructure:"cost_ceiling"`
	SaveEvery           int     `yaml:"save_every" mapstructure:"save_every"`
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	QueryTemplate       string  `yaml:"query_template" mapstructure:"query_template"`
}

// ResolverConfig configures candidate selection.
type ResolverConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	ResultLimit         int     `yaml:"result_limit" mapstructure:"result_limit"`
}

// RetryConfig configures the provider retry policy.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter      float64 `yaml:"jitter" mapstructure:"jitter"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// StoreConfig configures the run-history store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the run-status HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background metrics checker used by the
// status server.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("rapidapi.host", "google-search116.p.rapidapi.com")
	v.SetDefault("rapidapi.base_url", "https://google-search116.p.rapidapi.com")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "apify~instagram-scraper")
	v.SetDefault("apify.timeout_secs", 120)
	v.SetDefault("run.enrich_enabled", true)
	v.SetDefault("run.max_rows", 0)
	v.SetDefault("run.per_call_delay_seconds", 1.5)
	v.SetDefault("run.cost_ceiling", 0.0)
	v.SetDefault("run.save_every", 10)
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("resolver.confidence_threshold", 0.5)
	v.SetDefault("resolver.result_limit", 10)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("pricing.search_per_query", 0.005)
	v.SetDefault("pricing.scrape_per_profile", 0.0023)
	v.SetDefault("pricing.scrape_per_failed_run", 0.001)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "leadenrich.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
