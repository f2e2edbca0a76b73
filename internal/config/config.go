package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Payment    PaymentConfig    `yaml:"payment" mapstructure:"payment"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend. Driver is "sqlite",
// "postgres", or "none" (fully in-memory engine).
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the classifier.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina Search API settings (directory search backend).
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	SearchCost    float64 `yaml:"search_cost" mapstructure:"search_cost"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PerplexityConfig holds Perplexity API settings (directory search backend).
type PerplexityConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Model      string  `yaml:"model" mapstructure:"model"`
	SearchCost float64 `yaml:"search_cost" mapstructure:"search_cost"`
}

// PaymentConfig configures the payment authorizer. An empty GatewayURL
// selects the no-op authorizer (all sources treated as free).
type PaymentConfig struct {
	GatewayURL  string `yaml:"gateway_url" mapstructure:"gateway_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ResearchConfig configures the consensus engine.
type ResearchConfig struct {
	Budget            float64 `yaml:"budget" mapstructure:"budget"`
	MinSources        int     `yaml:"min_sources" mapstructure:"min_sources"`
	MaxParallel       int     `yaml:"max_parallel" mapstructure:"max_parallel"`
	SourceTimeoutSecs int     `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	AllowDiscovery    bool    `yaml:"allow_discovery" mapstructure:"allow_discovery"`
	OutlierK          float64 `yaml:"outlier_k" mapstructure:"outlier_k"`
	TrustModel        string  `yaml:"trust_model" mapstructure:"trust_model"`
	PenalizeOutliers  bool    `yaml:"penalize_outliers" mapstructure:"penalize_outliers"`
}

// DiscoveryConfig configures source discovery.
type DiscoveryConfig struct {
	BudgetFraction        float64 `yaml:"budget_fraction" mapstructure:"budget_fraction"`
	MaxCandidates         int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	ValidationTimeoutSecs int     `yaml:"validation_timeout_secs" mapstructure:"validation_timeout_secs"`
	DefaultCostPerCall    float64 `yaml:"default_cost_per_call" mapstructure:"default_cost_per_call"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "oracle.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.search_cost", 0.005)
	v.SetDefault("jina.rate_limit", 5)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.search_cost", 0.005)
	v.SetDefault("payment.timeout_secs", 10)
	v.SetDefault("research.budget", 1.0)
	v.SetDefault("research.min_sources", 5)
	v.SetDefault("research.max_parallel", 10)
	v.SetDefault("research.source_timeout_secs", 10)
	v.SetDefault("research.allow_discovery", true)
	v.SetDefault("research.outlier_k", 2.0)
	v.SetDefault("research.trust_model", "static")
	v.SetDefault("research.penalize_outliers", true)
	v.SetDefault("discovery.budget_fraction", 0.2)
	v.SetDefault("discovery.max_candidates", 10)
	v.SetDefault("discovery.validation_timeout_secs", 5)
	v.SetDefault("discovery.default_cost_per_call", 0.01)

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
