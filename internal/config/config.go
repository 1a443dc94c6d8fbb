package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	LLM      LLMConfig
	Resolver ResolverConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// LLMConfig holds provider settings for the classifier, the arbitration
// oracle and the embedding backend.
type LLMConfig struct {
	Provider       string
	APIKeyEnv      string `mapstructure:"api_key_env"`
	APIKey         string `mapstructure:"api_key"`
	Model          string
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// ResolveAPIKey returns the configured key, preferring the literal value
// over the environment variable indirection.
func (c LLMConfig) ResolveAPIKey() string {
	if strings.TrimSpace(c.APIKey) != "" {
		return strings.TrimSpace(c.APIKey)
	}
	if c.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
	}
	return ""
}

// ResolverConfig holds the engine's tunables. Each external stage gets
// its own timeout; there is no shared deadline across stages.
type ResolverConfig struct {
	TopK            int           `mapstructure:"top_k"`
	MatchThreshold  float64       `mapstructure:"match_threshold"`
	AmbiguousFloor  float64       `mapstructure:"ambiguous_floor"`
	SemanticFloor   float64       `mapstructure:"semantic_floor"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	RetrieveTimeout time.Duration `mapstructure:"retrieve_timeout"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	OracleTimeout   time.Duration `mapstructure:"oracle_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from file and env. Env var overrides use
// prefix VENDORMATCH_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "vendormatch", "vendormatch.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.embedding_model", "gemini-embedding-001")
	v.SetDefault("resolver.top_k", 5)
	v.SetDefault("resolver.match_threshold", 0.70)
	v.SetDefault("resolver.ambiguous_floor", 0.50)
	v.SetDefault("resolver.semantic_floor", 0.55)
	v.SetDefault("resolver.store_timeout", "5s")
	v.SetDefault("resolver.retrieve_timeout", "15s")
	v.SetDefault("resolver.classify_timeout", "10s")
	v.SetDefault("resolver.oracle_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("VENDORMATCH_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "vendormatch"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("VENDORMATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
