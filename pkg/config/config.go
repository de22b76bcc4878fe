// Package config loads service configuration from defaults, an optional
// ragchat.yaml file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration shared by all binaries.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Snapshot      SnapshotConfig      `mapstructure:"snapshot"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Completion    CompletionConfig    `mapstructure:"completion"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Supplementary SupplementaryConfig `mapstructure:"supplementary"`
	Persona       PersonaConfig       `mapstructure:"persona"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
}

// ServiceConfig holds HTTP service settings.
type ServiceConfig struct {
	Name            string        `mapstructure:"name"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// SnapshotConfig locates the knowledge base snapshot.
type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // openai or hash
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Dimension int           `mapstructure:"dimension"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
}

// CompletionConfig tunes the language model backend.
type CompletionConfig struct {
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig controls similarity search.
type RetrievalConfig struct {
	ChatTopK   int     `mapstructure:"chat_top_k"`
	SearchTopK int     `mapstructure:"search_top_k"`
	MinScore   float32 `mapstructure:"min_score"`
}

// ChunkingConfig controls the word-window chunker.
type ChunkingConfig struct {
	ChunkSize     int `mapstructure:"chunk_size"`
	Overlap       int `mapstructure:"overlap"`
	MinChunkChars int `mapstructure:"min_chunk_chars"`
}

// CrawlerConfig describes the site crawled by the ingester.
type CrawlerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Pages         []string      `mapstructure:"pages"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

// SupplementaryConfig points at an optional directory of extra documents.
type SupplementaryConfig struct {
	Dir string `mapstructure:"dir"`
}

// PersonaConfig names the assistant and the organization it speaks for.
type PersonaConfig struct {
	AssistantName string `mapstructure:"assistant_name"`
	Organization  string `mapstructure:"organization"`
	SiteName      string `mapstructure:"site_name"`
}

// BreakerConfig configures the circuit breakers around model backends.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// DefaultPages is the list of annisa.org paths crawled by default.
var DefaultPages = []string{
	"/", "/about", "/services", "/mental-health", "/blog", "/advocacy",
	"/food-pantry", "/donate", "/volunteer", "/about-us", "/team", "/gallery",
	"/contact-us", "/roadmap", "/family-violence", "/ecrf",
}

// ErrMissingCompletionKey is returned when no API key is configured for the
// completion backend.
var ErrMissingCompletionKey = errors.New("OPENAI_API_KEY is not set")

// Load reads configuration. When configFile is empty, ragchat.yaml is looked
// up in the usual places and its absence is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ragchat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ragchat")
	}

	setDefaults(v)

	v.SetEnvPrefix("RAGCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "Annisa.org RAG Chatbot")
	v.SetDefault("service.port", 5001)
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.shutdown_timeout", 10*time.Second)
	v.SetDefault("service.cors_origins", []string{"*"})

	v.SetDefault("snapshot.path", "data/knowledge_base.snapshot")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache_size", 1024)

	v.SetDefault("completion.model", "gpt-4")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", "")
	v.SetDefault("completion.max_tokens", 500)
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.timeout", 30*time.Second)

	v.SetDefault("retrieval.chat_top_k", 3)
	v.SetDefault("retrieval.search_top_k", 5)
	v.SetDefault("retrieval.min_score", 0.1)

	v.SetDefault("chunking.chunk_size", 500)
	v.SetDefault("chunking.overlap", 50)
	v.SetDefault("chunking.min_chunk_chars", 50)

	v.SetDefault("crawler.base_url", "https://annisa.org")
	v.SetDefault("crawler.pages", DefaultPages)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("crawler.timeout", 10*time.Second)
	v.SetDefault("crawler.rate_per_second", 1.0)
	v.SetDefault("crawler.max_retries", 2)

	v.SetDefault("supplementary.dir", "")

	v.SetDefault("persona.assistant_name", "Amal")
	v.SetDefault("persona.organization", "An-Nisa Hope Center")
	v.SetDefault("persona.site_name", "annisa.org")

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", 60*time.Second)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.failure_ratio", 0.6)
}

// bindEnv maps the conventional unprefixed variables onto config keys.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"service.port":        {"RAGCHAT_SERVICE_PORT", "PORT"},
		"service.log_level":   {"RAGCHAT_SERVICE_LOG_LEVEL", "LOG_LEVEL"},
		"snapshot.path":       {"RAGCHAT_SNAPSHOT_PATH", "SNAPSHOT_PATH"},
		"embedding.provider":  {"RAGCHAT_EMBEDDING_PROVIDER", "EMBEDDING_PROVIDER"},
		"embedding.model":     {"RAGCHAT_EMBEDDING_MODEL", "EMBEDDING_MODEL"},
		"embedding.api_key":   {"RAGCHAT_EMBEDDING_API_KEY", "OPENAI_API_KEY"},
		"embedding.base_url":  {"RAGCHAT_EMBEDDING_BASE_URL", "EMBEDDING_BASE_URL", "OPENAI_BASE_URL"},
		"completion.model":    {"RAGCHAT_COMPLETION_MODEL", "COMPLETION_MODEL"},
		"completion.api_key":  {"RAGCHAT_COMPLETION_API_KEY", "OPENAI_API_KEY"},
		"completion.base_url": {"RAGCHAT_COMPLETION_BASE_URL", "OPENAI_BASE_URL"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Snapshot.Path == "" {
		return errors.New("snapshot path is required")
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.Model == "" {
			return errors.New("embedding model is required")
		}
	case "hash":
		if c.Embedding.Dimension < 0 {
			return fmt.Errorf("invalid embedding dimension: %d", c.Embedding.Dimension)
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("overlap %d must be in [0, %d)", c.Chunking.Overlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.MinChunkChars < 0 {
		return fmt.Errorf("min chunk chars must not be negative, got %d", c.Chunking.MinChunkChars)
	}

	if c.Retrieval.ChatTopK <= 0 || c.Retrieval.SearchTopK <= 0 {
		return errors.New("retrieval top_k values must be positive")
	}
	if c.Retrieval.MinScore < -1 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("min score %v outside [-1, 1]", c.Retrieval.MinScore)
	}

	if c.Crawler.RatePerSecond <= 0 {
		return fmt.Errorf("crawler rate must be positive, got %v", c.Crawler.RatePerSecond)
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler max retries must not be negative, got %d", c.Crawler.MaxRetries)
	}
	return nil
}

// RequireCompletionKey reports whether the completion backend can be used.
func (c *Config) RequireCompletionKey() error {
	if strings.TrimSpace(c.Completion.APIKey) == "" {
		return ErrMissingCompletionKey
	}
	return nil
}
