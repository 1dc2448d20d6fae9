package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodio/simap-assistant/internal/core/domain"
)

// Config holds the full assistant configuration, loaded from a YAML
// file with ${VAR} / ${VAR:-default} environment expansion.
type Config struct {
	Service      string             `yaml:"service"`
	HTTP         HTTPConfig         `yaml:"http"`
	Logging      LoggingConfig      `yaml:"logging"`
	OpenAI       OpenAIConfig       `yaml:"openai"`
	Lexical      LexicalConfig      `yaml:"lexical"`
	Vector       VectorConfig       `yaml:"vector"`
	Rerank       RerankConfig       `yaml:"rerank"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Session      SessionConfig      `yaml:"session"`
}

// HTTPConfig holds server and traffic-control settings.
type HTTPConfig struct {
	Port            int     `yaml:"port"`
	ReadTimeoutSec  int     `yaml:"read_timeout_sec"`
	WriteTimeoutSec int     `yaml:"write_timeout_sec"`
	ShutdownSec     int     `yaml:"shutdown_timeout_sec"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	MaxConcurrent   int     `yaml:"max_concurrent"`
	QueueTimeoutMs  int     `yaml:"queue_timeout_ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// OpenAIConfig holds the chat and embedding model settings.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	GenModel   string `yaml:"gen_model"`
	EmbedModel string `yaml:"embed_model"`
}

// LexicalConfig maps document categories to pre-built FTS5 databases.
type LexicalConfig struct {
	Indexes map[string]string `yaml:"indexes"` // category -> db path
}

// VectorConfig maps document categories to Qdrant collections.
type VectorConfig struct {
	URL         string            `yaml:"url"`
	Collections map[string]string `yaml:"collections"` // category -> collection
}

// RerankConfig holds the cross-encoder rerank settings.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	TopK    int    `yaml:"top_k"`
}

// RetrievalConfig holds the hybrid retrieval tunables.
type RetrievalConfig struct {
	LexicalLimit     int `yaml:"lexical_limit"`
	SemanticK        int `yaml:"semantic_k"`
	RRFK             int `yaml:"rrf_k"`
	DedupPrefix      int `yaml:"dedup_prefix"`
	FusionTopN       int `yaml:"fusion_top_n"`
	SearchTimeoutSec int `yaml:"search_timeout_sec"`
	RerankTimeoutSec int `yaml:"rerank_timeout_sec"`
}

// ConversationConfig holds the per-turn limits.
type ConversationConfig struct {
	MaxContextWords    int `yaml:"max_context_words"`
	DecideTimeoutSec   int `yaml:"decide_timeout_sec"`
	GenerateTimeoutSec int `yaml:"generate_timeout_sec"`
}

// SessionConfig holds the in-memory session store settings.
type SessionConfig struct {
	TTLMin   int `yaml:"ttl_min"`
	SweepMin int `yaml:"sweep_min"`
}

// Load reads a YAML configuration file, expands environment variables,
// applies defaults, and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Path returns the configuration file path from CONFIG_PATH, falling
// back to config/local.yaml.
func Path() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return filepath.Join("config", "local.yaml")
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Service == "" {
		c.Service = "simap-assistant"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 15
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.HTTP.MaxConcurrent <= 0 {
		c.HTTP.MaxConcurrent = 32
	}
	if c.HTTP.QueueTimeoutMs <= 0 {
		c.HTTP.QueueTimeoutMs = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Rerank.TopK <= 0 {
		c.Rerank.TopK = 20
	}
	if c.Retrieval.LexicalLimit <= 0 {
		c.Retrieval.LexicalLimit = 100
	}
	if c.Retrieval.SemanticK <= 0 {
		c.Retrieval.SemanticK = 50
	}
	if c.Retrieval.RRFK <= 0 {
		c.Retrieval.RRFK = 60
	}
	if c.Retrieval.DedupPrefix <= 0 {
		c.Retrieval.DedupPrefix = 150
	}
	if c.Retrieval.FusionTopN <= 0 {
		c.Retrieval.FusionTopN = 150
	}
	if c.Retrieval.SearchTimeoutSec <= 0 {
		c.Retrieval.SearchTimeoutSec = 15
	}
	if c.Retrieval.RerankTimeoutSec <= 0 {
		c.Retrieval.RerankTimeoutSec = 15
	}
	if c.Conversation.MaxContextWords <= 0 {
		c.Conversation.MaxContextWords = 1000000
	}
	if c.Conversation.DecideTimeoutSec <= 0 {
		c.Conversation.DecideTimeoutSec = 20
	}
	if c.Conversation.GenerateTimeoutSec <= 0 {
		c.Conversation.GenerateTimeoutSec = 90
	}
	if c.Session.TTLMin <= 0 {
		c.Session.TTLMin = 60
	}
	if c.Session.SweepMin <= 0 {
		c.Session.SweepMin = 10
	}
}

// Validate checks that everything the process cannot run without is
// present. Failures are fatal at startup.
func (c *Config) Validate() error {
	missing := func(field string) error {
		return domain.WrapError(domain.ErrConfigurationMissing, "validate config",
			fmt.Errorf("%s is required", field))
	}

	if c.OpenAI.APIKey == "" {
		return missing("openai.api_key")
	}
	if c.OpenAI.GenModel == "" {
		return missing("openai.gen_model")
	}
	if c.OpenAI.EmbedModel == "" {
		return missing("openai.embed_model")
	}
	if len(c.Lexical.Indexes) == 0 {
		return missing("lexical.indexes")
	}
	if c.Vector.URL == "" {
		return missing("vector.url")
	}
	if len(c.Vector.Collections) == 0 {
		return missing("vector.collections")
	}
	if c.Rerank.Enabled && c.Rerank.BaseURL == "" {
		return missing("rerank.base_url")
	}
	if c.HTTP.Port > 65535 {
		return domain.WrapError(domain.ErrConfigurationMissing, "validate config",
			fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	return nil
}

// Categories returns the configured document categories, which must be
// served by both indexes.
func (c *Config) Categories() []string {
	out := make([]string, 0, len(c.Lexical.Indexes))
	for category := range c.Lexical.Indexes {
		out = append(out, category)
	}
	return out
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
