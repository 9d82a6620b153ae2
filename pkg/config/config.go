package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	RestAPI  RestAPIConfig  `mapstructure:"rest_api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Topic    TopicConfig    `mapstructure:"topic"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RestAPIConfig holds REST API server configuration.
type RestAPIConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	CORS     bool   `mapstructure:"cors"`
	AutoPort bool   `mapstructure:"auto_port"`
	APIKey   string `mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// OracleConfig holds the embedding/LLM oracle configuration.
// Env var names follow the wire contract of the original reference
// implementation's OpenAI-compatible client.
type OracleConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	ChatModel  string `mapstructure:"chat_model"`
	EmbedModel string `mapstructure:"embed_model"`
}

// TopicConfig holds the topic/stance layer tunables from the spec's
// configuration surface.
type TopicConfig struct {
	EmbeddingDim                 int     `mapstructure:"embedding_dim"`
	TopicSimilarityThreshold     float64 `mapstructure:"topic_similarity_threshold"`
	SubtopicSimilarityThreshold  float64 `mapstructure:"subtopic_similarity_threshold"`
	TopicNeighborTopK            int     `mapstructure:"topic_neighbor_top_k"`
	StanceConfidenceMargin       float64 `mapstructure:"stance_confidence_margin"`
	OpposingAlpha                float64 `mapstructure:"opposing_alpha"`
	FallbackSimilarityFloor      float64 `mapstructure:"fallback_similarity_floor"`
	ReclusterMinPoints           int     `mapstructure:"recluster_min_points"`
	ReclusterEntropyThreshold    float64 `mapstructure:"recluster_entropy_threshold"`
	MaxEdgesPerNode              int     `mapstructure:"max_edges_per_node"`
}

// DefaultConfig returns configuration with the spec's documented defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".ideaengine")

	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(configDir, "ideas.db"),
		},
		RestAPI: RestAPIConfig{
			Host:     "localhost",
			Port:     8085,
			CORS:     true,
			AutoPort: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Oracle: OracleConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Topic: TopicConfig{
			EmbeddingDim:                1536,
			TopicSimilarityThreshold:    0.62,
			SubtopicSimilarityThreshold: 0.70,
			TopicNeighborTopK:           8,
			StanceConfidenceMargin:      0.04,
			OpposingAlpha:               0.65,
			FallbackSimilarityFloor:     0.33,
			ReclusterMinPoints:          24,
			ReclusterEntropyThreshold:   1.05,
			MaxEdgesPerNode:             12,
		},
	}
}

// Load loads configuration from a YAML file with fallback to defaults.
// Searches in ./config.yaml, ~/.ideaengine/config.yaml, /etc/ideaengine.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".ideaengine"))
	v.AddConfigPath("/etc/ideaengine")

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("error unmarshaling defaults: %w", err)
			}
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("rest_api.host", d.RestAPI.Host)
	v.SetDefault("rest_api.port", d.RestAPI.Port)
	v.SetDefault("rest_api.cors", d.RestAPI.CORS)
	v.SetDefault("rest_api.auto_port", d.RestAPI.AutoPort)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("oracle.base_url", d.Oracle.BaseURL)
	v.SetDefault("oracle.chat_model", d.Oracle.ChatModel)
	v.SetDefault("oracle.embed_model", d.Oracle.EmbedModel)
	v.SetDefault("topic.embedding_dim", d.Topic.EmbeddingDim)
	v.SetDefault("topic.topic_similarity_threshold", d.Topic.TopicSimilarityThreshold)
	v.SetDefault("topic.subtopic_similarity_threshold", d.Topic.SubtopicSimilarityThreshold)
	v.SetDefault("topic.topic_neighbor_top_k", d.Topic.TopicNeighborTopK)
	v.SetDefault("topic.stance_confidence_margin", d.Topic.StanceConfidenceMargin)
	v.SetDefault("topic.opposing_alpha", d.Topic.OpposingAlpha)
	v.SetDefault("topic.fallback_similarity_floor", d.Topic.FallbackSimilarityFloor)
	v.SetDefault("topic.recluster_min_points", d.Topic.ReclusterMinPoints)
	v.SetDefault("topic.recluster_entropy_threshold", d.Topic.ReclusterEntropyThreshold)
	v.SetDefault("topic.max_edges_per_node", d.Topic.MaxEdgesPerNode)
}

// bindEnv wires the spec's documented env var names (§6) onto the
// nested config keys, since they don't follow viper's default
// underscore-section convention.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("rest_api.host", "REST_API_HOST")
	_ = v.BindEnv("rest_api.port", "REST_API_PORT")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("oracle.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("oracle.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("oracle.chat_model", "OPENAI_LLM_MODEL")
	_ = v.BindEnv("oracle.embed_model", "OPENAI_EMBED_MODEL")
	_ = v.BindEnv("topic.embedding_dim", "EMBEDDING_DIM")
	_ = v.BindEnv("topic.topic_similarity_threshold", "TOPIC_SIMILARITY_THRESHOLD")
	_ = v.BindEnv("topic.subtopic_similarity_threshold", "SUBTOPIC_SIMILARITY_THRESHOLD")
	_ = v.BindEnv("topic.topic_neighbor_top_k", "TOPIC_NEIGHBOR_TOP_K")
	_ = v.BindEnv("topic.stance_confidence_margin", "STANCE_CONFIDENCE_MARGIN")
	_ = v.BindEnv("topic.opposing_alpha", "OPPOSING_ALPHA")
	_ = v.BindEnv("topic.fallback_similarity_floor", "FALLBACK_SIMILARITY_FLOOR")
	_ = v.BindEnv("topic.recluster_min_points", "RECLUSTER_MIN_POINTS")
	_ = v.BindEnv("topic.recluster_entropy_threshold", "RECLUSTER_ENTROPY_THRESHOLD")
	_ = v.BindEnv("topic.max_edges_per_node", "MAX_EDGES_PER_NODE")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
		return fmt.Errorf("rest_api.port must be between 1 and 65535")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}
	if c.Topic.EmbeddingDim <= 0 {
		return fmt.Errorf("topic.embedding_dim must be positive")
	}
	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func (c *Config) EnsureConfigDir() error {
	dir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
