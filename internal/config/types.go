package config

import "time"

// Config is the root service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Detection  DetectionConfig  `yaml:"detection" mapstructure:"detection"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Judge      JudgeConfig      `yaml:"judge" mapstructure:"judge"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// AuthConfig contains API key authentication settings. With no keys
// configured, authentication is disabled.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// RateLimitConfig contains per-client request rate limits.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// DetectionConfig contains cascade-level settings.
type DetectionConfig struct {
	MaxInputLength int `yaml:"max_input_length" mapstructure:"max_input_length"`
}

// EmbeddingConfig selects and configures the embedding provider. Provider is
// "openai" or "hash"; an empty OpenAI API key downgrades to hash.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"`
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`
	Model      string        `yaml:"model" mapstructure:"model"`
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SimilarityConfig locates the attack corpus and sets the match threshold.
// With no matrix path configured, layer 2 is unavailable.
type SimilarityConfig struct {
	MatrixPath   string  `yaml:"matrix_path" mapstructure:"matrix_path"`
	MetadataPath string  `yaml:"metadata_path" mapstructure:"metadata_path"`
	Threshold    float64 `yaml:"threshold" mapstructure:"threshold"`
}

// JudgeConfig configures the model judge. With no API key, layer 3 is
// unavailable.
type JudgeConfig struct {
	APIKey              string        `yaml:"api_key" mapstructure:"api_key"`
	Model               string        `yaml:"model" mapstructure:"model"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// CacheConfig contains the Redis result cache settings.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// EventsConfig contains the WebSocket event stream settings.
type EventsConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	StatusInterval  time.Duration `yaml:"status_interval" mapstructure:"status_interval"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	IncludeInputs   bool          `yaml:"include_inputs" mapstructure:"include_inputs"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults. Layers 2 and 3
// stay disabled until their backends are configured.
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Detection: DetectionConfig{
			MaxInputLength: 10_000,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    10 * time.Second,
		},
		Similarity: SimilarityConfig{
			Threshold: 0.55,
		},
		Judge: JudgeConfig{
			Model:               "claude-3-5-haiku-latest",
			Timeout:             3 * time.Second,
			ConfidenceThreshold: 0.70,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			KeyPrefix:      "detect",
			TTL:            time.Hour,
			MaxConnections: 10,
			MinIdleConns:   2,
		},
		Events: EventsConfig{
			Enabled:         false,
			Path:            "/ws",
			MaxConnections:  100,
			WriteTimeout:    10 * time.Second,
			PingInterval:    30 * time.Second,
			StatusInterval:  30 * time.Second,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
