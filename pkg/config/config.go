package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/scribehub/scribe/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the Scribe server configuration.
//
// This structure captures the static configuration of the knowledge hub:
//   - Logging configuration
//   - HTTP server settings
//   - Relational database connection (users, tags, files, chunks, passages)
//   - Redis (bitmaps, tag cache, sessions, conversations)
//   - Object store (chunk and merged-object storage)
//   - Kafka (post-merge ingestion tasks)
//   - Elasticsearch (hybrid search index)
//   - AI endpoints (embedding and chat models)
//   - Auth (JWT secrets and lifetimes)
//   - Ingestion tuning (buffer sizes, passage size, memory cap)
//   - Chat orchestration (system prompt, generation parameters)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SCRIBE_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the relational store (PostgreSQL or SQLite)
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Redis configures the fast KV store
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// S3 configures the object store holding chunk and merged objects
	S3 S3Config `mapstructure:"s3" yaml:"s3"`

	// Kafka configures the post-merge task queue
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`

	// Elasticsearch configures the hybrid search store
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch" yaml:"elasticsearch"`

	// AI configures the embedding and chat model endpoints
	AI AIConfig `mapstructure:"ai" yaml:"ai"`

	// Auth configures session and refresh token issuing
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Ingest tunes the parse/embed pipeline
	Ingest IngestConfig `mapstructure:"ingest" yaml:"ingest"`

	// Chat tunes the grounded chat orchestrator
	Chat ChatConfig `mapstructure:"chat" yaml:"chat"`

	// Admin contains the initial admin account used by 'scribe migrate'
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Telemetry configures OpenTelemetry tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the listen address
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP listen port
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// RequestTimeout bounds a single request end-to-end.
	// WebSocket upgrades are exempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MetricsEnabled exposes Prometheus metrics on /metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// Driver selects the database backend
	// Valid values: postgres, sqlite
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite" yaml:"driver"`

	// DSN is the connection string (postgres) or file path (sqlite).
	// Use ":memory:" with the sqlite driver for tests.
	DSN string `mapstructure:"dsn" validate:"required" yaml:"dsn"`

	// MaxOpenConns caps the connection pool size
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// RedisConfig configures the fast KV store used for upload bitmaps,
// effective-tag caches, session handles and conversations.
type RedisConfig struct {
	// Addr is the host:port of the redis server
	Addr string `mapstructure:"addr" validate:"required" yaml:"addr"`

	// Password is the redis AUTH password (empty = no auth)
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// DB is the redis logical database number
	DB int `mapstructure:"db" yaml:"db"`
}

// S3Config configures the object store.
type S3Config struct {
	// Endpoint is the S3-compatible endpoint URL (empty = AWS)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Region is the S3 region
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket holds chunks/ and merged/ prefixes
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// AccessKeyID and SecretAccessKey are static credentials.
	// Leave empty to use the ambient AWS credential chain.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// UsePathStyle forces path-style addressing (required by MinIO)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`

	// PresignExpiry is the lifetime of generated download URLs
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

// KafkaConfig configures the post-merge task queue.
type KafkaConfig struct {
	// Brokers is the bootstrap broker list
	Brokers []string `mapstructure:"brokers" validate:"required,min=1" yaml:"brokers"`

	// Topic carries post-merge ingestion tasks
	Topic string `mapstructure:"topic" validate:"required" yaml:"topic"`

	// GroupID is the ingestion worker consumer group
	GroupID string `mapstructure:"group_id" validate:"required" yaml:"group_id"`

	// Workers is the number of parallel consumers in the worker pool
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`
}

// ElasticsearchConfig configures the hybrid search store.
type ElasticsearchConfig struct {
	// Addresses is the list of node URLs
	Addresses []string `mapstructure:"addresses" validate:"required,min=1" yaml:"addresses"`

	// Username and Password are basic-auth credentials (optional)
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// Index is the search index name
	Index string `mapstructure:"index" validate:"required" yaml:"index"`

	// VectorDims is the dense vector dimensionality.
	// Must match the embedding model output.
	VectorDims int `mapstructure:"vector_dims" validate:"required,gt=0" yaml:"vector_dims"`
}

// AIConfig configures the embedding and chat model endpoints.
type AIConfig struct {
	// Embedding configures the embedding service
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`

	// ChatModel configures the streaming chat completion service
	ChatModel ChatModelConfig `mapstructure:"chat_model" yaml:"chat_model"`
}

// EmbeddingConfig configures the embedding HTTP client.
type EmbeddingConfig struct {
	// BaseURL is the embeddings endpoint base (e.g. https://api.example.com/v1)
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// APIKey is sent as a bearer token
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// Model is the embedding model tag stored alongside each vector
	Model string `mapstructure:"model" validate:"required" yaml:"model"`

	// Dimension is the requested output dimensionality
	Dimension int `mapstructure:"dimension" validate:"required,gt=0" yaml:"dimension"`

	// Timeout is the per-call deadline
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries bounds fixed-delay retries on HTTP-class errors
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// ChatModelConfig configures the streaming chat completion client.
type ChatModelConfig struct {
	// BaseURL is the chat completions endpoint base
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// APIKey is sent as a bearer token
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// Model is the chat model name
	Model string `mapstructure:"model" validate:"required" yaml:"model"`

	// Temperature, TopP and MaxTokens are the generation parameters
	Temperature float64 `mapstructure:"temperature" validate:"omitempty,gte=0,lte=2" yaml:"temperature"`
	TopP        float64 `mapstructure:"top_p" validate:"omitempty,gte=0,lte=1" yaml:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"omitempty,gt=0" yaml:"max_tokens"`
}

// AuthConfig configures session and refresh token issuing.
type AuthConfig struct {
	// JWTSecret signs session and refresh tokens
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret"`

	// AccessTokenTTL is the session handle lifetime
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh handle lifetime
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl" yaml:"refresh_token_ttl"`
}

// IngestConfig tunes the parse/embed pipeline.
type IngestConfig struct {
	// ParentBufferSize is the streaming parse accumulation buffer.
	// The splitter runs each time this many characters have accumulated.
	ParentBufferSize bytesize.ByteSize `mapstructure:"parent_buffer_size" yaml:"parent_buffer_size"`

	// PassageSize is the target passage length in characters
	PassageSize int `mapstructure:"passage_size" validate:"omitempty,gt=0" yaml:"passage_size"`

	// MemoryCap bounds resident memory; tasks are rejected above 80% of it
	MemoryCap bytesize.ByteSize `mapstructure:"memory_cap" yaml:"memory_cap"`

	// EmbedBatchSize caps texts per embedding call
	EmbedBatchSize int `mapstructure:"embed_batch_size" validate:"omitempty,gt=0,lte=100" yaml:"embed_batch_size"`
}

// ChatConfig tunes the grounded chat orchestrator.
type ChatConfig struct {
	// SystemPrompt holds the deployment rules prepended to every request
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt"`

	// NoReferencesLine replaces the reference block when retrieval is empty
	NoReferencesLine string `mapstructure:"no_references_line" yaml:"no_references_line"`

	// TopK is the number of passages retrieved per user message
	TopK int `mapstructure:"top_k" validate:"omitempty,gt=0" yaml:"top_k"`

	// HistoryLimit caps the conversation to the most recent N messages
	HistoryLimit int `mapstructure:"history_limit" validate:"omitempty,gt=0" yaml:"history_limit"`

	// ConversationTTL is the sliding conversation expiry
	ConversationTTL time.Duration `mapstructure:"conversation_ttl" yaml:"conversation_ttl"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	// Enabled turns trace export on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS on the exporter connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling rate between 0.0 and 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// AdminConfig contains the initial admin account created by 'scribe migrate'.
type AdminConfig struct {
	// Username is the admin login name (empty = no admin is seeded)
	Username string `mapstructure:"username" yaml:"username,omitempty"`

	// PasswordHash is the bcrypt hash of the admin password
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SCRIBE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please create a configuration file, or specify one explicitly:\n"+
				"  scribe <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files carry secrets (JWT secret, S3 keys), owner-only perms.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the SCRIBE_ prefix with underscores.
	// Example: SCRIBE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "1Mi" or "512MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "scribe")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "scribe")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
