package config

import (
	"strings"
	"time"

	"github.com/scribehub/scribe/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyRedisDefaults(&cfg.Redis)
	applyS3Defaults(&cfg.S3)
	applyKafkaDefaults(&cfg.Kafka)
	applyElasticsearchDefaults(&cfg.Elasticsearch)
	applyAIDefaults(&cfg.AI)
	applyAuthDefaults(&cfg.Auth)
	applyIngestDefaults(&cfg.Ingest)
	applyChatDefaults(&cfg.Chat)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		cfg.DSN = "scribe.db"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
}

func applyS3Defaults(cfg *S3Config) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "uploads"
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = time.Hour
	}
}

func applyKafkaDefaults(cfg *KafkaConfig) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	if cfg.Topic == "" {
		cfg.Topic = "file_processing_topic"
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "scribe-ingest"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
}

func applyElasticsearchDefaults(cfg *ElasticsearchConfig) {
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Index == "" {
		cfg.Index = "knowledge_base"
	}
	if cfg.VectorDims == 0 {
		cfg.VectorDims = 1024
	}
}

func applyAIDefaults(cfg *AIConfig) {
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:8000/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "bge-m3"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1024
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}

	if cfg.ChatModel.BaseURL == "" {
		cfg.ChatModel.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.ChatModel.Model == "" {
		cfg.ChatModel.Model = "deepseek-chat"
	}
	if cfg.ChatModel.Temperature == 0 {
		cfg.ChatModel.Temperature = 0.3
	}
	if cfg.ChatModel.TopP == 0 {
		cfg.ChatModel.TopP = 0.9
	}
	if cfg.ChatModel.MaxTokens == 0 {
		cfg.ChatModel.MaxTokens = 2000
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
}

func applyIngestDefaults(cfg *IngestConfig) {
	if cfg.ParentBufferSize == 0 {
		cfg.ParentBufferSize = bytesize.MiB
	}
	if cfg.PassageSize == 0 {
		cfg.PassageSize = 2000
	}
	if cfg.MemoryCap == 0 {
		cfg.MemoryCap = 2 * bytesize.GiB
	}
	if cfg.EmbedBatchSize == 0 {
		cfg.EmbedBatchSize = 100
	}
}

func applyChatDefaults(cfg *ChatConfig) {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a knowledge base assistant. Answer strictly " +
			"from the provided references. If the references do not contain the " +
			"answer, say so."
	}
	if cfg.NoReferencesLine == "" {
		cfg.NoReferencesLine = "No relevant references were found."
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.ConversationTTL == 0 {
		cfg.ConversationTTL = 7 * 24 * time.Hour
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// GetDefaultConfig returns a configuration populated entirely from defaults.
// The JWT secret is intentionally left empty; Validate will reject it so a
// deployment cannot run unsigned.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
