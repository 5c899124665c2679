package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scribehub/scribe/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

func TestDefaultsAreApplied(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "uploads", cfg.S3.Bucket)
	assert.Equal(t, "knowledge_base", cfg.Elasticsearch.Index)
	assert.Equal(t, "file_processing_topic", cfg.Kafka.Topic)
	assert.Equal(t, bytesize.MiB, cfg.Ingest.ParentBufferSize)
	assert.Equal(t, 100, cfg.Ingest.EmbedBatchSize)
	assert.Equal(t, 20, cfg.Chat.HistoryLimit)
	assert.Equal(t, 7*24*time.Hour, cfg.Chat.ConversationTTL)
	assert.Equal(t, 0.3, cfg.AI.ChatModel.Temperature)
	assert.Equal(t, 0.9, cfg.AI.ChatModel.TopP)
	assert.Equal(t, 2000, cfg.AI.ChatModel.MaxTokens)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret")
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.Elasticsearch.VectorDims = 768
	cfg.AI.Embedding.Dimension = 1024

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_dims")
}

func TestValidateRejectsAdminWithoutHash(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.Username = "root"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password_hash")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
logging:
  level: debug
server:
  port: 9999
auth:
  jwt_secret: "` + testSecret + `"
ingest:
  parent_buffer_size: "2Mi"
  passage_size: 1500
s3:
  presign_expiry: "30m"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2*bytesize.MiB, cfg.Ingest.ParentBufferSize)
	assert.Equal(t, 1500, cfg.Ingest.PassageSize)
	assert.Equal(t, 30*time.Minute, cfg.S3.PresignExpiry)
	// untouched sections still get defaults
	assert.Equal(t, "knowledge_base", cfg.Elasticsearch.Index)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := validConfig()
	cfg.Server.Port = 8181
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Server.Port)
}
