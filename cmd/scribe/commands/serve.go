package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/internal/telemetry"
	"github.com/scribehub/scribe/pkg/ai"
	"github.com/scribehub/scribe/pkg/api"
	"github.com/scribehub/scribe/pkg/api/handlers"
	"github.com/scribehub/scribe/pkg/auth"
	"github.com/scribehub/scribe/pkg/chat"
	"github.com/scribehub/scribe/pkg/config"
	"github.com/scribehub/scribe/pkg/ledger"
	"github.com/scribehub/scribe/pkg/metrics"
	"github.com/scribehub/scribe/pkg/objectstore"
	"github.com/scribehub/scribe/pkg/queue"
	"github.com/scribehub/scribe/pkg/search"
	"github.com/scribehub/scribe/pkg/store"
	"github.com/scribehub/scribe/pkg/tags"
	"github.com/scribehub/scribe/pkg/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the scribe HTTP API server.

The server exposes user registration and login, the resumable chunk upload
surface, document listing and deletion, permission-aware hybrid search, the
admin tag hierarchy, and the grounded chat stream.

Examples:
  # Start with default config location
  scribe serve

  # Start with custom config
  scribe serve --config /etc/scribe/config.yaml

  # Override single settings through the environment
  SCRIBE_LOGGING_LEVEL=DEBUG scribe serve`,
	RunE: runServe,
}

// pingerFunc adapts a closure to the health Pinger interface.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "scribe",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.KeyError, err)
		}
	}()
	if cfg.Telemetry.Enabled {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint)
	}

	st, err := store.New(store.Config{
		Driver:       store.Driver(cfg.Database.Driver),
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() { _ = producer.Close() }()

	led := ledger.New(rdb)
	uploadSvc := upload.NewService(st, led, objects, producer, cfg.S3.PresignExpiry)

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               cfg.Auth.JWTSecret,
		AccessTokenDuration:  cfg.Auth.AccessTokenTTL,
		RefreshTokenDuration: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	users := auth.NewUserService(st, jwtSvc, auth.NewTokenStore(rdb))

	resolver := tags.NewResolver(st, rdb)
	tagSvc := tags.NewService(st, resolver)

	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:    cfg.AI.Embedding.BaseURL,
		APIKey:     cfg.AI.Embedding.APIKey,
		Model:      cfg.AI.Embedding.Model,
		Dimension:  cfg.AI.Embedding.Dimension,
		Timeout:    cfg.AI.Embedding.Timeout,
		MaxRetries: cfg.AI.Embedding.MaxRetries,
		BatchSize:  cfg.Ingest.EmbedBatchSize,
	})

	searchSvc, err := search.New(search.Config{
		Addresses:  cfg.Elasticsearch.Addresses,
		Username:   cfg.Elasticsearch.Username,
		Password:   cfg.Elasticsearch.Password,
		Index:      cfg.Elasticsearch.Index,
		VectorDims: cfg.Elasticsearch.VectorDims,
	}, embedder, resolver, st)
	if err != nil {
		return fmt.Errorf("failed to initialize search service: %w", err)
	}

	chatModel := ai.NewChatClient(ai.ChatConfig{
		BaseURL:     cfg.AI.ChatModel.BaseURL,
		APIKey:      cfg.AI.ChatModel.APIKey,
		Model:       cfg.AI.ChatModel.Model,
		Temperature: cfg.AI.ChatModel.Temperature,
		TopP:        cfg.AI.ChatModel.TopP,
		MaxTokens:   cfg.AI.ChatModel.MaxTokens,
	})
	conversations := chat.NewConversationStore(rdb, cfg.Chat.ConversationTTL, cfg.Chat.HistoryLimit)
	orchestrator := chat.NewOrchestrator(searchSvc, chatModel, conversations, chat.Config{
		SystemPrompt:     cfg.Chat.SystemPrompt,
		NoReferencesLine: cfg.Chat.NoReferencesLine,
		TopK:             cfg.Chat.TopK,
	})
	chatHandler := chat.NewHandler(users, orchestrator, chat.NewSessionManager())

	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		m = metrics.New()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	server := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, api.Deps{
		Users:        users,
		Upload:       uploadSvc,
		Store:        st,
		Objects:      objects,
		Search:       searchSvc,
		IndexCleaner: searchSvc,
		Resolver:     resolver,
		TagService:   tagSvc,
		Ledger:       led,
		Chat:         chatHandler,
		Metrics:      m,
		Health: map[string]handlers.Pinger{
			"database": st,
			"redis":    pingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		},
		PresignExpiry: cfg.S3.PresignExpiry,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.KeyError, err)
			return err
		}
	}
	return nil
}
