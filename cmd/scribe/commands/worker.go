package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/internal/telemetry"
	"github.com/scribehub/scribe/pkg/ai"
	"github.com/scribehub/scribe/pkg/config"
	"github.com/scribehub/scribe/pkg/ingest"
	"github.com/scribehub/scribe/pkg/metrics"
	"github.com/scribehub/scribe/pkg/search"
	"github.com/scribehub/scribe/pkg/store"
	"github.com/scribehub/scribe/pkg/tags"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the ingestion worker",
	Long: `Start the scribe ingestion worker.

The worker consumes post-merge tasks from the queue, stream-parses each
merged document, splits the text into passages, embeds them and writes the
result to the search index. Run one worker process per deployment; the
configured pool size controls in-process parallelism.

Examples:
  # Start with default config location
  scribe worker

  # Start with custom config
  scribe worker --config /etc/scribe/config.yaml`,
	RunE: runWorker,
}

// countingIndexer records how many passages were indexed.
type countingIndexer struct {
	next    ingest.Indexer
	metrics *metrics.Metrics
}

func (c *countingIndexer) BulkIndex(ctx context.Context, docs []search.Document) error {
	if err := c.next.BulkIndex(ctx, docs); err != nil {
		return err
	}
	c.metrics.RecordPassagesIndexed(len(docs))
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
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
		ServiceName:    "scribe-worker",
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
	}, embedder, tags.NewResolver(st, rdb), st)
	if err != nil {
		return fmt.Errorf("failed to initialize search service: %w", err)
	}
	if err := searchSvc.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to ensure search index: %w", err)
	}

	var indexer ingest.Indexer = searchSvc
	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		m = metrics.New()
		indexer = &countingIndexer{next: searchSvc, metrics: m}
		go serveWorkerMetrics(cfg, m)
	}

	worker := ingest.NewWorker(st, embedder, indexer, ingest.Config{
		ParentBufferSize: int(cfg.Ingest.ParentBufferSize.Uint64()),
		PassageSize:      cfg.Ingest.PassageSize,
		MemoryCap:        cfg.Ingest.MemoryCap.Uint64(),
	})
	pool := ingest.NewPool(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Kafka.Workers, worker)
	defer func() { _ = pool.Close() }()

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Worker is running. Press Ctrl+C to stop.",
		"topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID, "workers", cfg.Kafka.Workers)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, draining workers")
		cancel()

		if err := <-poolDone; err != nil && err != context.Canceled {
			logger.Error("Worker shutdown error", logger.KeyError, err)
			return err
		}
		logger.Info("Worker stopped gracefully")

	case err := <-poolDone:
		signal.Stop(sigChan)
		if err != nil && err != context.Canceled {
			logger.Error("Worker error", logger.KeyError, err)
			return err
		}
	}
	return nil
}

// serveWorkerMetrics exposes the scrape endpoint on the configured port.
func serveWorkerMetrics(cfg *config.Config, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Worker metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Worker metrics server failed", logger.KeyError, err)
	}
}
