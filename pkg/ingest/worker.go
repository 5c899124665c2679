// Package ingest implements the post-merge pipeline: stream-parse the merged
// object, split its text into passages, persist them, then embed and index
// the passages for retrieval.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/internal/telemetry"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/queue"
	"github.com/scribehub/scribe/pkg/search"
	"github.com/scribehub/scribe/pkg/store"
)

// Embedder vectorizes passage batches. Batching and retries live in the
// client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Indexer writes passage documents to the search store.
type Indexer interface {
	BulkIndex(ctx context.Context, docs []search.Document) error
}

// Config tunes one ingestion worker.
type Config struct {
	// ParentBufferSize is the streaming accumulation buffer in bytes; the
	// splitter runs each time it fills.
	ParentBufferSize int

	// PassageSize is the target passage length in characters.
	PassageSize int

	// MemoryCap bounds resident memory; zero disables the gate.
	MemoryCap uint64
}

// Worker processes one ingestion task end to end.
type Worker struct {
	store    *store.GORMStore
	embedder Embedder
	indexer  Indexer
	gate     *MemoryGate
	splitter *Splitter
	bufSize  int
}

// NewWorker wires an ingestion worker.
func NewWorker(st *store.GORMStore, embedder Embedder, indexer Indexer, cfg Config) *Worker {
	if cfg.ParentBufferSize < 1<<20 {
		cfg.ParentBufferSize = 1 << 20
	}
	if cfg.PassageSize <= 0 {
		cfg.PassageSize = 2000
	}
	return &Worker{
		store:    st,
		embedder: embedder,
		indexer:  indexer,
		gate:     NewMemoryGate(cfg.MemoryCap),
		splitter: &Splitter{Size: cfg.PassageSize},
		bufSize:  cfg.ParentBufferSize,
	}
}

// Handle runs the full pipeline for one task. Any error leaves the task
// unacknowledged so the broker redelivers it; ErrExpiredLink and passage
// persistence failures surface the same way.
func (w *Worker) Handle(ctx context.Context, task *queue.ProcessTask) error {
	ctx, span := telemetry.StartSpan(ctx, "ingest.handle")
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.FileMD5(task.FileMD5),
		telemetry.FileName(task.FileName),
		telemetry.OrgTag(task.OrgTag))

	if err := w.gate.Check(); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	logger.InfoCtx(ctx, "ingestion started",
		logger.KeyFileMD5, task.FileMD5,
		logger.KeyFileName, task.FileName)

	if err := w.parse(ctx, task); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to parse %s: %w", task.FileMD5, err)
	}
	if err := w.embedAndIndex(ctx, task.FileMD5); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to index %s: %w", task.FileMD5, err)
	}

	logger.InfoCtx(ctx, "ingestion finished", logger.KeyFileMD5, task.FileMD5)
	return nil
}

// parse streams the merged object through the extractor, accumulating text
// into the parent buffer and splitting each full buffer into persisted
// passages. Chunk ids always restart at 1: a redelivered task replaces the
// previous attempt's rows, so the deterministic index ids overwrite instead
// of duplicating.
func (w *Worker) parse(ctx context.Context, task *queue.ProcessTask) error {
	if err := w.store.DeletePassages(ctx, task.FileMD5); err != nil {
		return err
	}
	nextChunkID := 0

	src, err := OpenSource(ctx, task.FilePath)
	if err != nil {
		return err
	}
	defer src.Close()

	var parent strings.Builder
	emit := func() error {
		if parent.Len() == 0 {
			return nil
		}
		for _, passage := range w.splitter.Split(parent.String()) {
			nextChunkID++
			err := w.store.SavePassage(ctx, &models.DocumentVector{
				FileMD5:      task.FileMD5,
				ChunkID:      nextChunkID,
				Content:      passage,
				ModelVersion: w.embedder.Model(),
				UserID:       task.UserID,
				OrgTag:       task.OrgTag,
				IsPublic:     task.IsPublic,
			})
			if err != nil {
				return fmt.Errorf("failed to save passage %d: %w", nextChunkID, err)
			}
		}
		parent.Reset()
		return nil
	}

	sink := CharSink{
		OnChars: func(text string) error {
			parent.WriteString(text)
			if parent.Len() >= w.bufSize {
				return emit()
			}
			return nil
		},
		OnEnd: emit,
	}
	if err := ExtractText(src, task.FileName, sink); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "passages persisted",
		logger.KeyFileMD5, task.FileMD5,
		logger.KeyPassages, nextChunkID)
	return nil
}

// embedAndIndex vectorizes all persisted passages of the fingerprint and
// bulk-indexes them. Document ids derive from (fingerprint, chunkId) so a
// redelivered task overwrites rather than duplicates.
func (w *Worker) embedAndIndex(ctx context.Context, fileMD5 string) error {
	passages, err := w.store.ListPassages(ctx, fileMD5)
	if err != nil {
		return err
	}
	if len(passages) == 0 {
		logger.WarnCtx(ctx, "no passages extracted, nothing to index",
			logger.KeyFileMD5, fileMD5)
		return nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}

	vectors, err := w.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(passages) {
		return fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(passages))
	}

	docs := make([]search.Document, len(passages))
	for i, p := range passages {
		docs[i] = search.Document{
			ID:           search.DocumentID(p.FileMD5, p.ChunkID),
			FileMD5:      p.FileMD5,
			ChunkID:      p.ChunkID,
			TextContent:  p.Content,
			Vector:       vectors[i],
			ModelVersion: p.ModelVersion,
			UserID:       p.UserID,
			OrgTag:       p.OrgTag,
			Public:       p.IsPublic,
		}
	}
	telemetry.SetAttributes(ctx, telemetry.PassageCount(len(docs)))
	return w.indexer.BulkIndex(ctx, docs)
}
