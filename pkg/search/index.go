package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/scribehub/scribe/internal/logger"
)

// EnsureIndex creates the passage index if it does not exist. A creation
// failure is retried once after 5 s; startup continues to fail only when
// both attempts do.
func (s *Service) EnsureIndex(ctx context.Context) error {
	exists, err := s.indexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.createIndex(ctx); err != nil {
		logger.WarnCtx(ctx, "index creation failed, retrying",
			logger.KeyIndex, s.index, logger.KeyError, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
		if err := s.createIndex(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", s.index, err)
		}
	}

	logger.InfoCtx(ctx, "search index created", logger.KeyIndex, s.index)
	return nil
}

func (s *Service) indexExists(ctx context.Context) (bool, error) {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode == 200, nil
}

func (s *Service) createIndex(ctx context.Context) error {
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":          map[string]any{"type": "keyword"},
				"fileMd5":     map[string]any{"type": "keyword"},
				"chunkId":     map[string]any{"type": "integer"},
				"textContent": map[string]any{"type": "text"},
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       s.dims,
					"index":      true,
					"similarity": "cosine",
				},
				"modelVersion": map[string]any{"type": "keyword"},
				"userId":       map[string]any{"type": "keyword"},
				"orgTag":       map[string]any{"type": "keyword"},
				"public":       map[string]any{"type": "boolean"},
			},
		},
	}
	payload, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := s.es.Indices.Create(
		s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("index create returned %s: %s", res.Status(), string(msg))
	}
	return nil
}

// BulkIndex writes the documents in one bulk request with deterministic ids;
// replays overwrite instead of duplicating. Per-item failures surface as one
// error so the caller can retry the whole task.
func (s *Service) BulkIndex(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		logger.DebugCtx(ctx, "bulk index skipped, no documents")
		return nil
	}

	var buf bytes.Buffer
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = DocumentID(docs[i].FileMD5, docs[i].ChunkID)
		}
		meta, err := json.Marshal(map[string]any{
			"index": map[string]any{"_index": s.index, "_id": docs[i].ID},
		})
		if err != nil {
			return err
		}
		doc, err := json.Marshal(docs[i])
		if err != nil {
			return err
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := s.es.Bulk(bytes.NewReader(buf.Bytes()), s.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk index request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("bulk index returned %s: %s", res.Status(), string(msg))
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulkRes.Errors {
		for _, item := range bulkRes.Items {
			for _, op := range item {
				if op.Error != nil {
					logger.ErrorCtx(ctx, "bulk index item failed",
						logger.KeyIndex, s.index,
						logger.KeyStatus, op.Status,
						logger.KeyError, fmt.Sprintf("%s: %s", op.Error.Type, op.Error.Reason))
				}
			}
		}
		return fmt.Errorf("bulk index reported item failures")
	}

	logger.InfoCtx(ctx, "passages indexed",
		logger.KeyIndex, s.index, logger.KeyCount, len(docs))
	return nil
}

// DeleteByFileMD5 removes every indexed passage of one file.
func (s *Service) DeleteByFileMD5(ctx context.Context, fileMD5 string) error {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"term": map[string]any{"fileMd5": fileMD5},
		},
	})
	if err != nil {
		return err
	}

	res, err := s.es.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader(body),
		s.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete by query failed for %s: %w", fileMD5, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("delete by query returned %s: %s", res.Status(), string(msg))
	}

	logger.InfoCtx(ctx, "indexed passages deleted", logger.KeyFileMD5, fileMD5)
	return nil
}
