// Package ai holds the HTTP clients for the embedding and chat completion
// services. Both speak the OpenAI-compatible wire format.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scribehub/scribe/internal/logger"
)

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int
}

// EmbeddingClient calls the embedding service in batches.
type EmbeddingClient struct {
	httpClient *http.Client
	cfg        EmbeddingConfig
	retryDelay time.Duration
}

// NewEmbeddingClient builds an embedding client. Zero config fields fall
// back to a 30 s deadline, 3 retries and batches of 100.
func NewEmbeddingClient(cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	return &EmbeddingClient{
		httpClient: &http.Client{},
		cfg:        cfg,
		retryDelay: time.Second,
	}
}

// Model returns the model tag stored alongside each vector.
func (c *EmbeddingClient) Model() string {
	return c.cfg.Model
}

// Dimension returns the configured vector dimensionality.
func (c *EmbeddingClient) Dimension() int {
	return c.cfg.Dimension
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimension      int      `json:"dimension"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// httpStatusError marks a non-2xx response. Only these are retried; network
// and context errors fail immediately.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("embedding service returned %d: %s", e.status, e.body)
}

// Embed returns one vector per input text, preserving order. Inputs are
// split into batches; each batch call carries its own deadline and a fixed
// 1 s retry delay on HTTP-class errors.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(batch))
		}
		all = append(all, vectors...)
	}

	logger.DebugCtx(ctx, "embeddings generated",
		logger.KeyModel, c.cfg.Model, logger.KeyCount, len(all))
	return all, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.DebugCtx(ctx, "retrying embedding call",
				logger.KeyAttempt, attempt, logger.KeyMaxRetries, c.cfg.MaxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		vectors, err := c.callOnce(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var statusErr *httpStatusError
		if !errors.As(err, &statusErr) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *EmbeddingClient) callOnce(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(embeddingRequest{
		Model:          c.cfg.Model,
		Input:          batch,
		Dimension:      c.cfg.Dimension,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: truncate(string(body), 200)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	vectors := make([][]float32, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		vectors = append(vectors, item.Embedding)
	}
	return vectors, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
