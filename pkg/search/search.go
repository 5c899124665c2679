// Package search maintains the passage index in Elasticsearch and serves
// hybrid (vector + lexical) queries under the permission model: a hit is
// visible when the caller owns it, it is public, or its scope tag falls in
// the caller's effective tag set.
package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/internal/telemetry"
)

// Document is one indexed passage.
type Document struct {
	ID           string    `json:"id"`
	FileMD5      string    `json:"fileMd5"`
	ChunkID      int       `json:"chunkId"`
	TextContent  string    `json:"textContent"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"modelVersion"`
	UserID       string    `json:"userId"`
	OrgTag       string    `json:"orgTag"`
	Public       bool      `json:"public"`
}

// Result is one ranked hit, enriched with the original filename.
type Result struct {
	FileMD5     string  `json:"file_md5"`
	ChunkID     int     `json:"chunk_id"`
	TextContent string  `json:"text_content"`
	Score       float64 `json:"score"`
	UserID      string  `json:"user_id"`
	OrgTag      string  `json:"org_tag"`
	Public      bool    `json:"public"`
	FileName    string  `json:"file_name"`
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TagResolver expands a user's assigned tags to the effective set.
type TagResolver interface {
	EffectiveTags(ctx context.Context, username string) []string
}

// FileNamer resolves fingerprints to original filenames in one query.
type FileNamer interface {
	FileNamesByMD5(ctx context.Context, fileMD5s []string) (map[string]string, error)
}

// Config configures the search service.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	Index      string
	VectorDims int
}

// Service is the Elasticsearch-backed search layer.
type Service struct {
	es       *elasticsearch.Client
	index    string
	dims     int
	embedder Embedder
	resolver TagResolver
	namer    FileNamer
}

// New builds the search service.
func New(cfg Config, embedder Embedder, resolver TagResolver, namer FileNamer) (*Service, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Service{
		es:       es,
		index:    cfg.Index,
		dims:     cfg.VectorDims,
		embedder: embedder,
		resolver: resolver,
		namer:    namer,
	}, nil
}

// DocumentID derives the deterministic index id for a passage so retried
// indexing overwrites instead of duplicating.
func DocumentID(fileMD5 string, chunkID int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", fileMD5, chunkID)))
	return hex.EncodeToString(sum[:])
}

// SearchWithPermission runs a hybrid query scoped to what username may see
// and returns up to topK ranked results. Vector search degrades to
// lexical-only on embedding or search failure.
func (s *Service) SearchWithPermission(ctx context.Context, query, username string, topK int) ([]Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "search.hybrid")
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.QueryLength(len(query)),
		telemetry.TopK(topK))

	effective := s.resolver.EffectiveTags(ctx, username)
	filter := permissionFilter(username, effective)

	var vector []float32
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		logger.WarnCtx(ctx, "query embedding failed, using lexical-only search",
			logger.KeyError, err)
	} else {
		vector = vectors[0]
	}

	if vector != nil {
		results, err := s.run(ctx, hybridQuery(query, vector, filter, topK), topK)
		if err == nil {
			telemetry.SetAttributes(ctx, telemetry.ResultCount(len(results)))
			return s.enrich(ctx, results)
		}
		logger.WarnCtx(ctx, "hybrid search failed, retrying lexical-only",
			logger.KeyError, err)
	}

	results, err := s.run(ctx, lexicalQuery(query, filter, topK), topK)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	telemetry.SetAttributes(ctx, telemetry.ResultCount(len(results)))
	return s.enrich(ctx, results)
}

// Search is the unfiltered variant for internal diagnostics. It must not be
// routed to end users.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	results, err := s.run(ctx, lexicalQuery(query, nil, topK), topK)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, results)
}

// permissionFilter builds the should-of-scopes filter: owned, public, or
// tagged within the effective set. An empty set contributes match_none so
// only owned and public documents remain reachable.
func permissionFilter(username string, effective []string) map[string]any {
	var tagClause map[string]any
	switch len(effective) {
	case 0:
		tagClause = map[string]any{"match_none": map[string]any{}}
	case 1:
		tagClause = map[string]any{"term": map[string]any{"orgTag": effective[0]}}
	default:
		tagClause = map[string]any{"terms": map[string]any{"orgTag": effective}}
	}

	return map[string]any{
		"bool": map[string]any{
			"should": []any{
				map[string]any{"term": map[string]any{"userId": username}},
				map[string]any{"term": map[string]any{"public": true}},
				tagClause,
			},
			"minimum_should_match": 1,
		},
	}
}

func hybridQuery(query string, vector []float32, filter map[string]any, topK int) map[string]any {
	candidates := 30 * topK
	boolQuery := map[string]any{
		"must": []any{
			map[string]any{"match": map[string]any{"textContent": query}},
		},
	}
	if filter != nil {
		boolQuery["filter"] = []any{filter}
	}

	knn := map[string]any{
		"field":          "vector",
		"query_vector":   vector,
		"k":              candidates,
		"num_candidates": candidates,
	}
	if filter != nil {
		knn["filter"] = filter
	}

	return map[string]any{
		"size":  topK,
		"knn":   knn,
		"query": map[string]any{"bool": boolQuery},
		"rescore": map[string]any{
			"window_size": candidates,
			"query": map[string]any{
				"rescore_query": map[string]any{
					"match": map[string]any{
						"textContent": map[string]any{
							"query":    query,
							"operator": "AND",
						},
					},
				},
				"query_weight":         0.2,
				"rescore_query_weight": 1.0,
			},
		},
	}
}

func lexicalQuery(query string, filter map[string]any, topK int) map[string]any {
	boolQuery := map[string]any{
		"must": []any{
			map[string]any{"match": map[string]any{"textContent": query}},
		},
	}
	if filter != nil {
		boolQuery["filter"] = []any{filter}
	}
	return map[string]any{
		"size":      topK,
		"min_score": 0.3,
		"query":     map[string]any{"bool": boolQuery},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64  `json:"_score"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Service) run(ctx context.Context, body map[string]any, topK int) ([]Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("search returned %s: %s", res.Status(), string(msg))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, Result{
			FileMD5:     hit.Source.FileMD5,
			ChunkID:     hit.Source.ChunkID,
			TextContent: hit.Source.TextContent,
			Score:       hit.Score,
			UserID:      hit.Source.UserID,
			OrgTag:      hit.Source.OrgTag,
			Public:      hit.Source.Public,
		})
	}
	return results, nil
}

// enrich attaches filenames via one batched lookup over the distinct
// fingerprints.
func (s *Service) enrich(ctx context.Context, results []Result) ([]Result, error) {
	if len(results) == 0 {
		return results, nil
	}

	seen := make(map[string]struct{}, len(results))
	distinct := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.FileMD5]; !ok {
			seen[r.FileMD5] = struct{}{}
			distinct = append(distinct, r.FileMD5)
		}
	}

	names, err := s.namer.FileNamesByMD5(ctx, distinct)
	if err != nil {
		logger.WarnCtx(ctx, "failed to resolve filenames for results", logger.KeyError, err)
		return results, nil
	}
	for i := range results {
		results[i].FileName = names[results[i].FileMD5]
	}
	return results, nil
}
