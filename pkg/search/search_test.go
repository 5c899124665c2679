package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type fakeResolver struct{ tags []string }

func (f *fakeResolver) EffectiveTags(context.Context, string) []string { return f.tags }

type fakeNamer struct{ names map[string]string }

func (f *fakeNamer) FileNamesByMD5(_ context.Context, _ []string) (map[string]string, error) {
	return f.names, nil
}

// newESServer fakes the minimal Elasticsearch surface the service touches
// and records the last search body it received.
func newESServer(t *testing.T, hits []Document) (*httptest.Server, *map[string]any) {
	t.Helper()
	var lastBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		if strings.HasSuffix(r.URL.Path, "/_search") {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &lastBody))

			type hit struct {
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			}
			hs := make([]hit, len(hits))
			for i, d := range hits {
				hs[i] = hit{Score: 1.5, Source: d}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"hits": map[string]any{"hits": hs},
			})
			return
		}

		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func newService(t *testing.T, srv *httptest.Server, embedder Embedder, resolver TagResolver, namer FileNamer) *Service {
	t.Helper()
	svc, err := New(Config{
		Addresses:  []string{srv.URL},
		Index:      "knowledge_base",
		VectorDims: 4,
	}, embedder, resolver, namer)
	require.NoError(t, err)
	return svc
}

func TestDocumentIDDeterministic(t *testing.T) {
	a := DocumentID("abc", 1)
	b := DocumentID("abc", 1)
	c := DocumentID("abc", 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPermissionFilterShapes(t *testing.T) {
	empty := permissionFilter("alice", nil)
	should := empty["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 3)
	assert.Contains(t, should[2], "match_none")

	one := permissionFilter("alice", []string{"eng"})
	should = one["bool"].(map[string]any)["should"].([]any)
	assert.Contains(t, should[2], "term")

	many := permissionFilter("alice", []string{"eng", "ops"})
	should = many["bool"].(map[string]any)["should"].([]any)
	assert.Contains(t, should[2], "terms")
}

func TestHybridQueryConstants(t *testing.T) {
	q := hybridQuery("hello", []float32{1, 2}, permissionFilter("alice", []string{"eng"}), 5)

	assert.Equal(t, 5, q["size"])
	knn := q["knn"].(map[string]any)
	assert.Equal(t, 150, knn["k"])
	assert.Equal(t, 150, knn["num_candidates"])

	rescore := q["rescore"].(map[string]any)
	assert.Equal(t, 150, rescore["window_size"])
	rq := rescore["query"].(map[string]any)
	assert.Equal(t, 0.2, rq["query_weight"])
	assert.Equal(t, 1.0, rq["rescore_query_weight"])
	match := rq["rescore_query"].(map[string]any)["match"].(map[string]any)["textContent"].(map[string]any)
	assert.Equal(t, "AND", match["operator"])
}

func TestLexicalQueryMinScore(t *testing.T) {
	q := lexicalQuery("hello", nil, 5)
	assert.Equal(t, 0.3, q["min_score"])
	assert.Equal(t, 5, q["size"])
}

func TestSearchWithPermissionHybridAndEnrichment(t *testing.T) {
	hits := []Document{
		{FileMD5: "aaa", ChunkID: 1, TextContent: "Alpha beta.", UserID: "alice", OrgTag: "eng"},
	}
	srv, lastBody := newESServer(t, hits)
	svc := newService(t, srv,
		&fakeEmbedder{vector: []float32{1, 2, 3, 4}},
		&fakeResolver{tags: []string{"eng", "DEFAULT"}},
		&fakeNamer{names: map[string]string{"aaa": "a.pdf"}})

	results, err := svc.SearchWithPermission(context.Background(), "alpha", "alice", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.pdf", results[0].FileName)
	assert.Equal(t, 1.5, results[0].Score)

	// The request carried the kNN branch.
	require.NotNil(t, *lastBody)
	assert.Contains(t, *lastBody, "knn")
	assert.Contains(t, *lastBody, "rescore")
}

func TestSearchFallsBackToLexicalOnEmbedFailure(t *testing.T) {
	srv, lastBody := newESServer(t, nil)
	svc := newService(t, srv,
		&fakeEmbedder{err: fmt.Errorf("embedding service down")},
		&fakeResolver{tags: []string{"DEFAULT"}},
		&fakeNamer{})

	results, err := svc.SearchWithPermission(context.Background(), "alpha", "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NotNil(t, *lastBody)
	assert.NotContains(t, *lastBody, "knn")
	assert.Equal(t, 0.3, (*lastBody)["min_score"])
}

func TestSearchEmptyTagsUsesMatchNone(t *testing.T) {
	srv, lastBody := newESServer(t, nil)
	svc := newService(t, srv,
		&fakeEmbedder{err: fmt.Errorf("down")},
		&fakeResolver{tags: nil},
		&fakeNamer{})

	_, err := svc.SearchWithPermission(context.Background(), "alpha", "alice", 5)
	require.NoError(t, err)

	raw, err := json.Marshal(*lastBody)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "match_none")
}
