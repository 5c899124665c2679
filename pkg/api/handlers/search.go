package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/search"
)

const (
	defaultTopK = 10
	maxTopK     = 50
)

// Searcher runs the permissioned hybrid query.
type Searcher interface {
	SearchWithPermission(ctx context.Context, query, username string, topK int) ([]search.Result, error)
}

// SearchHandler handles GET /api/v1/search/hybrid.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Hybrid handles GET /api/v1/search/hybrid?query=&topK=.
func (h *SearchHandler) Hybrid(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		respond.BadRequest(w, "query is required")
		return
	}

	topK := defaultTopK
	if raw := r.URL.Query().Get("topK"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respond.BadRequest(w, "topK must be a positive integer")
			return
		}
		if parsed > maxTopK {
			parsed = maxTopK
		}
		topK = parsed
	}

	results, err := h.searcher.SearchWithPermission(r.Context(), query, claims.Username, topK)
	if err != nil {
		logger.ErrorCtx(r.Context(), "hybrid search failed", logger.KeyError, err)
		respond.Internal(w, "Search failed")
		return
	}

	respond.OK(w, map[string]any{
		"query":   query,
		"topK":    topK,
		"results": results,
	})
}
