package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/ledger"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/objectstore"
	"github.com/scribehub/scribe/pkg/store"
)

// previewLimit caps text previews at the first 10 KiB of the object.
const previewLimit = 10 * 1024

// previewableExtensions are the types served as inline text previews.
// Everything else gets a metadata summary instead.
var previewableExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true,
	".xml": true, ".html": true, ".htm": true, ".rtf": true,
}

// IndexCleaner removes a document's passages from the search corpus.
type IndexCleaner interface {
	DeleteByFileMD5(ctx context.Context, fileMD5 string) error
}

// EffectiveTagger expands a user's assigned tags to the transitive closure.
type EffectiveTagger interface {
	EffectiveTags(ctx context.Context, username string) []string
}

// DocumentHandler handles the document listing, download and delete surface.
type DocumentHandler struct {
	store         *store.GORMStore
	objects       objectstore.Store
	index         IndexCleaner
	resolver      EffectiveTagger
	ledger        *ledger.Ledger
	presignExpiry time.Duration
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(st *store.GORMStore, objects objectstore.Store, index IndexCleaner, resolver EffectiveTagger, led *ledger.Ledger, presignExpiry time.Duration) *DocumentHandler {
	return &DocumentHandler{
		store:         st,
		objects:       objects,
		index:         index,
		resolver:      resolver,
		ledger:        led,
		presignExpiry: presignExpiry,
	}
}

// Delete handles DELETE /api/v1/documents/{fingerprint}.
//
// The relational cascade (file row, chunk rows, passage rows) is the
// source of truth; search index and object cleanup are best-effort and
// logged on failure.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request, fingerprint string) {
	ctx := r.Context()
	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	file, err := h.store.GetFileByMD5(ctx, fingerprint)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load document")
		return
	}

	if file.UserID != claims.Username && claims.Role != string(models.RoleAdmin) {
		respond.Forbidden(w, "Only the owner or an admin may delete a document")
		return
	}

	chunks, err := h.store.ListChunks(ctx, fingerprint)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list chunks")
		return
	}

	if err := h.index.DeleteByFileMD5(ctx, fingerprint); err != nil {
		logger.WarnCtx(ctx, "failed to remove search documents",
			logger.KeyFileMD5, fingerprint, logger.KeyError, err)
	}

	if file.IsMerged() {
		key := objectstore.MergedKey(file.FileName)
		if err := h.objects.DeleteObject(ctx, key); err != nil {
			logger.WarnCtx(ctx, "failed to delete merged object",
				logger.KeyObjectKey, key, logger.KeyError, err)
		}
	}
	for _, chunk := range chunks {
		if err := h.objects.DeleteObject(ctx, chunk.StoragePath); err != nil {
			logger.WarnCtx(ctx, "failed to delete chunk object",
				logger.KeyObjectKey, chunk.StoragePath, logger.KeyError, err)
		}
	}

	if err := h.ledger.DeleteBitmap(ctx, file.UserID, fingerprint); err != nil {
		logger.WarnCtx(ctx, "failed to clear upload bitmap",
			logger.KeyFileMD5, fingerprint, logger.KeyError, err)
	}

	if err := h.store.DeleteFileCascade(ctx, fingerprint, file.UserID); err != nil {
		writeServiceError(w, r, err, "Failed to delete document")
		return
	}

	logger.InfoCtx(ctx, "document deleted",
		logger.KeyFileMD5, fingerprint, logger.KeyFileName, file.FileName)
	respond.OKMessage(w, "document deleted")
}

// FileResponse is one document in a listing.
type FileResponse struct {
	FileMD5    string     `json:"fileMd5"`
	FileName   string     `json:"fileName"`
	TotalSize  int64      `json:"totalSize"`
	Status     int        `json:"status"`
	UserID     string     `json:"userId"`
	Public     bool       `json:"public"`
	OrgTag     string     `json:"orgTag"`
	OrgTagName string     `json:"orgTagName,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	MergedAt   *time.Time `json:"mergedAt,omitempty"`
}

// Uploads handles GET /api/v1/documents/uploads.
// Lists the authenticated user's own uploads.
func (h *DocumentHandler) Uploads(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	files, err := h.store.ListFilesByUser(r.Context(), claims.Username)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list uploads")
		return
	}
	respond.OK(w, h.toFileResponses(r.Context(), files))
}

// Accessible handles GET /api/v1/documents/accessible.
// Lists documents visible to the user: owned, public, or scoped to a tag in
// the user's effective set.
func (h *DocumentHandler) Accessible(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	effective := h.resolver.EffectiveTags(r.Context(), claims.Username)
	files, err := h.store.ListAccessibleFiles(r.Context(), claims.Username, effective)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list accessible documents")
		return
	}
	respond.OK(w, h.toFileResponses(r.Context(), files))
}

// Download handles GET /api/v1/documents/download?fileName=.
// Resolves the name against the caller's accessible set and returns a
// pre-signed URL.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	file, ok := h.accessibleByName(w, r)
	if !ok {
		return
	}

	url, err := h.objects.PresignGet(r.Context(), objectstore.MergedKey(file.FileName), h.presignExpiry)
	if err != nil {
		logger.ErrorCtx(r.Context(), "failed to presign download",
			logger.KeyFileName, file.FileName, logger.KeyError, err)
		respond.Internal(w, "Failed to generate download link")
		return
	}

	respond.OK(w, map[string]any{
		"fileName":    file.FileName,
		"downloadUrl": url,
		"fileSize":    file.TotalSize,
	})
}

// Preview handles GET /api/v1/documents/preview?fileName=.
// Text formats return their first 10 KiB; other formats return a metadata
// summary.
func (h *DocumentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	file, ok := h.accessibleByName(w, r)
	if !ok {
		return
	}

	ext := strings.ToLower(filepath.Ext(file.FileName))
	if !previewableExtensions[ext] {
		respond.OK(w, map[string]any{
			"fileName": file.FileName,
			"content":  "",
			"fileSize": file.TotalSize,
			"summary":  "binary document; download to view",
		})
		return
	}

	body, err := h.objects.GetObject(r.Context(), objectstore.MergedKey(file.FileName))
	if err != nil {
		logger.ErrorCtx(r.Context(), "failed to open object for preview",
			logger.KeyFileName, file.FileName, logger.KeyError, err)
		respond.Internal(w, "Failed to load preview")
		return
	}
	defer body.Close()

	content, err := io.ReadAll(io.LimitReader(body, previewLimit))
	if err != nil {
		respond.Internal(w, "Failed to read preview")
		return
	}

	respond.OK(w, map[string]any{
		"fileName": file.FileName,
		"content":  string(content),
		"fileSize": file.TotalSize,
	})
}

// accessibleByName resolves the fileName query parameter against the
// caller's accessible documents. Writes the error response on failure.
func (h *DocumentHandler) accessibleByName(w http.ResponseWriter, r *http.Request) (*models.FileUpload, bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return nil, false
	}

	fileName := r.URL.Query().Get("fileName")
	if fileName == "" {
		respond.BadRequest(w, "fileName is required")
		return nil, false
	}

	effective := h.resolver.EffectiveTags(r.Context(), claims.Username)
	files, err := h.store.ListAccessibleFiles(r.Context(), claims.Username, effective)
	if err != nil {
		writeServiceError(w, r, err, "Failed to resolve document")
		return nil, false
	}

	for _, file := range files {
		if file.FileName == fileName {
			return file, true
		}
	}
	respond.NotFound(w, "Document not found or not accessible")
	return nil, false
}

// toFileResponses maps records to DTOs, resolving tag display names with a
// small per-request cache.
func (h *DocumentHandler) toFileResponses(ctx context.Context, files []*models.FileUpload) []FileResponse {
	names := make(map[string]string)
	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		resp := FileResponse{
			FileMD5:   f.FileMD5,
			FileName:  f.FileName,
			TotalSize: f.TotalSize,
			Status:    f.Status,
			UserID:    f.UserID,
			Public:    f.IsPublic,
			OrgTag:    f.OrgTag,
			CreatedAt: f.CreatedAt,
			MergedAt:  f.MergedAt,
		}
		if f.OrgTag != "" {
			name, seen := names[f.OrgTag]
			if !seen {
				if tag, err := h.store.GetTag(ctx, f.OrgTag); err == nil {
					name = tag.Name
				} else {
					// Unknown tags fall back to the raw id.
					name = f.OrgTag
				}
				names[f.OrgTag] = name
			}
			resp.OrgTagName = name
		}
		out = append(out, resp)
	}
	return out
}
