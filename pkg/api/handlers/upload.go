package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/bufpool"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/upload"
)

// maxChunkFormMemory bounds the in-memory portion of a multipart chunk
// request: one 5 MiB chunk plus form-field overhead.
const maxChunkFormMemory = upload.ChunkSize + 1<<20

// UserLoader resolves the acting user's full record from its login name.
type UserLoader interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// UploadHandler handles the resumable chunk upload surface.
type UploadHandler struct {
	service *upload.Service
	users   UserLoader
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(service *upload.Service, users UserLoader) *UploadHandler {
	return &UploadHandler{service: service, users: users}
}

// Chunk handles POST /api/v1/upload/chunk (multipart).
//
// Form fields: fileMd5, chunkIndex, totalSize, fileName, orgTag (optional),
// isPublic (optional), file (the chunk bytes).
func (h *UploadHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxChunkFormMemory); err != nil {
		respond.BadRequest(w, "Invalid multipart request")
		return
	}

	fileMD5 := r.FormValue("fileMd5")
	fileName := r.FormValue("fileName")
	if fileMD5 == "" || fileName == "" {
		respond.BadRequest(w, "fileMd5 and fileName are required")
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		respond.BadRequest(w, "chunkIndex must be an integer")
		return
	}
	totalSize, err := strconv.ParseInt(r.FormValue("totalSize"), 10, 64)
	if err != nil || totalSize <= 0 {
		respond.BadRequest(w, "totalSize must be a positive integer")
		return
	}
	isPublic, _ := strconv.ParseBool(r.FormValue("isPublic"))

	part, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file part is required")
		return
	}
	defer part.Close()

	// The buffer only has to live until UploadChunk returns; the service
	// copies the bytes into the object store synchronously.
	buf := bufpool.Get(upload.ChunkSize + 1)
	defer bufpool.Put(buf)

	n, err := io.ReadFull(part, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		respond.BadRequest(w, "failed to read chunk data")
		return
	}
	if n > upload.ChunkSize {
		respond.BadRequest(w, "chunk exceeds the 5 MiB limit")
		return
	}
	data := buf[:n]

	user, err := h.users.GetUserByUsername(r.Context(), claims.Username)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load user")
		return
	}

	req := &upload.ChunkUploadRequest{
		User:       user,
		FileMD5:    fileMD5,
		ChunkIndex: chunkIndex,
		TotalSize:  totalSize,
		FileName:   fileName,
		OrgTag:     r.FormValue("orgTag"),
		IsPublic:   isPublic,
		Data:       data,
	}
	if err := h.service.UploadChunk(r.Context(), req); err != nil {
		writeServiceError(w, r, err, "Chunk upload failed")
		return
	}

	logger.InfoCtx(r.Context(), "chunk uploaded",
		logger.KeyFileMD5, fileMD5, logger.KeyChunkIndex, chunkIndex)
	respond.OK(w, map[string]any{
		"fileMd5":    fileMD5,
		"chunkIndex": chunkIndex,
	})
}

// Status handles GET /api/v1/upload/status?file_md5=.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	fileMD5 := r.URL.Query().Get("file_md5")
	if fileMD5 == "" {
		respond.BadRequest(w, "file_md5 is required")
		return
	}

	status, err := h.service.Status(r.Context(), fileMD5, claims.Username)
	if err != nil {
		writeServiceError(w, r, err, "Failed to read upload status")
		return
	}
	respond.OK(w, status)
}

// MergeRequest is the request body for POST /api/v1/upload/merge.
type MergeRequest struct {
	FileMD5  string `json:"fileMd5"`
	FileName string `json:"fileName"`
}

// Merge handles POST /api/v1/upload/merge.
// Composes the final object, enqueues ingestion and returns a download URL.
func (h *UploadHandler) Merge(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	var req MergeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FileMD5 == "" || req.FileName == "" {
		respond.BadRequest(w, "fileMd5 and fileName are required")
		return
	}

	url, err := h.service.Merge(r.Context(), req.FileMD5, req.FileName, claims.Username)
	if err != nil {
		writeServiceError(w, r, err, "Merge failed")
		return
	}

	logger.InfoCtx(r.Context(), "file merged",
		logger.KeyFileMD5, req.FileMD5, logger.KeyFileName, req.FileName)
	respond.OK(w, map[string]any{
		"fileMd5":     req.FileMD5,
		"fileName":    req.FileName,
		"downloadUrl": url,
	})
}

// SupportedTypes handles GET /api/v1/upload/supported-types.
func (h *UploadHandler) SupportedTypes(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, upload.SupportedTypes())
}
