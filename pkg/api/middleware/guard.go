package middleware

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/models"
)

// FileInfoStore resolves the owner/scope/public triple of a fingerprint.
type FileInfoStore interface {
	GetFileByMD5(ctx context.Context, fileMD5 string) (*models.FileUpload, error)
}

// Guard decides per-resource access before the handler runs.
//
// Requests are classified into write-path (the caller acts on its own
// resources; the handler enforces ownership), resource-scoped (the scope tag
// of the target governs access) and unscoped (no resource id extractable).
// The tag comparison here is a literal membership test against the caller's
// assigned tags; ancestor expansion belongs to the search path only.
type Guard struct {
	files FileInfoStore
}

// NewGuard wires the guard to the file metadata lookup.
func NewGuard(files FileInfoStore) *Guard {
	return &Guard{files: files}
}

var (
	fingerprintPattern = regexp.MustCompile(`/documents/([a-fA-F0-9]{32})(/|$)`)
	numericIDPattern   = regexp.MustCompile(`/documents/([0-9]+)(/|$)`)
)

// chunkUploadHeader names the fingerprint header on chunk uploads, where the
// path carries no resource id.
const chunkUploadHeader = "X-File-MD5"

// isWritePath reports whether the request operates on the caller's own data
// and may proceed on the authenticated identity alone.
func isWritePath(method, path string) bool {
	switch {
	case strings.Contains(path, "/upload/chunk"),
		strings.Contains(path, "/upload/merge"),
		strings.Contains(path, "/documents/uploads"),
		strings.Contains(path, "/search/hybrid"):
		return true
	}
	return method == http.MethodDelete && fingerprintPattern.MatchString(path)
}

// extractResourceID pulls the target fingerprint or record id out of the
// request, or returns empty when the request is unscoped.
func extractResourceID(r *http.Request) string {
	path := r.URL.Path

	if m := fingerprintPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if m := numericIDPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	if strings.Contains(path, "/upload/chunk") {
		return r.Header.Get(chunkUploadHeader)
	}
	return ""
}

// Authorize is the guard middleware. Must run after JWTAuth.
func (g *Guard) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if isWritePath(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		resourceID := extractResourceID(r)
		if resourceID == "" {
			next.ServeHTTP(w, r)
			return
		}

		isChunkUpload := strings.Contains(r.URL.Path, "/upload/chunk")

		file, err := g.files.GetFileByMD5(ctx, resourceID)
		if err != nil {
			if errors.Is(err, models.ErrFileNotFound) {
				// First chunk of a new upload has no record yet.
				if isChunkUpload {
					next.ServeHTTP(w, r)
					return
				}
				respond.NotFound(w, "Resource not found")
				return
			}
			logger.ErrorCtx(ctx, "resource lookup failed",
				logger.KeyFileMD5, resourceID, logger.KeyError, err)
			respond.Internal(w, "Authorization check failed")
			return
		}

		if file.IsPublic || file.OrgTag == "" || file.OrgTag == models.DefaultTagID {
			next.ServeHTTP(w, r)
			return
		}

		claims := GetClaimsFromContext(ctx)
		if claims == nil {
			respond.Unauthorized(w, "Authentication required")
			return
		}

		if claims.Username == file.UserID || claims.Role == string(models.RoleAdmin) {
			next.ServeHTTP(w, r)
			return
		}

		if strings.HasPrefix(file.OrgTag, models.PrivateTagPrefix) {
			respond.Forbidden(w, "Access to a private resource denied")
			return
		}

		for _, tag := range claims.OrgTags {
			if tag == file.OrgTag {
				next.ServeHTTP(w, r)
				return
			}
		}
		respond.Forbidden(w, "Organization tag does not grant access")
	})
}
