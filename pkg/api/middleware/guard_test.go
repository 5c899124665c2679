package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe/pkg/auth"
	"github.com/scribehub/scribe/pkg/models"
)

type fakeFiles struct {
	files map[string]*models.FileUpload
}

func (f *fakeFiles) GetFileByMD5(_ context.Context, fileMD5 string) (*models.FileUpload, error) {
	file, ok := f.files[fileMD5]
	if !ok {
		return nil, models.ErrFileNotFound
	}
	return file, nil
}

const testFingerprint = "0123456789abcdef0123456789abcdef"

func guardRequest(t *testing.T, g *Guard, method, path string, claims *auth.Claims, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	handler := g.Authorize(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if claims != nil {
		req = req.WithContext(context.WithValue(req.Context(), claimsContextKey, claims))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWritePathClassification(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/api/v1/upload/chunk", true},
		{http.MethodPost, "/api/v1/upload/merge", true},
		{http.MethodGet, "/api/v1/documents/uploads", true},
		{http.MethodGet, "/api/v1/search/hybrid", true},
		{http.MethodDelete, "/api/v1/documents/" + testFingerprint, true},
		{http.MethodGet, "/api/v1/documents/" + testFingerprint, false},
		{http.MethodGet, "/api/v1/documents/accessible", false},
		{http.MethodGet, "/api/v1/documents/download", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isWritePath(tt.method, tt.path), "%s %s", tt.method, tt.path)
	}
}

func TestExtractResourceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+testFingerprint, nil)
	assert.Equal(t, testFingerprint, extractResourceID(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/42", nil)
	assert.Equal(t, "42", extractResourceID(req))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/upload/chunk", nil)
	req.Header.Set(chunkUploadHeader, testFingerprint)
	assert.Equal(t, testFingerprint, extractResourceID(req))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents/accessible", nil)
	assert.Equal(t, "", extractResourceID(req))
}

func TestGuardAllowsPublicResource(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{
		testFingerprint: {FileMD5: testFingerprint, UserID: "alice", OrgTag: "PRIVATE_alice", IsPublic: true},
	}})

	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardAllowsDefaultScope(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{
		testFingerprint: {FileMD5: testFingerprint, UserID: "alice", OrgTag: models.DefaultTagID},
	}})

	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardPrivateTagDeniesOthers(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{
		testFingerprint: {FileMD5: testFingerprint, UserID: "alice", OrgTag: "PRIVATE_alice"},
	}})

	// Another user with arbitrary tags is refused outright.
	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "bob", Role: "USER", OrgTags: []string{"engineering"}}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The owner passes.
	rec = guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "alice", Role: "USER"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// An admin passes.
	rec = guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "root", Role: "ADMIN"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardLiteralTagMembership(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{
		testFingerprint: {FileMD5: testFingerprint, UserID: "alice", OrgTag: "engineering"},
	}})

	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "bob", Role: "USER", OrgTags: []string{"engineering"}}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Membership is literal; a parent tag does not match here.
	rec = guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "bob", Role: "USER", OrgTags: []string{"company"}}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// No assigned tags at all is refused.
	rec = guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint,
		&auth.Claims{Username: "bob", Role: "USER"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardMissingResource(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{}})

	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/"+testFingerprint, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuardUnscopedRequestPasses(t *testing.T) {
	g := NewGuard(&fakeFiles{files: map[string]*models.FileUpload{}})

	rec := guardRequest(t, g, http.MethodGet, "/api/v1/documents/accessible", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardWritePathSkipsLookup(t *testing.T) {
	// A nil store would panic on lookup; write-path must never reach it.
	g := NewGuard(nil)

	rec := guardRequest(t, g, http.MethodDelete, "/api/v1/documents/"+testFingerprint, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = guardRequest(t, g, http.MethodPost, "/api/v1/upload/merge", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
