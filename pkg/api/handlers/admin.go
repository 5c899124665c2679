package handlers

import (
	"net/http"
	"strconv"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/store"
	"github.com/scribehub/scribe/pkg/tags"
)

// AdminHandler handles the admin-only tag and user management surface.
// All routes are mounted behind RequireAdmin.
type AdminHandler struct {
	store *store.GORMStore
	tags  *tags.Service
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(st *store.GORMStore, tagService *tags.Service) *AdminHandler {
	return &AdminHandler{store: st, tags: tagService}
}

// TagRequest is the request body for tag creation and update.
type TagRequest struct {
	TagID       string  `json:"tagId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentTagID *string `json:"parentTagId"`
}

// CreateTag handles POST /api/v1/admin/org-tags.
func (h *AdminHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.TagID == "" || req.Name == "" {
		respond.BadRequest(w, "tagId and name are required")
		return
	}

	claims := middleware.GetClaimsFromContext(r.Context())
	tag := &models.OrganizationTag{
		TagID:       req.TagID,
		Name:        req.Name,
		Description: req.Description,
		ParentTagID: req.ParentTagID,
	}
	if claims != nil {
		tag.CreatedBy = claims.Username
	}

	if err := h.tags.Create(r.Context(), tag); err != nil {
		writeServiceError(w, r, err, "Failed to create tag")
		return
	}

	logger.InfoCtx(r.Context(), "organization tag created", logger.KeyTagID, req.TagID)
	respond.Created(w, tag)
}

// ListTags handles GET /api/v1/admin/org-tags.
func (h *AdminHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.ListTags(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to list tags")
		return
	}
	respond.OK(w, all)
}

// TagTree handles GET /api/v1/admin/org-tags/tree.
func (h *AdminHandler) TagTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.tags.Tree(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to build tag tree")
		return
	}
	respond.OK(w, tree)
}

// UpdateTag handles PUT /api/v1/admin/org-tags/{tagId}.
func (h *AdminHandler) UpdateTag(w http.ResponseWriter, r *http.Request, tagID string) {
	var req TagRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	tag, err := h.store.GetTag(r.Context(), tagID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to load tag")
		return
	}

	if req.Name != "" {
		tag.Name = req.Name
	}
	tag.Description = req.Description
	tag.ParentTagID = req.ParentTagID

	if err := h.tags.Update(r.Context(), tag); err != nil {
		writeServiceError(w, r, err, "Failed to update tag")
		return
	}

	logger.InfoCtx(r.Context(), "organization tag updated", logger.KeyTagID, tagID)
	respond.OK(w, tag)
}

// DeleteTag handles DELETE /api/v1/admin/org-tags/{tagId}.
// Refused while the tag is referenced by users or has children.
func (h *AdminHandler) DeleteTag(w http.ResponseWriter, r *http.Request, tagID string) {
	if err := h.tags.Delete(r.Context(), tagID); err != nil {
		writeServiceError(w, r, err, "Failed to delete tag")
		return
	}

	logger.InfoCtx(r.Context(), "organization tag deleted", logger.KeyTagID, tagID)
	respond.OKMessage(w, "tag deleted")
}

// AssignTagsRequest is the request body for tag assignment.
type AssignTagsRequest struct {
	OrgTags       []string `json:"orgTags"`
	PrimaryOrgTag string   `json:"primaryOrgTag"`
}

// AssignUserTags handles PUT /api/v1/admin/users/{userId}/org-tags.
// Replaces the user's assigned tag list and primary tag, then invalidates
// the user's effective-tag cache.
func (h *AdminHandler) AssignUserTags(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := strconv.ParseUint(userID, 10, 32)
	if err != nil {
		respond.BadRequest(w, "userId must be numeric")
		return
	}

	var req AssignTagsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByID(r.Context(), uint(id))
	if err != nil {
		writeServiceError(w, r, err, "Failed to load user")
		return
	}

	if err := h.tags.AssignUserTags(r.Context(), user.Username, req.OrgTags, req.PrimaryOrgTag); err != nil {
		writeServiceError(w, r, err, "Failed to assign tags")
		return
	}

	logger.InfoCtx(r.Context(), "user tags reassigned",
		logger.KeyUsername, user.Username, logger.KeyCount, len(req.OrgTags))
	respond.OKMessage(w, "tags assigned")
}

// ListUsers handles GET /api/v1/admin/users/list?page=&size=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := 1
	size := 20
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			size = parsed
		}
	}

	users, total, err := h.store.ListUsers(r.Context(), page, size)
	if err != nil {
		writeServiceError(w, r, err, "Failed to list users")
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	respond.OK(w, map[string]any{
		"users": out,
		"total": total,
		"page":  page,
		"size":  size,
	})
}
