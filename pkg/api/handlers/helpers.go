// Package handlers provides the HTTP handlers behind the REST surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/upload"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps known business errors onto their semantic status
// class and hides everything else behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var typeErr *upload.UnsupportedTypeError
	switch {
	case errors.As(err, &typeErr):
		respond.JSON(w, http.StatusBadRequest, typeErr.Message, map[string]string{
			"fileType":  typeErr.FileType,
			"extension": typeErr.Extension,
		})
	case errors.Is(err, upload.ErrInvalidIndex),
		errors.Is(err, models.ErrIncompleteChunks):
		respond.BadRequest(w, err.Error())
	case errors.Is(err, models.ErrFileNotFound),
		errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrTagNotFound),
		errors.Is(err, models.ErrChunkNotFound):
		respond.NotFound(w, err.Error())
	case errors.Is(err, models.ErrDuplicateUser),
		errors.Is(err, models.ErrDuplicateTag),
		errors.Is(err, models.ErrTagCycle),
		errors.Is(err, models.ErrTagInUse),
		errors.Is(err, models.ErrTagHasChildren),
		errors.Is(err, upload.ErrAlreadyMerged):
		respond.Conflict(w, err.Error())
	default:
		logger.ErrorCtx(r.Context(), fallback, logger.KeyError, err)
		respond.Internal(w, fallback)
	}
}
