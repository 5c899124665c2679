package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/api/middleware"
	"github.com/scribehub/scribe/pkg/api/respond"
	"github.com/scribehub/scribe/pkg/auth"
	"github.com/scribehub/scribe/pkg/models"
)

// UserHandler handles registration, login and session revocation.
type UserHandler struct {
	users *auth.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *auth.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// CredentialsRequest is the request body for register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for POST /api/v1/users/login.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         UserResponse `json:"user"`
}

// UserResponse is a sanitized user representation for API responses.
type UserResponse struct {
	ID            uint      `json:"id"`
	Username      string    `json:"username"`
	Role          string    `json:"role"`
	OrgTags       []string  `json:"org_tags"`
	PrimaryOrgTag string    `json:"primary_org_tag"`
	CreatedAt     time.Time `json:"created_at"`
}

// Register handles POST /api/v1/users/register.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmptyCredentials),
			errors.Is(err, auth.ErrPasswordTooShort):
			respond.BadRequest(w, err.Error())
		case errors.Is(err, models.ErrDuplicateUser):
			respond.Conflict(w, "Username already taken")
		default:
			logger.ErrorCtx(r.Context(), "registration failed",
				logger.KeyUsername, req.Username, logger.KeyError, err)
			respond.Internal(w, "Registration failed")
		}
		return
	}

	respond.Created(w, userToResponse(user))
}

// Login handles POST /api/v1/users/login.
// Verifies credentials and issues an access/refresh token pair.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, pair, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmptyCredentials):
			respond.BadRequest(w, err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			respond.Unauthorized(w, "Invalid username or password")
		default:
			logger.ErrorCtx(r.Context(), "login failed",
				logger.KeyUsername, req.Username, logger.KeyError, err)
			respond.Internal(w, "Login failed")
		}
		return
	}

	respond.OK(w, LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User:         userToResponse(user),
	})
}

// Logout handles POST /api/v1/users/logout.
// Revokes the presented access token.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		respond.Unauthorized(w, "Authorization header required")
		return
	}

	if err := h.users.Logout(r.Context(), token); err != nil {
		logger.ErrorCtx(r.Context(), "logout failed", logger.KeyError, err)
		respond.Internal(w, "Logout failed")
		return
	}
	respond.OKMessage(w, "logged out")
}

// LogoutAll handles POST /api/v1/users/logout-all.
// Revokes every session handle of the authenticated user.
func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		respond.Unauthorized(w, "Authentication required")
		return
	}

	if err := h.users.LogoutAll(r.Context(), claims.UserID); err != nil {
		logger.ErrorCtx(r.Context(), "logout-all failed",
			logger.KeyUserID, claims.UserID, logger.KeyError, err)
		respond.Internal(w, "Logout failed")
		return
	}
	respond.OKMessage(w, "all sessions revoked")
}

// RefreshRequest is the request body for POST /api/v1/auth/refreshToken.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /api/v1/auth/refreshToken.
// Rotates both handles: the presented refresh token is revoked and a fresh
// pair is issued.
func (h *UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		respond.BadRequest(w, "Refresh token is required")
		return
	}

	pair, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			respond.Unauthorized(w, "Refresh token has expired")
		case errors.Is(err, auth.ErrTokenRevoked),
			errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrInvalidTokenType),
			errors.Is(err, models.ErrUserNotFound):
			respond.Unauthorized(w, "Invalid refresh token")
		default:
			logger.ErrorCtx(r.Context(), "token refresh failed", logger.KeyError, err)
			respond.Internal(w, "Token refresh failed")
		}
		return
	}

	respond.OK(w, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    pair.TokenType,
		"expires_in":    pair.ExpiresIn,
	})
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || len(header) == len(prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// userToResponse converts a User to a UserResponse for API output.
func userToResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Role:          user.Role,
		OrgTags:       user.AssignedTags(),
		PrimaryOrgTag: user.PrimaryOrgTag,
		CreatedAt:     user.CreatedAt,
	}
}
