package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/store"
)

// Credential errors.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrEmptyCredentials   = errors.New("username and password must not be empty")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
)

// UserService handles registration and the session lifecycle.
type UserService struct {
	store  *store.GORMStore
	jwt    *JWTService
	tokens *TokenStore
}

// NewUserService wires the user service.
func NewUserService(st *store.GORMStore, jwtSvc *JWTService, tokens *TokenStore) *UserService {
	return &UserService{store: st, jwt: jwtSvc, tokens: tokens}
}

// Register creates an account with a bcrypt-hashed secret, creates the
// user's private tag and sets it as their primary and sole assigned tag.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrEmptyCredentials
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	privateTag := models.PrivateTagID(username)
	user := &models.User{
		Username:      username,
		PasswordHash:  string(hash),
		Role:          string(models.RoleUser),
		PrimaryOrgTag: privateTag,
	}
	user.SetAssignedTags([]string{privateTag})

	err = s.store.WithTx(ctx, func(tx *store.GORMStore) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		return tx.CreateTag(ctx, &models.OrganizationTag{
			TagID:     privateTag,
			Name:      "Private: " + username,
			CreatedBy: username,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "user registered",
		logger.KeyUsername, username, logger.KeyOrgTag, privateTag)
	return user, nil
}

// Login verifies the credentials and issues a recorded token pair.
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, *TokenPair, error) {
	if username == "" || password == "" {
		return nil, nil, ErrEmptyCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	if err := s.tokens.RecordPair(ctx, user.ID, pair); err != nil {
		return nil, nil, err
	}

	logger.InfoCtx(ctx, "user logged in",
		logger.KeyUsername, username, logger.KeyUserID, user.ID)
	return user, pair, nil
}

// Refresh rotates both handles: the presented refresh token is validated
// against its ledger family, revoked, and a freshly recorded pair returned.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.tokens.IsRefreshValid(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrTokenRevoked
	}

	user, err := s.store.GetUserByUsername(ctx, claims.Username)
	if err != nil {
		return nil, err
	}

	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RevokeRefresh(ctx, refreshToken); err != nil {
		return nil, err
	}
	if err := s.tokens.RecordPair(ctx, user.ID, pair); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "token pair rotated", logger.KeyUsername, user.Username)
	return pair, nil
}

// Logout revokes the presented access token.
func (s *UserService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return err
	}
	return s.tokens.RevokeAccess(ctx, claims.UserID, accessToken, claims.ExpiresAt.Time)
}

// LogoutAll revokes every live session of the user.
func (s *UserService) LogoutAll(ctx context.Context, userID uint) error {
	return s.tokens.RevokeAll(ctx, userID, s.jwt.GetAccessTokenDuration())
}

// Authenticate resolves an access token to its claims, enforcing both the
// signature and the revocation ledger.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.tokens.IsAccessValid(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}
