package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newJWT(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func newUserService(t *testing.T) (*UserService, *store.GORMStore, *TokenStore) {
	t.Helper()
	st, err := store.New(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := NewTokenStore(rdb)

	return NewUserService(st, newJWT(t), tokens), st, tokens
}

func testUser() *models.User {
	u := &models.User{ID: 7, Username: "alice", Role: string(models.RoleUser)}
	u.SetAssignedTags([]string{"PRIVATE_alice", "engineering"})
	return u
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newJWT(t)
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"PRIVATE_alice", "engineering"}, claims.OrgTags)

	refreshClaims, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, refreshClaims.IsRefreshToken())
}

func TestTokenFamiliesAreSinglePurpose(t *testing.T) {
	svc := newJWT(t)
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	svc := newJWT(t)
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	_, err = svc.ValidateAccessToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenStoreLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := NewTokenStore(rdb)
	ctx := context.Background()

	pair := &TokenPair{
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		ExpiresAt:        time.Now().Add(time.Hour),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, tokens.RecordPair(ctx, 7, pair))

	valid, err := tokens.IsAccessValid(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tokens.IsRefreshValid(ctx, "refresh-1")
	require.NoError(t, err)
	assert.True(t, valid)

	// Families are disjoint key spaces.
	valid, err = tokens.IsAccessValid(ctx, "refresh-1")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, tokens.RevokeAccess(ctx, 7, "access-1", pair.ExpiresAt))
	valid, err = tokens.IsAccessValid(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTokenStoreRevokeAll(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tokens := NewTokenStore(rdb)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, tokens.RecordPair(ctx, 7, &TokenPair{
			AccessToken:      "access-" + name,
			RefreshToken:     "refresh-" + name,
			ExpiresAt:        time.Now().Add(time.Hour),
			RefreshExpiresAt: time.Now().Add(24 * time.Hour),
		}))
	}

	require.NoError(t, tokens.RevokeAll(ctx, 7, time.Hour))
	for _, name := range []string{"a", "b", "c"} {
		valid, err := tokens.IsAccessValid(ctx, "access-"+name)
		require.NoError(t, err)
		assert.False(t, valid, "access-%s should be revoked", name)
	}
}

func TestRegisterCreatesPrivateTag(t *testing.T) {
	svc, st, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "PRIVATE_alice", user.PrimaryOrgTag)
	assert.Equal(t, []string{"PRIVATE_alice"}, user.AssignedTags())
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$2"))

	tag, err := st.GetTag(ctx, "PRIVATE_alice")
	require.NoError(t, err)
	assert.True(t, tag.IsPrivate())
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "password123")
	assert.ErrorIs(t, err, ErrEmptyCredentials)

	_, err = svc.Register(ctx, "bob", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "password456")
	assert.ErrorIs(t, err, models.ErrDuplicateUser)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	user, pair, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "ghost", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))
	_, err = svc.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshRotatesBothHandles(t *testing.T) {
	svc, _, tokens := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, fresh.RefreshToken)

	// The consumed refresh token cannot be replayed.
	valid, err := tokens.IsRefreshValid(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, valid)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The fresh pair works.
	_, err = svc.Authenticate(ctx, fresh.AccessToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "password123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}
