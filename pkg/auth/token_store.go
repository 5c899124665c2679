package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for the token ledger. Validity of a session token =
// listed under jwt:valid: AND absent from jwt:blacklist:.
const (
	keyValidPrefix     = "jwt:valid:"
	keyRefreshPrefix   = "jwt:refresh:"
	keyBlacklistPrefix = "jwt:blacklist:"
)

// expiryGrace keeps ledger entries slightly past token expiry so a token
// presented at the boundary still resolves deterministically.
const expiryGrace = 5 * time.Minute

// TokenStore is the redis ledger of live and revoked tokens.
type TokenStore struct {
	rdb redis.UniversalClient
}

// NewTokenStore creates a token ledger on the given redis client.
func NewTokenStore(rdb redis.UniversalClient) *TokenStore {
	return &TokenStore{rdb: rdb}
}

func userTokensKey(userID uint) string {
	return fmt.Sprintf("jwt:user:%d:tokens", userID)
}

// RecordPair registers a freshly issued token pair: the access token under
// the valid ledger and the user's token set, the refresh token in its own
// family.
func (t *TokenStore) RecordPair(ctx context.Context, userID uint, pair *TokenPair) error {
	accessTTL := time.Until(pair.ExpiresAt) + expiryGrace
	refreshTTL := time.Until(pair.RefreshExpiresAt)

	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, keyValidPrefix+pair.AccessToken, userID, accessTTL)
	pipe.SAdd(ctx, userTokensKey(userID), pair.AccessToken)
	pipe.Expire(ctx, userTokensKey(userID), refreshTTL+expiryGrace)
	pipe.Set(ctx, keyRefreshPrefix+pair.RefreshToken, userID, refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record token pair: %w", err)
	}
	return nil
}

// IsAccessValid reports whether the access token is listed and not
// blacklisted.
func (t *TokenStore) IsAccessValid(ctx context.Context, token string) (bool, error) {
	blacklisted, err := t.exists(ctx, keyBlacklistPrefix+token)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}
	return t.exists(ctx, keyValidPrefix+token)
}

// IsRefreshValid reports whether the refresh token is still registered.
func (t *TokenStore) IsRefreshValid(ctx context.Context, token string) (bool, error) {
	blacklisted, err := t.exists(ctx, keyBlacklistPrefix+token)
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}
	return t.exists(ctx, keyRefreshPrefix+token)
}

func (t *TokenStore) exists(ctx context.Context, key string) (bool, error) {
	n, err := t.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return n > 0, nil
}

// RevokeAccess blacklists one access token for its remaining lifetime and
// drops it from the user's token set.
func (t *TokenStore) RevokeAccess(ctx context.Context, userID uint, token string, expiresAt time.Time) error {
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		remaining = time.Minute
	}

	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, keyBlacklistPrefix+token, 1, remaining)
	pipe.Del(ctx, keyValidPrefix+token)
	pipe.SRem(ctx, userTokensKey(userID), token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

// RevokeRefresh removes a refresh token so it cannot mint further sessions.
func (t *TokenStore) RevokeRefresh(ctx context.Context, token string) error {
	pipe := t.rdb.TxPipeline()
	pipe.Set(ctx, keyBlacklistPrefix+token, 1, expiryGrace)
	pipe.Del(ctx, keyRefreshPrefix+token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll blacklists every live access token of the user and clears the
// user's token set.
func (t *TokenStore) RevokeAll(ctx context.Context, userID uint, maxTTL time.Duration) error {
	tokens, err := t.rdb.SMembers(ctx, userTokensKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to list user tokens: %w", err)
	}

	pipe := t.rdb.TxPipeline()
	for _, token := range tokens {
		pipe.Set(ctx, keyBlacklistPrefix+token, 1, maxTTL)
		pipe.Del(ctx, keyValidPrefix+token)
	}
	pipe.Del(ctx, userTokensKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}
