// Package tags implements the organization-tag tree: effective-tag
// expansion with a per-user redis cache, and the admin-facing tag service
// with cycle and reference guards.
package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/models"
)

// cacheTTL is the sliding lifetime of a cached effective tag set.
const cacheTTL = 24 * time.Hour

// Repository is the slice of the relational store the resolver needs.
type Repository interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetTag(ctx context.Context, tagID string) (*models.OrganizationTag, error)
}

// Resolver expands a user's assigned tags to their transitive ancestors
// plus DEFAULT, memoizing the result per user.
type Resolver struct {
	repo Repository
	rdb  redis.UniversalClient
}

// NewResolver creates a Resolver backed by the given repository and redis.
func NewResolver(repo Repository, rdb redis.UniversalClient) *Resolver {
	return &Resolver{repo: repo, rdb: rdb}
}

func userCacheKey(username string) string {
	return "org_tags:user:" + username
}

// EffectiveTags returns the user's effective tag set: every assigned tag,
// every ancestor of an assigned tag, and DEFAULT. On any repository error
// the universal scope {DEFAULT} is returned instead of the error so search
// degrades rather than fails.
func (r *Resolver) EffectiveTags(ctx context.Context, username string) []string {
	if cached, ok := r.readCache(ctx, username); ok {
		return cached
	}

	tags, err := r.materialize(ctx, username)
	if err != nil {
		logger.WarnCtx(ctx, "effective tag resolution failed, falling back to DEFAULT",
			logger.KeyUsername, username, logger.KeyError, err)
		return []string{models.DefaultTagID}
	}

	r.writeCache(ctx, username, tags)
	return tags
}

// materialize computes the effective set from the repository.
func (r *Resolver) materialize(ctx context.Context, username string) ([]string, error) {
	user, err := r.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	effective := []string{models.DefaultTagID}
	seen := map[string]bool{models.DefaultTagID: true}

	for _, assigned := range user.AssignedTags() {
		current := assigned
		// Bounded ancestor walk; a repeated visit means a stored cycle,
		// which we stop at rather than loop on.
		for current != "" && !seen[current] {
			seen[current] = true
			effective = append(effective, current)

			tag, err := r.repo.GetTag(ctx, current)
			if err != nil {
				if errors.Is(err, models.ErrTagNotFound) {
					break // dangling assignment, keep the literal tag
				}
				return nil, err
			}
			if tag.ParentTagID == nil {
				break
			}
			current = *tag.ParentTagID
		}
	}

	return effective, nil
}

func (r *Resolver) readCache(ctx context.Context, username string) ([]string, bool) {
	data, err := r.rdb.Get(ctx, userCacheKey(username)).Bytes()
	if err != nil {
		return nil, false
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, false
	}

	// sliding TTL: every hit renews the full window
	r.rdb.Expire(ctx, userCacheKey(username), cacheTTL)
	return tags, true
}

func (r *Resolver) writeCache(ctx context.Context, username string, tags []string) {
	data, err := json.Marshal(tags)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, userCacheKey(username), data, cacheTTL).Err(); err != nil {
		logger.DebugCtx(ctx, "effective tag cache write failed",
			logger.KeyUsername, username, logger.KeyError, err)
	}
}

// InvalidateUser drops one user's cached effective set. Called when an
// admin reassigns that user's tags.
func (r *Resolver) InvalidateUser(ctx context.Context, username string) error {
	return r.rdb.Del(ctx, userCacheKey(username)).Err()
}

// InvalidateAll drops every cached effective set. Called on tag tree
// mutation; global invalidation is acceptable there.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, userCacheKey("*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan tag cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}
