package tags

import (
	"context"
	"fmt"
	"strings"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/models"
)

// AdminRepository is the store surface the tag service needs on top of the
// resolver's Repository.
type AdminRepository interface {
	Repository
	CreateTag(ctx context.Context, tag *models.OrganizationTag) error
	UpdateTag(ctx context.Context, tag *models.OrganizationTag) error
	DeleteTag(ctx context.Context, tagID string) error
	ListTags(ctx context.Context) ([]*models.OrganizationTag, error)
	CountChildTags(ctx context.Context, tagID string) (int64, error)
	ListUsersReferencingTag(ctx context.Context, tagID string) ([]*models.User, error)
	UpdateUserTags(ctx context.Context, username string, orgTags, primaryTag string) error
}

// Service is the admin-facing tag tree manager. Every mutation invalidates
// the effective-tag cache: globally for tree changes, per user for
// assignment changes.
type Service struct {
	repo     AdminRepository
	resolver *Resolver
}

// NewService creates a tag Service.
func NewService(repo AdminRepository, resolver *Resolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// Create inserts a new tag after checking the parent exists.
func (s *Service) Create(ctx context.Context, tag *models.OrganizationTag) error {
	if tag.TagID == "" || tag.Name == "" {
		return fmt.Errorf("%w: tag id and name are required", models.ErrTagNotFound)
	}
	if tag.ParentTagID != nil {
		if _, err := s.repo.GetTag(ctx, *tag.ParentTagID); err != nil {
			return err
		}
	}
	if err := s.repo.CreateTag(ctx, tag); err != nil {
		return err
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		logger.WarnCtx(ctx, "tag cache invalidation failed", logger.KeyTagID, tag.TagID, logger.KeyError, err)
	}
	return nil
}

// Update changes name, description or parent. A parent choice that appears
// in its own ancestor chain (including the tag itself) is refused.
func (s *Service) Update(ctx context.Context, tag *models.OrganizationTag) error {
	if _, err := s.repo.GetTag(ctx, tag.TagID); err != nil {
		return err
	}
	if tag.ParentTagID != nil {
		if _, err := s.repo.GetTag(ctx, *tag.ParentTagID); err != nil {
			return err
		}
		cycle, err := s.wouldFormCycle(ctx, tag.TagID, *tag.ParentTagID)
		if err != nil {
			return err
		}
		if cycle {
			return models.ErrTagCycle
		}
	}
	if err := s.repo.UpdateTag(ctx, tag); err != nil {
		return err
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		logger.WarnCtx(ctx, "tag cache invalidation failed", logger.KeyTagID, tag.TagID, logger.KeyError, err)
	}
	return nil
}

// wouldFormCycle walks the ancestor chain starting at the proposed parent.
// Comparison is byte-exact; tag ids are case-sensitive.
func (s *Service) wouldFormCycle(ctx context.Context, tagID, newParentID string) (bool, error) {
	current := newParentID
	visited := map[string]bool{}
	for current != "" {
		if current == tagID {
			return true, nil
		}
		if visited[current] {
			// pre-existing cycle in the stored chain, refuse regardless
			return true, nil
		}
		visited[current] = true

		parent, err := s.repo.GetTag(ctx, current)
		if err != nil {
			return false, err
		}
		if parent.ParentTagID == nil {
			return false, nil
		}
		current = *parent.ParentTagID
	}
	return false, nil
}

// Delete removes a tag unless it still has children or is referenced by any
// user's assigned or primary set.
func (s *Service) Delete(ctx context.Context, tagID string) error {
	if tagID == models.DefaultTagID {
		return models.ErrTagInUse
	}
	if _, err := s.repo.GetTag(ctx, tagID); err != nil {
		return err
	}

	children, err := s.repo.CountChildTags(ctx, tagID)
	if err != nil {
		return err
	}
	if children > 0 {
		return models.ErrTagHasChildren
	}

	users, err := s.repo.ListUsersReferencingTag(ctx, tagID)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return models.ErrTagInUse
	}

	if err := s.repo.DeleteTag(ctx, tagID); err != nil {
		return err
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		logger.WarnCtx(ctx, "tag cache invalidation failed", logger.KeyTagID, tagID, logger.KeyError, err)
	}
	return nil
}

// AssignUserTags replaces a user's assigned tag list and primary tag after
// checking every named tag exists, then drops that user's cache entry.
func (s *Service) AssignUserTags(ctx context.Context, username string, tagIDs []string, primaryTag string) error {
	for _, id := range tagIDs {
		if _, err := s.repo.GetTag(ctx, id); err != nil {
			return err
		}
	}
	if primaryTag != "" {
		if _, err := s.repo.GetTag(ctx, primaryTag); err != nil {
			return err
		}
	}

	if err := s.repo.UpdateUserTags(ctx, username, strings.Join(tagIDs, ","), primaryTag); err != nil {
		return err
	}
	if err := s.resolver.InvalidateUser(ctx, username); err != nil {
		logger.WarnCtx(ctx, "per-user tag cache invalidation failed",
			logger.KeyUsername, username, logger.KeyError, err)
	}
	return nil
}

// TreeNode is one tag with its children, for the admin tree listing.
type TreeNode struct {
	Tag      *models.OrganizationTag `json:"tag"`
	Children []*TreeNode             `json:"children"`
}

// Tree returns the whole tag forest as nested nodes, roots first.
func (s *Service) Tree(ctx context.Context) ([]*TreeNode, error) {
	all, err := s.repo.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*TreeNode, len(all))
	for _, tag := range all {
		nodes[tag.TagID] = &TreeNode{Tag: tag, Children: []*TreeNode{}}
	}

	var roots []*TreeNode
	for _, tag := range all {
		node := nodes[tag.TagID]
		if tag.ParentTagID != nil {
			if parent, ok := nodes[*tag.ParentTagID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}
