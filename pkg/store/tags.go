package store

import (
	"context"

	"github.com/scribehub/scribe/pkg/models"
)

// CreateTag inserts a new organization tag. Returns models.ErrDuplicateTag
// when the tag id is taken.
func (s *GORMStore) CreateTag(ctx context.Context, tag *models.OrganizationTag) error {
	return create(s.db, ctx, tag, models.ErrDuplicateTag)
}

// GetTag retrieves an organization tag by its tag id.
func (s *GORMStore) GetTag(ctx context.Context, tagID string) (*models.OrganizationTag, error) {
	return getByField[models.OrganizationTag](s.db, ctx, "tag_id", tagID, models.ErrTagNotFound)
}

// UpdateTag persists name, description and parent changes for the tag.
func (s *GORMStore) UpdateTag(ctx context.Context, tag *models.OrganizationTag) error {
	result := s.db.WithContext(ctx).Model(&models.OrganizationTag{}).
		Where("tag_id = ?", tag.TagID).
		Updates(map[string]any{
			"name":          tag.Name,
			"description":   tag.Description,
			"parent_tag_id": tag.ParentTagID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrTagNotFound
	}
	return nil
}

// DeleteTag removes the tag row. Reference guards are enforced by the
// service layer before calling this.
func (s *GORMStore) DeleteTag(ctx context.Context, tagID string) error {
	return deleteByField[models.OrganizationTag](s.db, ctx, "tag_id", tagID, models.ErrTagNotFound)
}

// ListTags returns all organization tags ordered by tag id.
func (s *GORMStore) ListTags(ctx context.Context) ([]*models.OrganizationTag, error) {
	var tags []*models.OrganizationTag
	if err := s.db.WithContext(ctx).Order("tag_id").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// ListChildTags returns the direct children of the given tag.
func (s *GORMStore) ListChildTags(ctx context.Context, tagID string) ([]*models.OrganizationTag, error) {
	var tags []*models.OrganizationTag
	if err := s.db.WithContext(ctx).Where("parent_tag_id = ?", tagID).Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// CountChildTags returns the number of direct children of the given tag.
func (s *GORMStore) CountChildTags(ctx context.Context, tagID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.OrganizationTag{}).
		Where("parent_tag_id = ?", tagID).Count(&count).Error
	return count, err
}
