package store

import (
	"context"

	"github.com/scribehub/scribe/pkg/models"
)

// CreateUser inserts a new user. Returns models.ErrDuplicateUser when the
// username is taken.
func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) error {
	return create(s.db, ctx, user, models.ErrDuplicateUser)
}

// GetUserByUsername retrieves a user by login name.
func (s *GORMStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound)
}

// GetUserByID retrieves a user by database id.
func (s *GORMStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

// ListUsers returns one page of users ordered by id, plus the total count.
// Page numbering starts at 1.
func (s *GORMStore) ListUsers(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []*models.User
	err := s.db.WithContext(ctx).
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// UpdateUserTags replaces the user's assigned tag list and primary tag.
func (s *GORMStore) UpdateUserTags(ctx context.Context, username string, orgTags, primaryTag string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", username).
		Updates(map[string]any{"org_tags": orgTags, "primary_org_tag": primaryTag})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ListUsersReferencingTag returns users whose assigned or primary tag set
// contains tagID literally. The LIKE narrows candidates; the exact check is
// byte-wise in Go because tag ids are case-sensitive and comma-packed.
func (s *GORMStore) ListUsersReferencingTag(ctx context.Context, tagID string) ([]*models.User, error) {
	var candidates []*models.User
	err := s.db.WithContext(ctx).
		Where("org_tags LIKE ? OR primary_org_tag = ?", "%"+tagID+"%", tagID).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(candidates))
	for _, u := range candidates {
		if u.PrimaryOrgTag == tagID || u.HasAssignedTag(tagID) {
			users = append(users, u)
		}
	}
	return users, nil
}
