package store

import (
	"context"
	"time"

	"github.com/scribehub/scribe/pkg/models"
)

// CreateFile inserts a FileUpload row. Returns models.ErrDuplicateFile when
// the (file_md5, user_id) pair already exists.
func (s *GORMStore) CreateFile(ctx context.Context, file *models.FileUpload) error {
	return create(s.db, ctx, file, models.ErrDuplicateFile)
}

// GetFile retrieves the FileUpload owned by userID with the given fingerprint.
func (s *GORMStore) GetFile(ctx context.Context, fileMD5, userID string) (*models.FileUpload, error) {
	var file models.FileUpload
	err := s.db.WithContext(ctx).
		Where("file_md5 = ? AND user_id = ?", fileMD5, userID).
		First(&file).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// GetFileByMD5 retrieves any FileUpload with the given fingerprint,
// regardless of owner. Used by download and the authorization guard.
func (s *GORMStore) GetFileByMD5(ctx context.Context, fileMD5 string) (*models.FileUpload, error) {
	return getByField[models.FileUpload](s.db, ctx, "file_md5", fileMD5, models.ErrFileNotFound)
}

// MarkFileMerged transitions the file to MERGED with the merge timestamp.
// The transition is forward-only; a file already merged is left untouched
// and reported via models.ErrFileNotFound so replayed merges surface.
func (s *GORMStore) MarkFileMerged(ctx context.Context, fileMD5, userID string, mergedAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.FileUpload{}).
		Where("file_md5 = ? AND user_id = ? AND status = ?", fileMD5, userID, models.StatusUploading).
		Updates(map[string]any{"status": models.StatusMerged, "merged_at": mergedAt})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

// ListFilesByUser returns the files owned by userID, newest first.
func (s *GORMStore) ListFilesByUser(ctx context.Context, userID string) ([]*models.FileUpload, error) {
	var files []*models.FileUpload
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListAccessibleFiles returns files visible to userID: owned, public, or
// scoped to one of the given effective tags. With no tags the query reduces
// to owned-or-public.
func (s *GORMStore) ListAccessibleFiles(ctx context.Context, userID string, effectiveTags []string) ([]*models.FileUpload, error) {
	var files []*models.FileUpload
	q := s.db.WithContext(ctx)
	if len(effectiveTags) == 0 {
		q = q.Where("user_id = ? OR is_public = ?", userID, true)
	} else {
		q = q.Where("user_id = ? OR is_public = ? OR org_tag IN ?", userID, true, effectiveTags)
	}
	if err := q.Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// FileNamesByMD5 returns a fingerprint → filename map for the given set, in
// a single query. Missing fingerprints are simply absent from the map.
func (s *GORMStore) FileNamesByMD5(ctx context.Context, fileMD5s []string) (map[string]string, error) {
	if len(fileMD5s) == 0 {
		return map[string]string{}, nil
	}
	var files []models.FileUpload
	err := s.db.WithContext(ctx).
		Select("file_md5", "file_name").
		Where("file_md5 IN ?", fileMD5s).
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.FileMD5] = f.FileName
	}
	return names, nil
}

// DeleteFileCascade removes the file row together with its chunk metadata
// and passages, in one transaction.
func (s *GORMStore) DeleteFileCascade(ctx context.Context, fileMD5, userID string) error {
	return s.WithTx(ctx, func(tx *GORMStore) error {
		result := tx.db.Where("file_md5 = ? AND user_id = ?", fileMD5, userID).
			Delete(&models.FileUpload{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.ErrFileNotFound
		}
		if err := tx.DeleteChunks(ctx, fileMD5); err != nil {
			return err
		}
		return tx.DeletePassages(ctx, fileMD5)
	})
}
