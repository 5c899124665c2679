package store

import (
	"context"

	"github.com/scribehub/scribe/pkg/models"
)

// SaveChunk inserts chunk metadata. A replay of the same (file_md5,
// chunk_index) is treated as success so chunk uploads stay idempotent.
func (s *GORMStore) SaveChunk(ctx context.Context, chunk *models.ChunkInfo) error {
	err := create(s.db, ctx, chunk, models.ErrDuplicateFile)
	if err == models.ErrDuplicateFile {
		return nil
	}
	return err
}

// GetChunk retrieves the metadata row for one chunk index.
func (s *GORMStore) GetChunk(ctx context.Context, fileMD5 string, chunkIndex int) (*models.ChunkInfo, error) {
	var chunk models.ChunkInfo
	err := s.db.WithContext(ctx).
		Where("file_md5 = ? AND chunk_index = ?", fileMD5, chunkIndex).
		First(&chunk).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrChunkNotFound)
	}
	return &chunk, nil
}

// ListChunks returns all chunk metadata for a fingerprint in ascending
// index order.
func (s *GORMStore) ListChunks(ctx context.Context, fileMD5 string) ([]*models.ChunkInfo, error) {
	var chunks []*models.ChunkInfo
	err := s.db.WithContext(ctx).
		Where("file_md5 = ?", fileMD5).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunks removes all chunk metadata for a fingerprint. Deleting zero
// rows is not an error; merge cleanup may race with cascade delete.
func (s *GORMStore) DeleteChunks(ctx context.Context, fileMD5 string) error {
	return s.db.WithContext(ctx).
		Where("file_md5 = ?", fileMD5).
		Delete(&models.ChunkInfo{}).Error
}
