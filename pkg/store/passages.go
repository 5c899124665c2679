package store

import (
	"context"

	"github.com/scribehub/scribe/pkg/models"
)

// SavePassage inserts one splitter-produced passage.
func (s *GORMStore) SavePassage(ctx context.Context, passage *models.DocumentVector) error {
	return create(s.db, ctx, passage, models.ErrPassageNotFound)
}

// ListPassages returns all passages for a fingerprint ordered by chunk id.
func (s *GORMStore) ListPassages(ctx context.Context, fileMD5 string) ([]*models.DocumentVector, error) {
	var passages []*models.DocumentVector
	err := s.db.WithContext(ctx).
		Where("file_md5 = ?", fileMD5).
		Order("chunk_id ASC").
		Find(&passages).Error
	if err != nil {
		return nil, err
	}
	return passages, nil
}

// DeletePassages removes all passages for a fingerprint. The ingestion
// worker calls this at task start so a redelivery replaces the previous
// attempt instead of appending to it.
func (s *GORMStore) DeletePassages(ctx context.Context, fileMD5 string) error {
	return s.db.WithContext(ctx).
		Where("file_md5 = ?", fileMD5).
		Delete(&models.DocumentVector{}).Error
}
