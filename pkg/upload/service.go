// Package upload coordinates resumable chunked uploads: chunk acceptance and
// deduplication, progress tracking, and server-side composition of the final
// object followed by ingestion handoff.
package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/scribehub/scribe/internal/logger"
	"github.com/scribehub/scribe/pkg/ledger"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/objectstore"
	"github.com/scribehub/scribe/pkg/queue"
	"github.com/scribehub/scribe/pkg/store"
)

// ChunkSize is the fixed chunk length in bytes. Clients slice uploads at this
// boundary and the server derives expected chunk counts from it. It also
// satisfies the object store's minimum part size for composition.
const ChunkSize = 5 * 1024 * 1024

// ErrAlreadyMerged is returned when merge is replayed on a merged file.
var ErrAlreadyMerged = errors.New("file already merged")

// ErrInvalidIndex mirrors the ledger's bound check for callers that never
// reach it.
var ErrInvalidIndex = ledger.ErrInvalidIndex

// Enqueuer hands a post-merge task to the ingestion pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *queue.ProcessTask) error
}

// Service is the upload coordinator.
type Service struct {
	store         *store.GORMStore
	ledger        *ledger.Ledger
	objects       objectstore.Store
	queue         Enqueuer
	presignExpiry time.Duration
}

// NewService wires the coordinator to its collaborators.
func NewService(st *store.GORMStore, led *ledger.Ledger, objects objectstore.Store, q Enqueuer, presignExpiry time.Duration) *Service {
	return &Service{
		store:         st,
		ledger:        led,
		objects:       objects,
		queue:         q,
		presignExpiry: presignExpiry,
	}
}

// ChunkUploadRequest carries one chunk and the upload's metadata.
type ChunkUploadRequest struct {
	User       *models.User
	FileMD5    string
	ChunkIndex int
	TotalSize  int64
	FileName   string
	OrgTag     string
	IsPublic   bool
	Data       []byte
}

// TotalChunks returns ceil(totalSize / ChunkSize).
func TotalChunks(totalSize int64) int {
	return int((totalSize + ChunkSize - 1) / ChunkSize)
}

// UploadChunk accepts one chunk. Replays of an already stored
// (fingerprint, user, index) triple return success without new writes. The
// bitmap bit is set only after the chunk object and its metadata both exist,
// so a set bit with a missing object self-heals on the next replay.
func (s *Service) UploadChunk(ctx context.Context, req *ChunkUploadRequest) error {
	if req.ChunkIndex < 0 {
		return ErrInvalidIndex
	}
	if req.ChunkIndex == 0 {
		if err := ValidateFileName(req.FileName); err != nil {
			return err
		}
	}

	username := req.User.Username

	if err := s.ensureFileRecord(ctx, req); err != nil {
		return err
	}

	marked, err := s.ledger.IsUploaded(ctx, username, req.FileMD5, req.ChunkIndex)
	if err != nil {
		return fmt.Errorf("failed to consult upload bitmap: %w", err)
	}
	if marked {
		key := objectstore.ChunkKey(req.FileMD5, req.ChunkIndex)
		exists, err := s.objects.ObjectExists(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to verify chunk object %s: %w", key, err)
		}
		if exists {
			if _, err := s.store.GetChunk(ctx, req.FileMD5, req.ChunkIndex); err == nil {
				logger.DebugCtx(ctx, "chunk replay, already stored",
					logger.KeyFileMD5, req.FileMD5,
					logger.KeyChunkIndex, req.ChunkIndex)
				return nil
			} else if !errors.Is(err, models.ErrChunkNotFound) {
				return err
			}
		}
		// Bit set but object or metadata missing: treat as not uploaded.
	}

	sum := md5.Sum(req.Data)
	chunkMD5 := hex.EncodeToString(sum[:])
	key := objectstore.ChunkKey(req.FileMD5, req.ChunkIndex)

	if err := s.objects.PutObject(ctx, key, bytes.NewReader(req.Data), int64(len(req.Data))); err != nil {
		return fmt.Errorf("failed to store chunk %d of %s: %w", req.ChunkIndex, req.FileMD5, err)
	}

	if err := s.ledger.MarkUploaded(ctx, username, req.FileMD5, req.ChunkIndex); err != nil {
		return fmt.Errorf("failed to mark chunk %d of %s: %w", req.ChunkIndex, req.FileMD5, err)
	}

	if err := s.store.SaveChunk(ctx, &models.ChunkInfo{
		FileMD5:     req.FileMD5,
		ChunkIndex:  req.ChunkIndex,
		ChunkMD5:    chunkMD5,
		StoragePath: key,
	}); err != nil {
		return fmt.Errorf("failed to save chunk metadata: %w", err)
	}

	logger.InfoCtx(ctx, "chunk stored",
		logger.KeyFileMD5, req.FileMD5,
		logger.KeyChunkIndex, req.ChunkIndex,
		logger.KeyObjectKey, key)
	return nil
}

// ensureFileRecord inserts the UPLOADING row on first sighting of the
// (fingerprint, user) pair. An absent scope tag falls back to the user's
// primary tag.
func (s *Service) ensureFileRecord(ctx context.Context, req *ChunkUploadRequest) error {
	_, err := s.store.GetFile(ctx, req.FileMD5, req.User.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrFileNotFound) {
		return err
	}

	orgTag := req.OrgTag
	if orgTag == "" {
		orgTag = req.User.PrimaryOrgTag
	}

	err = s.store.CreateFile(ctx, &models.FileUpload{
		FileMD5:   req.FileMD5,
		UserID:    req.User.Username,
		FileName:  req.FileName,
		TotalSize: req.TotalSize,
		Status:    models.StatusUploading,
		OrgTag:    orgTag,
		IsPublic:  req.IsPublic,
	})
	if errors.Is(err, models.ErrDuplicateFile) {
		// Lost the race against a concurrent first chunk.
		return nil
	}
	return err
}

// UploadStatus reports resumable-upload progress.
type UploadStatus struct {
	FileMD5     string  `json:"file_md5"`
	FileName    string  `json:"file_name"`
	TotalChunks int     `json:"total_chunks"`
	Uploaded    []int   `json:"uploaded_chunks"`
	Progress    float64 `json:"progress"`
	Merged      bool    `json:"merged"`
}

// Status returns the uploaded chunk indices and completion percentage for
// one (fingerprint, user) pair.
func (s *Service) Status(ctx context.Context, fileMD5, username string) (*UploadStatus, error) {
	file, err := s.store.GetFile(ctx, fileMD5, username)
	if err != nil {
		return nil, err
	}

	total := TotalChunks(file.TotalSize)
	uploaded, err := s.ledger.ListUploaded(ctx, username, fileMD5, total)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded chunks: %w", err)
	}

	progress := 0.0
	if file.IsMerged() {
		progress = 100.0
	} else if total > 0 {
		progress = float64(len(uploaded)) / float64(total) * 100.0
	}

	return &UploadStatus{
		FileMD5:     fileMD5,
		FileName:    file.FileName,
		TotalChunks: total,
		Uploaded:    uploaded,
		Progress:    progress,
		Merged:      file.IsMerged(),
	}, nil
}

// Merge composes the final object from the stored chunks, hands the result
// to the ingestion queue, and returns a pre-signed download URL.
func (s *Service) Merge(ctx context.Context, fileMD5, fileName, username string) (string, error) {
	file, err := s.store.GetFile(ctx, fileMD5, username)
	if err != nil {
		return "", err
	}
	if file.IsMerged() {
		return "", ErrAlreadyMerged
	}

	chunks, err := s.store.ListChunks(ctx, fileMD5)
	if err != nil {
		return "", err
	}
	expected := TotalChunks(file.TotalSize)
	if len(chunks) != expected {
		return "", fmt.Errorf("%w: have %d of %d", models.ErrIncompleteChunks, len(chunks), expected)
	}

	srcKeys := make([]string, len(chunks))
	for i, c := range chunks {
		exists, err := s.objects.ObjectExists(ctx, c.StoragePath)
		if err != nil {
			return "", fmt.Errorf("failed to verify chunk object %s: %w", c.StoragePath, err)
		}
		if !exists {
			return "", fmt.Errorf("%w: chunk %d object missing", models.ErrIncompleteChunks, c.ChunkIndex)
		}
		srcKeys[i] = c.StoragePath
	}

	mergedKey := objectstore.MergedKey(fileName)
	if err := s.objects.Compose(ctx, mergedKey, srcKeys); err != nil {
		return "", fmt.Errorf("failed to compose %s: %w", mergedKey, err)
	}
	exists, err := s.objects.ObjectExists(ctx, mergedKey)
	if err != nil || !exists {
		return "", fmt.Errorf("composed object %s not found after compose: %w", mergedKey, err)
	}

	// Source chunks are redundant once the composed object exists.
	for _, src := range srcKeys {
		if err := s.objects.DeleteObject(ctx, src); err != nil {
			logger.WarnCtx(ctx, "failed to delete source chunk after merge",
				logger.KeyObjectKey, src, logger.KeyError, err)
		}
	}

	if err := s.ledger.DeleteBitmap(ctx, username, fileMD5); err != nil {
		logger.WarnCtx(ctx, "failed to clear upload bitmap",
			logger.KeyFileMD5, fileMD5, logger.KeyError, err)
	}

	url, err := s.objects.PresignGet(ctx, mergedKey, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", mergedKey, err)
	}

	// Status change and task enqueue share one transaction boundary so a
	// merged row always has a matching ingestion task.
	err = s.store.WithTx(ctx, func(tx *store.GORMStore) error {
		if err := tx.MarkFileMerged(ctx, fileMD5, username, time.Now()); err != nil {
			return err
		}
		return s.queue.Enqueue(ctx, &queue.ProcessTask{
			FileMD5:  fileMD5,
			FilePath: url,
			FileName: fileName,
			UserID:   username,
			OrgTag:   file.OrgTag,
			IsPublic: file.IsPublic,
		})
	})
	if err != nil {
		return "", err
	}

	logger.InfoCtx(ctx, "upload merged",
		logger.KeyFileMD5, fileMD5,
		logger.KeyFileName, fileName,
		logger.KeyTotalSize, file.TotalSize,
		logger.KeyCount, len(chunks))
	return url, nil
}
