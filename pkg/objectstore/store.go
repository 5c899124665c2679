// Package objectstore implements S3-backed storage for chunk and merged
// objects, including server-side composition and pre-signed downloads.
//
// Layout inside the bucket:
//
//	chunks/<fileMD5>/<index>  one object per uploaded chunk
//	merged/<fileName>         the composed final object
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/scribehub/scribe/internal/logger"
)

// Store is the common surface the upload coordinator and document service
// use; *S3Store implements it.
type Store interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
	ObjectSize(ctx context.Context, key string) (int64, error)
	DeleteObject(ctx context.Context, key string) error
	Compose(ctx context.Context, destKey string, srcKeys []string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ChunkKey returns the object key for one uploaded chunk.
func ChunkKey(fileMD5 string, index int) string {
	return fmt.Sprintf("chunks/%s/%d", fileMD5, index)
}

// MergedKey returns the object key for a composed final object.
func MergedKey(fileName string) string {
	return "merged/" + fileName
}

// Config configures the S3 store.
type Config struct {
	// Endpoint overrides the S3 endpoint (MinIO and friends). Empty = AWS.
	Endpoint string

	// Region is the bucket region.
	Region string

	// Bucket holds all chunk and merged objects.
	Bucket string

	// AccessKeyID / SecretAccessKey are static credentials; leave both
	// empty to use the ambient AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (required by MinIO).
	UsePathStyle bool
}

// retryConfig bounds the transient-error retry loop.
type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	backoffMultiplier float64
	maxBackoff        time.Duration
}

// S3Store talks to one bucket of an S3-compatible object store.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	retry   retryConfig
}

// New builds an S3Store from configuration.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		retry: retryConfig{
			maxRetries:        3,
			initialBackoff:    100 * time.Millisecond,
			backoffMultiplier: 2.0,
			maxBackoff:        2 * time.Second,
		},
	}, nil
}

// calculateBackoff returns the backoff duration for a given attempt.
func (s *S3Store) calculateBackoff(attempt int) time.Duration {
	backoff := float64(s.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= s.retry.backoffMultiplier
	}
	if backoff > float64(s.retry.maxBackoff) {
		backoff = float64(s.retry.maxBackoff)
	}
	return time.Duration(backoff)
}

// PutObject uploads one object. Transient errors are retried with
// exponential backoff; the reader must therefore be re-readable only when
// the first attempt fails before any bytes were consumed, so callers pass
// in-memory chunk buffers.
func (s *S3Store) PutObject(ctx context.Context, key string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// GetObject returns a reader for the object. The caller must close it.
func (s *S3Store) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *s3.GetObjectOutput
	var lastErr error

	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.calculateBackoff(attempt - 1)
			logger.Debug("GetObject: retrying",
				logger.KeyObjectKey, key, logger.KeyAttempt, attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		out, lastErr = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if lastErr == nil {
			return out.Body, nil
		}
		if isNotFoundError(lastErr) {
			return nil, fmt.Errorf("object %s: %w", key, ErrObjectNotFound)
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	return nil, fmt.Errorf("failed to get object %s after %d attempts: %w",
		key, s.retry.maxRetries+1, lastErr)
}

// ObjectExists checks object existence with a HEAD request.
func (s *S3Store) ObjectExists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(s.calculateBackoff(attempt - 1)):
			}
		}

		_, lastErr = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if lastErr == nil {
			return true, nil
		}
		// Not found is not an error for an existence check
		if isNotFoundError(lastErr) {
			return false, nil
		}
		if !isRetryableError(lastErr) {
			break
		}
	}

	return false, fmt.Errorf("failed to check object %s after %d attempts: %w",
		key, s.retry.maxRetries+1, lastErr)
}

// ObjectSize returns the object's byte length from a HEAD request.
func (s *S3Store) ObjectSize(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("object %s: %w", key, ErrObjectNotFound)
		}
		return 0, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	if out.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", key)
	}
	return *out.ContentLength, nil
}

// DeleteObject removes one object. Deleting a missing object is a no-op.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for the object.
func (s *S3Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}
	return req.URL, nil
}
