package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/scribehub/scribe/internal/logger"
)

// Compose assembles destKey from the source objects in order, entirely
// server-side, via a multipart upload whose parts are copied from the
// sources. Chunk objects are a fixed 5 MiB (except the last), which meets
// the S3 minimum part size for every non-final part.
func (s *S3Store) Compose(ctx context.Context, destKey string, srcKeys []string) error {
	if len(srcKeys) == 0 {
		return fmt.Errorf("compose %s: no source objects", destKey)
	}

	mpu, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(destKey),
	})
	if err != nil {
		return fmt.Errorf("failed to start compose for %s: %w", destKey, err)
	}
	uploadID := mpu.UploadId

	abort := func() {
		_, abortErr := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(destKey),
			UploadId: uploadID,
		})
		if abortErr != nil {
			logger.Warn("failed to abort multipart compose",
				logger.KeyObjectKey, destKey, logger.KeyError, abortErr)
		}
	}

	parts := make([]types.CompletedPart, 0, len(srcKeys))
	for i, src := range srcKeys {
		partNumber := int32(i + 1)
		out, err := s.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(destKey),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			CopySource: aws.String(s.bucket + "/" + src),
		})
		if err != nil {
			abort()
			return fmt.Errorf("failed to copy part %d (%s) into %s: %w", partNumber, src, destKey, err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       out.CopyPartResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(destKey),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		abort()
		return fmt.Errorf("failed to complete compose for %s: %w", destKey, err)
	}

	return nil
}
