// Package ledger tracks which chunks of an upload have been acknowledged.
//
// The ledger is a dense bitmap in redis keyed by (user, file fingerprint):
// bit i is 1 iff chunk i has been stored and recorded. Redis grows the
// bitmap on demand, so no width needs to be declared up front.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidIndex is returned for chunk indices below zero.
var ErrInvalidIndex = errors.New("chunk index must be non-negative")

// Ledger is the redis-backed chunk bitmap.
type Ledger struct {
	rdb redis.UniversalClient
}

// New creates a Ledger on the given redis client.
func New(rdb redis.UniversalClient) *Ledger {
	return &Ledger{rdb: rdb}
}

func bitmapKey(userID, fileMD5 string) string {
	return fmt.Sprintf("upload:%s:%s", userID, fileMD5)
}

// MarkUploaded sets bit index for the (user, fingerprint) bitmap.
func (l *Ledger) MarkUploaded(ctx context.Context, userID, fileMD5 string, index int) error {
	if index < 0 {
		return ErrInvalidIndex
	}
	return l.rdb.SetBit(ctx, bitmapKey(userID, fileMD5), int64(index), 1).Err()
}

// IsUploaded reads bit index for the (user, fingerprint) bitmap.
func (l *Ledger) IsUploaded(ctx context.Context, userID, fileMD5 string, index int) (bool, error) {
	if index < 0 {
		return false, ErrInvalidIndex
	}
	v, err := l.rdb.GetBit(ctx, bitmapKey(userID, fileMD5), int64(index)).Result()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// ListUploaded returns the ascending indices of all set bits in [0, total).
// The whole bitmap is fetched with a single GET so the round-trip count
// stays constant regardless of chunk count.
func (l *Ledger) ListUploaded(ctx context.Context, userID, fileMD5 string, total int) ([]int, error) {
	if total < 0 {
		return nil, ErrInvalidIndex
	}

	data, err := l.rdb.Get(ctx, bitmapKey(userID, fileMD5)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []int{}, nil
		}
		return nil, err
	}

	indices := make([]int, 0, total)
	for i := 0; i < total; i++ {
		byteIdx := i / 8
		if byteIdx >= len(data) {
			break
		}
		if data[byteIdx]>>(7-uint(i%8))&1 == 1 {
			indices = append(indices, i)
		}
	}
	return indices, nil
}

// DeleteBitmap clears the bitmap after merge completion or cancellation.
func (l *Ledger) DeleteBitmap(ctx context.Context, userID, fileMD5 string) error {
	return l.rdb.Del(ctx, bitmapKey(userID, fileMD5)).Err()
}
