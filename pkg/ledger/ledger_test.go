package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestMarkThenIsUploaded(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.IsUploaded(ctx, "alice", "md5", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.MarkUploaded(ctx, "alice", "md5", 0))
	require.NoError(t, l.MarkUploaded(ctx, "alice", "md5", 9))

	ok, err = l.IsUploaded(ctx, "alice", "md5", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.IsUploaded(ctx, "alice", "md5", 9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.IsUploaded(ctx, "alice", "md5", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListUploaded(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// empty bitmap
	got, err := l.ListUploaded(ctx, "alice", "md5", 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, i := range []int{0, 2, 8, 11} {
		require.NoError(t, l.MarkUploaded(ctx, "alice", "md5", i))
	}

	got, err = l.ListUploaded(ctx, "alice", "md5", 12)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 8, 11}, got)

	// total bounds the scan even when higher bits are set
	got, err = l.ListUploaded(ctx, "alice", "md5", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, got)
}

func TestBitmapsAreScopedPerUser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.MarkUploaded(ctx, "alice", "md5", 1))

	ok, err := l.IsUploaded(ctx, "bob", "md5", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNegativeIndexRejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	assert.ErrorIs(t, l.MarkUploaded(ctx, "alice", "md5", -1), ErrInvalidIndex)
	_, err := l.IsUploaded(ctx, "alice", "md5", -1)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestDeleteBitmap(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.MarkUploaded(ctx, "alice", "md5", 2))
	require.NoError(t, l.DeleteBitmap(ctx, "alice", "md5"))

	got, err := l.ListUploaded(ctx, "alice", "md5", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
