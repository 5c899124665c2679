package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe/pkg/ledger"
	"github.com/scribehub/scribe/pkg/models"
	"github.com/scribehub/scribe/pkg/queue"
	"github.com/scribehub/scribe/pkg/store"
)

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) PutObject(_ context.Context, key string, body io.Reader, _ int64) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjects) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) ObjectExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjects) ObjectSize(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("no such key %s", key)
	}
	return int64(len(data)), nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) Compose(_ context.Context, destKey string, srcKeys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, src := range srcKeys {
		data, ok := f.objects[src]
		if !ok {
			return fmt.Errorf("compose source %s missing", src)
		}
		buf.Write(data)
	}
	f.objects[destKey] = buf.Bytes()
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.test/" + key + "?sig=test", nil
}

// fakeQueue records enqueued tasks.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []*queue.ProcessTask
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task *queue.ProcessTask) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

type fixture struct {
	svc     *Service
	store   *store.GORMStore
	ledger  *ledger.Ledger
	objects *fakeObjects
	queue   *fakeQueue
	user    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	led := ledger.New(rdb)

	objects := newFakeObjects()
	q := &fakeQueue{}

	user := &models.User{
		Username:      "alice",
		PasswordHash:  "x",
		PrimaryOrgTag: "PRIVATE_alice",
	}
	require.NoError(t, s.CreateUser(context.Background(), user))

	return &fixture{
		svc:     NewService(s, led, objects, q, time.Hour),
		store:   s,
		ledger:  led,
		objects: objects,
		queue:   q,
		user:    user,
	}
}

func (fx *fixture) chunkReq(md5, name string, index int, totalSize int64, data []byte) *ChunkUploadRequest {
	return &ChunkUploadRequest{
		User:       fx.user,
		FileMD5:    md5,
		ChunkIndex: index,
		TotalSize:  totalSize,
		FileName:   name,
		OrgTag:     "engineering",
		Data:       data,
	}
}

const testMD5 = "0123456789abcdef0123456789abcdef"

func TestUploadChunkStoresObjectBitAndMetadata(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	err := fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "doc.txt", 0, 10, []byte("hello")))
	require.NoError(t, err)

	exists, err := fx.objects.ObjectExists(ctx, "chunks/"+testMD5+"/0")
	require.NoError(t, err)
	assert.True(t, exists)

	marked, err := fx.ledger.IsUploaded(ctx, "alice", testMD5, 0)
	require.NoError(t, err)
	assert.True(t, marked)

	chunk, err := fx.store.GetChunk(ctx, testMD5, 0)
	require.NoError(t, err)
	assert.Equal(t, "chunks/"+testMD5+"/0", chunk.StoragePath)
	assert.Len(t, chunk.ChunkMD5, 32)

	file, err := fx.store.GetFile(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, file.Status)
	assert.Equal(t, "engineering", file.OrgTag)
}

func TestUploadChunkSubstitutesPrimaryTag(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := fx.chunkReq(testMD5, "doc.txt", 0, 10, []byte("hello"))
	req.OrgTag = ""
	require.NoError(t, fx.svc.UploadChunk(ctx, req))

	file, err := fx.store.GetFile(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.Equal(t, "PRIVATE_alice", file.OrgTag)
}

func TestUploadChunkNegativeIndexRejected(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.UploadChunk(context.Background(), fx.chunkReq(testMD5, "doc.txt", -1, 10, []byte("x")))
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestUploadChunkUnsupportedTypeGate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	err := fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "malware.exe", 0, 10, []byte("MZ")))
	var unsupported *UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "EXE file", unsupported.FileType)

	// Nothing was created.
	_, err = fx.store.GetFile(ctx, testMD5, "alice")
	assert.ErrorIs(t, err, models.ErrFileNotFound)
	exists, _ := fx.objects.ObjectExists(ctx, "chunks/"+testMD5+"/0")
	assert.False(t, exists)
}

func TestUploadChunkGateAppliesToFirstIndexOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// A refused extension on a non-first chunk passes through; the gate
	// already ran when index 0 arrived.
	err := fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "malware.exe", 1, 10<<20, []byte("x")))
	require.NoError(t, err)
}

func TestUploadChunkIdempotentReplay(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := fx.chunkReq(testMD5, "doc.txt", 1, 10<<20, []byte("same bytes"))
	require.NoError(t, fx.svc.UploadChunk(ctx, req))
	require.NoError(t, fx.svc.UploadChunk(ctx, req))

	chunks, err := fx.store.ListChunks(ctx, testMD5)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestUploadChunkHealsMissingObject(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := fx.chunkReq(testMD5, "doc.txt", 0, 10, []byte("hello"))
	require.NoError(t, fx.svc.UploadChunk(ctx, req))

	// Simulate a lost object behind a set bit.
	require.NoError(t, fx.objects.DeleteObject(ctx, "chunks/"+testMD5+"/0"))

	require.NoError(t, fx.svc.UploadChunk(ctx, req))
	exists, err := fx.objects.ObjectExists(ctx, "chunks/"+testMD5+"/0")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUploadChunkStorageFailureLeavesBitUnset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.objects.putErr = fmt.Errorf("bucket on fire")
	err := fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "doc.txt", 0, 10, []byte("hello")))
	require.Error(t, err)

	marked, err := fx.ledger.IsUploaded(ctx, "alice", testMD5, 0)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestStatusProgress(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// 12 MiB at 5 MiB per chunk = 3 chunks.
	totalSize := int64(12 << 20)
	require.NoError(t, fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "doc.txt", 0, totalSize, []byte("a"))))
	require.NoError(t, fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "doc.txt", 2, totalSize, []byte("c"))))

	status, err := fx.svc.Status(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalChunks)
	assert.Equal(t, []int{0, 2}, status.Uploaded)
	assert.InDelta(t, 66.66, status.Progress, 0.01)

	require.NoError(t, fx.svc.UploadChunk(ctx, fx.chunkReq(testMD5, "doc.txt", 1, totalSize, []byte("b"))))
	status, err = fx.svc.Status(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, status.Uploaded)
	assert.InDelta(t, 100.0, status.Progress, 0.01)
}

func TestStatusUnknownFile(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Status(context.Background(), testMD5, "alice")
	assert.ErrorIs(t, err, models.ErrFileNotFound)
}

func uploadAll(t *testing.T, fx *fixture, md5, name string, totalSize int64, parts [][]byte) {
	t.Helper()
	for i, data := range parts {
		require.NoError(t, fx.svc.UploadChunk(context.Background(),
			fx.chunkReq(md5, name, i, totalSize, data)))
	}
}

func TestMergeComposesAndEnqueues(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	parts := [][]byte{[]byte("part-zero-"), []byte("part-one--"), []byte("part-two")}
	total := int64(11 << 20) // 3 chunks expected
	uploadAll(t, fx, testMD5, "doc.txt", total, parts)

	url, err := fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	require.NoError(t, err)
	assert.Contains(t, url, "merged/doc.txt")

	// Composed object is the in-order concatenation of the chunks.
	rc, err := fx.objects.GetObject(ctx, "merged/doc.txt")
	require.NoError(t, err)
	merged, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "part-zero-part-one--part-two", string(merged))

	// Source chunks were deleted, bitmap cleared, status flipped.
	for i := range parts {
		exists, _ := fx.objects.ObjectExists(ctx, fmt.Sprintf("chunks/%s/%d", testMD5, i))
		assert.False(t, exists)
	}
	uploaded, err := fx.ledger.ListUploaded(ctx, "alice", testMD5, 3)
	require.NoError(t, err)
	assert.Empty(t, uploaded)

	file, err := fx.store.GetFile(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.True(t, file.IsMerged())
	require.NotNil(t, file.MergedAt)

	require.Len(t, fx.queue.tasks, 1)
	task := fx.queue.tasks[0]
	assert.Equal(t, testMD5, task.FileMD5)
	assert.Equal(t, url, task.FilePath)
	assert.Equal(t, "doc.txt", task.FileName)
	assert.Equal(t, "alice", task.UserID)
	assert.Equal(t, "engineering", task.OrgTag)
}

func TestMergeIncompleteChunks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	total := int64(11 << 20) // expects 3 chunks
	uploadAll(t, fx, testMD5, "doc.txt", total, [][]byte{[]byte("a"), []byte("b")})

	_, err := fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	assert.ErrorIs(t, err, models.ErrIncompleteChunks)

	file, err := fx.store.GetFile(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.False(t, file.IsMerged())
}

func TestMergeMissingChunkObject(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	total := int64(6 << 20) // 2 chunks
	uploadAll(t, fx, testMD5, "doc.txt", total, [][]byte{[]byte("a"), []byte("b")})
	require.NoError(t, fx.objects.DeleteObject(ctx, "chunks/"+testMD5+"/1"))

	_, err := fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	assert.ErrorIs(t, err, models.ErrIncompleteChunks)
}

func TestMergeReplayRefused(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	uploadAll(t, fx, testMD5, "doc.txt", 4, [][]byte{[]byte("data")})
	_, err := fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	require.NoError(t, err)

	_, err = fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	assert.ErrorIs(t, err, ErrAlreadyMerged)
	assert.Len(t, fx.queue.tasks, 1)
}

func TestMergeEnqueueFailureRollsBackStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	uploadAll(t, fx, testMD5, "doc.txt", 4, [][]byte{[]byte("data")})
	fx.queue.err = fmt.Errorf("broker down")

	_, err := fx.svc.Merge(ctx, testMD5, "doc.txt", "alice")
	require.Error(t, err)

	file, err := fx.store.GetFile(ctx, testMD5, "alice")
	require.NoError(t, err)
	assert.False(t, file.IsMerged(), "status change must roll back with the failed enqueue")
}

func TestTotalChunks(t *testing.T) {
	assert.Equal(t, 1, TotalChunks(1))
	assert.Equal(t, 1, TotalChunks(ChunkSize))
	assert.Equal(t, 2, TotalChunks(ChunkSize+1))
	assert.Equal(t, 3, TotalChunks(12<<20))
}
