package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehub/scribe/pkg/queue"
	"github.com/scribehub/scribe/pkg/search"
	"github.com/scribehub/scribe/pkg/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }

type fakeIndexer struct {
	docs []search.Document
	err  error
}

func (f *fakeIndexer) BulkIndex(_ context.Context, docs []search.Document) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, docs...)
	return nil
}

func newWorkerFixture(t *testing.T) (*Worker, *store.GORMStore, *fakeEmbedder, *fakeIndexer) {
	t.Helper()
	st, err := store.New(store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)

	embedder := &fakeEmbedder{}
	indexer := &fakeIndexer{}
	w := NewWorker(st, embedder, indexer, Config{PassageSize: 50})
	return w, st, embedder, indexer
}

func writeTask(t *testing.T, content, fileName string) *queue.ProcessTask {
	t.Helper()
	path := filepath.Join(t.TempDir(), fileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return &queue.ProcessTask{
		FileMD5:  "0123456789abcdef0123456789abcdef",
		FilePath: path,
		FileName: fileName,
		UserID:   "alice",
		OrgTag:   "engineering",
		IsPublic: false,
	}
}

func TestHandlePersistsAndIndexesPassages(t *testing.T) {
	w, st, _, indexer := newWorkerFixture(t)
	ctx := context.Background()

	content := "First paragraph with several words inside it.\n\nSecond paragraph also has a number of words."
	task := writeTask(t, content, "doc.txt")

	require.NoError(t, w.Handle(ctx, task))

	passages, err := st.ListPassages(ctx, task.FileMD5)
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	// Chunk ids are sequential from 1 and carry the task's permission fields.
	for i, p := range passages {
		assert.Equal(t, i+1, p.ChunkID)
		assert.Equal(t, "alice", p.UserID)
		assert.Equal(t, "engineering", p.OrgTag)
		assert.Equal(t, "test-model", p.ModelVersion)
		assert.False(t, p.IsPublic)
	}

	require.Len(t, indexer.docs, len(passages))
	for i, doc := range indexer.docs {
		assert.Equal(t, search.DocumentID(task.FileMD5, passages[i].ChunkID), doc.ID)
		assert.Equal(t, passages[i].Content, doc.TextContent)
		assert.NotEmpty(t, doc.Vector)
	}
}

func TestHandleRedeliveryOverwrites(t *testing.T) {
	w, st, _, indexer := newWorkerFixture(t)
	ctx := context.Background()

	task := writeTask(t, "Some document text for the first run.", "doc.txt")
	require.NoError(t, w.Handle(ctx, task))

	first, err := st.ListPassages(ctx, task.FileMD5)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A redelivered task replaces its previous rows: same passage count,
	// same chunk ids restarting at 1.
	require.NoError(t, w.Handle(ctx, task))
	all, err := st.ListPassages(ctx, task.FileMD5)
	require.NoError(t, err)
	require.Len(t, all, len(first))
	assert.Equal(t, 1, all[0].ChunkID)
	for i, p := range all {
		assert.Equal(t, first[i].ChunkID, p.ChunkID)
	}

	// Both runs indexed under the same deterministic ids, so the corpus
	// holds one document per passage, not one per delivery.
	ids := make(map[string]struct{})
	for _, doc := range indexer.docs {
		ids[doc.ID] = struct{}{}
	}
	assert.Len(t, ids, len(all))
}

func TestHandleMemoryPressure(t *testing.T) {
	w, _, _, _ := newWorkerFixture(t)
	w.gate = NewMemoryGate(1000)
	w.gate.readUsage = func() uint64 { return 999 }

	task := writeTask(t, "text", "doc.txt")
	err := w.Handle(context.Background(), task)
	assert.ErrorIs(t, err, ErrMemoryPressure)
}

func TestHandleEmbedFailurePropagates(t *testing.T) {
	w, _, embedder, _ := newWorkerFixture(t)
	embedder.err = fmt.Errorf("embedding service down")

	task := writeTask(t, "Some text to parse.", "doc.txt")
	err := w.Handle(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
}

func TestHandleIndexFailurePropagates(t *testing.T) {
	w, _, _, indexer := newWorkerFixture(t)
	indexer.err = fmt.Errorf("bulk rejected")

	task := writeTask(t, "Some text to parse.", "doc.txt")
	err := w.Handle(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk rejected")
}

func TestHandleMissingSource(t *testing.T) {
	w, _, _, _ := newWorkerFixture(t)
	task := &queue.ProcessTask{
		FileMD5:  "0123456789abcdef0123456789abcdef",
		FilePath: filepath.Join(t.TempDir(), "absent.txt"),
		FileName: "absent.txt",
		UserID:   "alice",
	}
	assert.Error(t, w.Handle(context.Background(), task))
}

func TestHandleEmptyDocumentIsNoOp(t *testing.T) {
	w, _, embedder, indexer := newWorkerFixture(t)

	task := writeTask(t, "   \n\n  ", "doc.txt")
	require.NoError(t, w.Handle(context.Background(), task))
	assert.Zero(t, embedder.calls)
	assert.Empty(t, indexer.docs)
}

func TestHandleHTMLDocument(t *testing.T) {
	w, st, _, _ := newWorkerFixture(t)
	ctx := context.Background()

	task := writeTask(t, "<html><body><p>Visible text.</p><script>hidden()</script></body></html>", "page.html")
	require.NoError(t, w.Handle(ctx, task))

	passages, err := st.ListPassages(ctx, task.FileMD5)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "Visible text.", passages[0].Content)
	assert.NotContains(t, strings.Join([]string{passages[0].Content}, ""), "hidden")
}
