package reembed

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	batches        [][]string
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.embedTextFunc != nil {
		return m.embedTextFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, texts)
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func (db *testDB) docs(t *testing.T, ids ...core.ID) []*core.DocumentText {
	t.Helper()
	docs := make([]*core.DocumentText, len(ids))
	for i, id := range ids {
		doc, err := db.termRepo.GetDocument(context.Background(), id)
		require.NoError(t, err)
		docs[i] = doc
	}
	return docs
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestBatchProcessor_Process(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "first document")
	db.index(t, 2, "second document")
	ctx := context.Background()

	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "test-model", false, 3, 10*time.Millisecond)

	n, err := processor.Process(ctx, db.docs(t, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]string{{"first document", "second document"}}, embedder.batches)

	for _, id := range []core.ID{1, 2} {
		e, err := db.embeddingRepo.GetEmbedding(ctx, id)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, magnitude(e.Vector), 1e-6, "vector should be normalized")
		assert.Equal(t, "test-model", e.Model)
		assert.False(t, e.CreatedAt.IsZero())
	}

	e, err := db.embeddingRepo.GetEmbedding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.ContentHash("first document"), e.SourceHash)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 3, 10*time.Millisecond)

	n, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, embedder.batches, "should not call the embedder")
}

func TestBatchProcessor_SkipsFresh(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "fresh")
	db.index(t, 2, "stale")
	db.index(t, 3, "missing")
	ctx := context.Background()

	require.NoError(t, db.embeddingRepo.PutEmbedding(ctx, &core.Embedding{
		DocumentID: 1, Vector: []float32{1}, SourceHash: core.ContentHash("fresh"),
	}))
	require.NoError(t, db.embeddingRepo.PutEmbedding(ctx, &core.Embedding{
		DocumentID: 2, Vector: []float32{1}, SourceHash: core.ContentHash("older text"),
	}))

	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 3, time.Millisecond)

	n, err := processor.Process(ctx, db.docs(t, 1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]string{{"stale", "missing"}}, embedder.batches)

	// All fresh now: nothing to do.
	n, err = processor.Process(ctx, db.docs(t, 1, 2, 3))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, embedder.batches, 1)
}

func TestBatchProcessor_Force(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "fresh")
	ctx := context.Background()
	require.NoError(t, db.embeddingRepo.PutEmbedding(ctx, &core.Embedding{
		DocumentID: 1, Vector: []float32{1}, SourceHash: core.ContentHash("fresh"),
	}))

	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", true, 3, time.Millisecond)

	n, err := processor.Process(ctx, db.docs(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := db.embeddingRepo.GetEmbedding(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, e.Vector, 3)
}

func TestBatchProcessor_TruncatesLongText(t *testing.T) {
	db := setupTestDB(t)
	long := make([]rune, core.MaxEmbeddingChunk+500)
	for i := range long {
		long[i] = 'é'
	}
	db.index(t, 1, string(long))

	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), db.docs(t, 1))
	require.NoError(t, err)
	require.Len(t, embedder.batches, 1)
	assert.Len(t, []rune(embedder.batches[0][0]), core.MaxEmbeddingChunk)
}

func TestBatchProcessor_RetryOnFailure(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "retry me")

	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("temporary failure")
			}
			return [][]float32{{3, 4}}, nil
		},
	}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 5, time.Millisecond)

	n, err := processor.Process(context.Background(), db.docs(t, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, attempts)

	e, err := db.embeddingRepo.GetEmbedding(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, e.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, e.Vector[1], 1e-6)
}

func TestBatchProcessor_MaxRetriesExceeded(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "never works")

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("persistent failure")
		},
	}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 2, time.Millisecond)

	_, err := processor.Process(context.Background(), db.docs(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")

	_, err = db.embeddingRepo.GetEmbedding(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	db := setupTestDB(t)
	db.index(t, 1, "one")
	db.index(t, 2, "two")

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1}}, nil
		},
	}
	processor := NewBatchProcessor(db.embeddingRepo, embedder, "m", false, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), db.docs(t, 1, 2))
	assert.ErrorIs(t, err, ErrEmbeddingCountMismatch)
}
