package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docseek/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		Resume:         true,
	}
}

func TestReembedder_Run(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 10)
	ctx := context.Background()

	var buf bytes.Buffer
	embedder := &mockEmbedder{}
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "test-model", testConfig(), &buf,
		WithCheckpoints(db.checkpoints))
	require.NoError(t, err)

	stats, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Documents)
	assert.Equal(t, 10, stats.Embedded)
	assert.Zero(t, stats.Fresh)
	assert.Len(t, embedder.batches, 4)

	for i := 1; i <= 10; i++ {
		e, err := db.embeddingRepo.GetEmbedding(ctx, core.ID(i))
		require.NoError(t, err, "document %d should have an embedding", i)
		assert.InDelta(t, 1.0, magnitude(e.Vector), 1e-6, "vector should be normalized")
		assert.Equal(t, "test-model", e.Model)
	}

	output := buf.String()
	assert.Contains(t, output, "Starting embedding of 10 documents (batch size: 3)")
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Processed 10 documents (10 embedded, 0 already fresh)")

	checkpoint, err := db.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "checkpoint should be cleared on completion")
}

func TestReembedder_EmptyIndex(t *testing.T) {
	db := setupTestDB(t)

	var buf bytes.Buffer
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, &mockEmbedder{}, "m", DefaultConfig(), &buf)
	require.NoError(t, err)

	stats, err := reembedder.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Contains(t, buf.String(), "No documents to embed (0 documents)")
}

func TestReembedder_SkipsFresh(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 6)
	ctx := context.Background()

	embedder := &mockEmbedder{}
	first, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", testConfig(), nil)
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)

	// Change one document; only it needs a new embedding.
	db.index(t, 4, "rewritten text for document four")
	embedder.batches = nil

	var buf bytes.Buffer
	second, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", testConfig(), &buf)
	require.NoError(t, err)
	stats, err := second.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Documents)
	assert.Equal(t, 1, stats.Embedded)
	assert.Equal(t, 5, stats.Fresh)
	assert.Equal(t, [][]string{{"rewritten text for document four"}}, embedder.batches)
	assert.Contains(t, buf.String(), "(1 embedded, 5 already fresh)")
}

func TestReembedder_Force(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 4)
	ctx := context.Background()

	embedder := &mockEmbedder{}
	first, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", testConfig(), nil)
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Force = true
	forced, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", cfg, nil)
	require.NoError(t, err)
	stats, err := forced.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Embedded)
	assert.Zero(t, stats.Fresh)
}

func TestReembedder_ResumesFromCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 9)
	ctx := context.Background()

	require.NoError(t, db.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: ProcessorType,
		LastID:        6,
		UpdatedAt:     time.Now(),
	}))

	var buf bytes.Buffer
	embedder := &mockEmbedder{}
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", testConfig(), &buf,
		WithCheckpoints(db.checkpoints))
	require.NoError(t, err)

	stats, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, [][]string{{"document number 7", "document number 8", "document number 9"}}, embedder.batches)
	assert.Contains(t, buf.String(), "Resuming after document 6")

	_, err = db.embeddingRepo.GetEmbedding(ctx, 1)
	assert.Error(t, err, "documents before the checkpoint are not revisited")

	checkpoint, err := db.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	require.NoError(t, err)
	assert.Nil(t, checkpoint)
}

func TestReembedder_ResumeDisabled(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 5)
	ctx := context.Background()

	require.NoError(t, db.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: ProcessorType, LastID: 4, UpdatedAt: time.Now(),
	}))

	cfg := testConfig()
	cfg.Resume = false
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, &mockEmbedder{}, "m", cfg, nil,
		WithCheckpoints(db.checkpoints))
	require.NoError(t, err)

	stats, err := reembedder.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Documents)
}

func TestReembedder_CheckpointKeptOnFailure(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 9)
	ctx := context.Background()

	calls := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("provider down")
			}
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0}
			}
			return out, nil
		},
	}
	cfg := testConfig()
	cfg.MaxRetries = 1
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", cfg, nil,
		WithCheckpoints(db.checkpoints))
	require.NoError(t, err)

	stats, err := reembedder.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch")
	assert.Equal(t, 3, stats.Documents)

	checkpoint, err := db.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.Equal(t, core.ID(3), checkpoint.LastID)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	db := setupTestDB(t)
	db.indexMany(t, 9)

	ctx, cancel := context.WithCancel(context.Background())
	embedder := &mockEmbedder{
		embedTextsFunc: func(_ context.Context, texts []string) ([][]float32, error) {
			cancel()
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1}
			}
			return out, nil
		},
	}
	reembedder, err := NewReembedder(db.termRepo, db.embeddingRepo, embedder, "m", testConfig(), nil)
	require.NoError(t, err)

	stats, err := reembedder.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, stats.Documents)
}

func TestNewReembedder_RequiresEmbedder(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewReembedder(db.termRepo, db.embeddingRepo, nil, "m", nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 100, config.ReportInterval)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 1*time.Second, config.RetryDelay)
	assert.False(t, config.Force)
	assert.True(t, config.Resume)
}
