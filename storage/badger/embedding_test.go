package badger

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRepository_PutGet(t *testing.T) {
	_, repo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	e := &core.Embedding{
		DocumentID: 4,
		Vector:     []float32{1, 0, 0},
		SourceHash: core.ContentHash("doc four"),
		Model:      "test-model",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.PutEmbedding(ctx, e))

	got, err := repo.GetEmbedding(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	// Replacing overwrites the cached vector.
	e2 := *e
	e2.Vector = []float32{0, 1, 0}
	require.NoError(t, repo.PutEmbedding(ctx, &e2))
	got, err = repo.GetEmbedding(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
}

func TestEmbeddingRepository_Missing(t *testing.T) {
	_, repo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = repo.GetEmbedding(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmbeddingRepository_Invalid(t *testing.T) {
	_, repo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	err = repo.PutEmbedding(context.Background(), &core.Embedding{DocumentID: 1})
	assert.ErrorIs(t, err, core.ErrEmptyVector)
}

func TestEmbeddingRepository_Corrupt(t *testing.T) {
	_, repo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeEmbeddingKey(8), []byte("\x08\xff\xff\x03garbage")); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	_, err = repo.GetEmbedding(context.Background(), 8)
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)
}

func TestEmbeddingRepository_Delete(t *testing.T) {
	_, repo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, repo.PutEmbedding(ctx, &core.Embedding{DocumentID: 2, Vector: []float32{1}}))
	require.NoError(t, repo.DeleteEmbedding(ctx, 2))
	require.NoError(t, repo.DeleteEmbedding(ctx, 2), "deleting a missing entry is not an error")

	_, err = repo.GetEmbedding(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
