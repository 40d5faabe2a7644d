package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) (*EmbeddingRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &EmbeddingRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *EmbeddingRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutEmbedding stores or replaces the cached embedding of a document.
func (r *EmbeddingRepository) PutEmbedding(ctx context.Context, embedding *core.Embedding) error {
	if err := core.ValidateEmbedding(embedding); err != nil {
		return err
	}
	value, err := storage.MarshalEmbedding(embedding)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeEmbeddingKey(embedding.DocumentID), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetEmbedding returns the cached embedding of a document.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, id core.ID) (*core.Embedding, error) {
	var result *core.Embedding
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeEmbeddingKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalEmbedding(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteEmbedding drops the cached embedding of a document.
func (r *EmbeddingRepository) DeleteEmbedding(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeEmbeddingKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
