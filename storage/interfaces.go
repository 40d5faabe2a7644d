package storage

import (
	"context"

	"github.com/poiesic/docseek/core"
)

type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Posting is one document's frequency for a term.
type Posting struct {
	DocumentID core.ID
	Frequency  int
}

type TermIndexRepository interface {
	Repository
	// ReplaceDocument atomically replaces the stored text and the complete
	// term set of doc.ID. Postings of terms that no longer occur are removed
	// in the same transaction.
	ReplaceDocument(ctx context.Context, doc *core.DocumentText) error

	// DeleteDocument removes a document's text and postings.
	// Returns ErrNotFound if the document was never indexed.
	DeleteDocument(ctx context.Context, id core.ID) error

	// GetDocument retrieves the indexed form of a document.
	// Returns ErrNotFound if the document was never indexed.
	GetDocument(ctx context.Context, id core.ID) (*core.DocumentText, error)

	// GetTermFrequencies returns the document's term map, or an empty map if
	// the document was never indexed.
	GetTermFrequencies(ctx context.Context, id core.ID) (map[string]int, error)

	// GetStoredText returns the stored text and true, or "" and false if the
	// document was never indexed.
	GetStoredText(ctx context.Context, id core.ID) (string, bool, error)

	// FindPostings returns every document containing the term, ordered by
	// ascending document ID.
	FindPostings(ctx context.Context, term string) ([]Posting, error)

	// ListDocumentIDs returns the IDs of all indexed documents in ascending order.
	ListDocumentIDs(ctx context.Context) ([]core.ID, error)
}

type EmbeddingRepository interface {
	Repository
	// PutEmbedding stores or replaces the cached embedding of a document.
	PutEmbedding(ctx context.Context, embedding *core.Embedding) error

	// GetEmbedding returns the cached embedding of a document.
	// Returns ErrNotFound if none is cached and ErrSerializationFailed if the
	// cached value cannot be decoded.
	GetEmbedding(ctx context.Context, id core.ID) (*core.Embedding, error)

	// DeleteEmbedding drops the cached embedding. Missing entries are not an error.
	DeleteEmbedding(ctx context.Context, id core.ID) error
}

type CheckpointRepository interface {
	// SaveCheckpoint persists the checkpoint for its processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
