package ai

import "context"

// Embedder turns text into vectors for semantic ranking. Implementations are
// called from concurrent searches and must be safe for that.
type Embedder interface {
	// EmbedText returns the vector of one text.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts returns one vector per input, in input order. A failure
	// fails the whole batch.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider owns an embedding service and the connection behind it.
type AIProvider interface {
	// Embedder returns the shared, concurrency-safe embedder.
	Embedder() Embedder

	// Model names the embedding model. Cached vectors record it so a model
	// change can be detected.
	Model() string

	// Close releases the provider. Its embedder must not be used afterwards.
	Close() error
}
