package ai

import "errors"

var (
	// ErrEmbedderRequired is returned when a guard is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyEmbedding is returned when a provider answers with no vector.
	ErrEmptyEmbedding = errors.New("provider returned an empty embedding")

	// ErrCircuitOpen is returned without calling the provider while the
	// breaker is open after repeated failures.
	ErrCircuitOpen = errors.New("embedding provider circuit open")
)
