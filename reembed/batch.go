package reembed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docseek/ai"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

// BatchProcessor generates and caches embeddings for batches of documents.
type BatchProcessor struct {
	repo           storage.EmbeddingRepository
	embedder       ai.Embedder
	model          string
	force          bool
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// model: name recorded on every generated embedding
// force: regenerate embeddings that are already fresh
// maxRetries: maximum number of attempts for each embedding API call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.EmbeddingRepository, embedder ai.Embedder, model string, force bool, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		model:          model,
		force:          force,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the documents of a batch whose cached embedding is missing,
// stale or unreadable, and returns how many it embedded. Vectors are
// normalized before they are stored.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.DocumentText) (int, error) {
	pending, err := bp.pending(ctx, docs)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, doc := range pending {
		texts[i] = core.EmbeddingChunk(doc.Text)
	}

	var vectors [][]float32
	err = RetryWithBackoff(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(pending), len(vectors))
	}

	now := time.Now().UTC()
	for i, doc := range pending {
		embedding := &core.Embedding{
			DocumentID: doc.ID,
			Vector:     NormalizeVector(vectors[i]),
			SourceHash: doc.ContentHash,
			Model:      bp.model,
			CreatedAt:  now,
		}
		if err := bp.repo.PutEmbedding(ctx, embedding); err != nil {
			return i, core.WrapOp("put-embedding", doc.ID, err)
		}
	}

	return len(pending), nil
}

func (bp *BatchProcessor) pending(ctx context.Context, docs []*core.DocumentText) ([]*core.DocumentText, error) {
	if bp.force {
		return docs, nil
	}

	pending := make([]*core.DocumentText, 0, len(docs))
	for _, doc := range docs {
		cached, err := bp.repo.GetEmbedding(ctx, doc.ID)
		switch {
		case err == nil && cached.FreshFor(doc):
			continue
		case err == nil, errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrSerializationFailed):
			pending = append(pending, doc)
		default:
			return nil, core.WrapOp("get-embedding", doc.ID, err)
		}
	}
	return pending, nil
}
