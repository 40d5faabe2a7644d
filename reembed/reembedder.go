// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docseek/ai"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

// ProcessorType identifies reembed runs in the checkpoint store.
const ProcessorType = "reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Force regenerates embeddings that are already fresh
	Force bool

	// Resume continues after the last checkpointed document, if any
	Resume bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Resume:         true,
	}
}

// Stats summarizes a run.
type Stats struct {
	Documents int // documents visited
	Embedded  int // embeddings generated
	Fresh     int // documents skipped because their embedding was fresh
	Elapsed   time.Duration
}

// Reembedder orchestrates embedding generation for every indexed document.
type Reembedder struct {
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *DocumentIterator
	logger      *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithCheckpoints persists progress after each batch so an interrupted run
// can resume.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(r *Reembedder) {
		r.checkpoints = repo
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReembedder creates a new reembedder.
// model: embedding model name recorded on cached embeddings
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(termRepo storage.TermIndexRepository, embeddingRepo storage.EmbeddingRepository, embedder ai.Embedder, model string, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	r := &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(embeddingRepo, embedder, model, config.Force, config.MaxRetries, config.RetryDelay),
		iterator:  NewDocumentIterator(termRepo, config.BatchSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("processor", ProcessorType)

	return r, nil
}

// Run embeds every indexed document that needs it. Progress is reported to
// the configured writer.
func (r *Reembedder) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	after, err := r.resumePoint(ctx)
	if err != nil {
		return stats, err
	}

	remaining, err := r.iterator.Remaining(ctx, after)
	if err != nil {
		return stats, fmt.Errorf("failed to list documents: %w", err)
	}

	total := len(remaining)
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents to embed (0 documents)\n")
		return stats, r.clearCheckpoint(ctx)
	}

	if after > 0 {
		fmt.Fprintf(r.progress, "Resuming after document %d\n", after)
	}
	fmt.Fprintf(r.progress, "Starting embedding of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, after, func(docs []*core.DocumentText) error {
		embedded, err := r.processor.Process(ctx, docs)
		stats.Embedded += embedded
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		stats.Documents += len(docs)
		stats.Fresh += len(docs) - embedded
		tracker.Update(stats.Documents)

		return r.saveCheckpoint(ctx, docs[len(docs)-1].ID)
	})
	if err != nil {
		r.logger.Error("reembed run stopped", "documents", stats.Documents, "err", err)
		return stats, err
	}

	tracker.Finish()
	if err := r.clearCheckpoint(ctx); err != nil {
		return stats, err
	}

	stats.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Embedding complete. Processed %d documents (%d embedded, %d already fresh) in %v\n",
		stats.Documents, stats.Embedded, stats.Fresh, stats.Elapsed.Round(time.Millisecond))

	return stats, nil
}

func (r *Reembedder) resumePoint(ctx context.Context) (core.ID, error) {
	if r.checkpoints == nil || !r.config.Resume || r.config.Force {
		return 0, nil
	}
	checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return 0, nil
	}
	return checkpoint.LastID, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, last core.ID) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: ProcessorType,
		LastID:        last,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) clearCheckpoint(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.ClearCheckpoint(ctx, ProcessorType); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
