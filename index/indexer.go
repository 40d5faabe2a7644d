package index

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/keylock"
	"github.com/poiesic/docseek/storage"
	"github.com/poiesic/docseek/text"
)

// Marker records that a document has been indexed. metadata.Store satisfies it.
type Marker interface {
	MarkIndexed(ctx context.Context, id core.ID, at time.Time) error
}

// Task is one document to index.
type Task struct {
	DocumentID core.ID
	Text       string
	MimeType   string // hint only; text is already extracted
}

// Result reports the outcome of one submitted Task.
type Result struct {
	DocumentID core.ID
	Terms      int  // distinct stems stored
	Skipped    bool // no content to index
	Err        error
}

// Indexer builds and maintains the term index.
type Indexer struct {
	termRepo      storage.TermIndexRepository
	embeddingRepo storage.EmbeddingRepository
	marker        Marker
	pool          *ants.Pool
	locks         *keylock.Locker[core.ID]
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithPoolSize sets the worker pool size for Submit.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		ix.pool = pool
		return nil
	}
}

// WithEmbeddingRepository lets RemoveDocument drop cached embeddings.
func WithEmbeddingRepository(repo storage.EmbeddingRepository) Option {
	return func(ix *Indexer) error {
		ix.embeddingRepo = repo
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for IndexedAt.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) error {
		ix.now = now
		return nil
	}
}

// NewIndexer creates a new Indexer.
func NewIndexer(termRepo storage.TermIndexRepository, marker Marker, opts ...Option) (*Indexer, error) {
	if termRepo == nil {
		return nil, ErrTermRepositoryRequired
	}
	if marker == nil {
		return nil, ErrMarkerRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		termRepo: termRepo,
		marker:   marker,
		pool:     pool,
		locks:    keylock.New[core.ID](),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(ix); optErr != nil {
			ix.Release()
			return nil, optErr
		}
	}
	ix.logger = ix.logger.With("component", "indexer")

	return ix, nil
}

// IndexDocument indexes one document synchronously. Re-indexing replaces the
// previous terms and text; indexing the same text twice is a no-op in effect.
func (ix *Indexer) IndexDocument(ctx context.Context, task Task) error {
	_, err := ix.index(ctx, task)
	return err
}

func (ix *Indexer) index(ctx context.Context, task Task) (Result, error) {
	res := Result{DocumentID: task.DocumentID}

	if strings.TrimSpace(task.Text) == "" {
		ix.logger.Info("no content to index", "document", task.DocumentID)
		res.Skipped = true
		return res, nil
	}
	if task.DocumentID == 0 {
		return res, core.WrapOp("index", nil, core.ErrZeroID)
	}

	unlock, err := ix.locks.Lock(ctx, task.DocumentID)
	if err != nil {
		return res, core.WrapOp("index", task.DocumentID, err)
	}
	defer unlock()

	now := ix.now()
	doc := &core.DocumentText{
		ID:          task.DocumentID,
		Text:        task.Text,
		Terms:       text.TermFrequencies(task.Text),
		ContentHash: core.ContentHash(task.Text),
		IndexedAt:   now,
	}
	if err := ix.termRepo.ReplaceDocument(ctx, doc); err != nil {
		return res, core.WrapOp("index", task.DocumentID, err)
	}
	if err := ix.marker.MarkIndexed(ctx, task.DocumentID, now); err != nil {
		return res, core.WrapOp("mark-indexed", task.DocumentID, err)
	}

	res.Terms = len(doc.Terms)
	ix.logger.Debug("indexed document", "document", task.DocumentID, "terms", res.Terms, "mime_type", task.MimeType)
	return res, nil
}

// Submit queues tasks on the worker pool. The returned channel receives one
// Result per task and is closed once all of them have finished.
func (ix *Indexer) Submit(ctx context.Context, tasks ...Task) <-chan Result {
	results := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		err := ix.pool.Submit(func() {
			defer wg.Done()
			res, err := ix.index(ctx, task)
			res.Err = err
			if err != nil {
				ix.logger.Error("error indexing document", "document", task.DocumentID, "err", err)
			}
			results <- res
		})
		if err != nil {
			wg.Done()
			results <- Result{DocumentID: task.DocumentID, Err: core.WrapOp("index", task.DocumentID, err)}
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// RemoveDocument deletes a document's stored text, postings and cached
// embedding. Removing a document that was never indexed is not an error.
func (ix *Indexer) RemoveDocument(ctx context.Context, id core.ID) error {
	unlock, err := ix.locks.Lock(ctx, id)
	if err != nil {
		return core.WrapOp("remove", id, err)
	}
	defer unlock()

	if err := ix.termRepo.DeleteDocument(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return core.WrapOp("remove", id, err)
	}
	if ix.embeddingRepo != nil {
		if err := ix.embeddingRepo.DeleteEmbedding(ctx, id); err != nil {
			return core.WrapOp("remove-embedding", id, err)
		}
	}
	ix.logger.Debug("removed document", "document", id)
	return nil
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}
