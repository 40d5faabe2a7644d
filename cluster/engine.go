package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/keylock"
	"github.com/poiesic/docseek/storage"
)

// MinDocuments is the number of eligible documents a user needs before a
// clustering run does anything.
const MinDocuments = 5

// Store is the part of metadata.Store the engine uses.
type Store interface {
	AccessibleDocuments(ctx context.Context, userID core.ID) ([]*core.DocumentMeta, error)
	ReplaceClusters(ctx context.Context, userID core.ID, clusters []*core.Cluster) error
	GetClusters(ctx context.Context, userID core.ID) ([]*core.Cluster, error)
}

// Engine creates and persists document clusters per user.
type Engine struct {
	store    Store
	termRepo storage.TermIndexRepository
	external Clusterer
	locks    *keylock.Locker[core.ID]
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithExternalClusterer delegates clustering to c, falling back to term
// overlap whenever it fails.
func WithExternalClusterer(c Clusterer) Option {
	return func(e *Engine) error {
		e.external = c
		return nil
	}
}

// WithClock sets the time source used for cluster creation times.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		e.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a clustering engine.
func NewEngine(store Store, termRepo storage.TermIndexRepository, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if termRepo == nil {
		return nil, ErrTermRepositoryRequired
	}

	e := &Engine{
		store:    store,
		termRepo: termRepo,
		locks:    keylock.New[core.ID](),
		now:      time.Now,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "cluster-engine")

	return e, nil
}

// CreateClusters recomputes the clusters of userID and replaces the stored
// ones. With fewer than MinDocuments eligible documents it returns an empty
// result and leaves stored clusters untouched. A concurrent run for the same
// user waits for the first to finish.
func (e *Engine) CreateClusters(ctx context.Context, userID core.ID) ([]*core.Cluster, error) {
	if userID == 0 {
		return nil, ErrUserRequired
	}

	unlock, err := e.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	docs, err := e.eligible(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(docs) < MinDocuments {
		e.logger.Info("not enough documents to cluster", "user", userID, "documents", len(docs), "required", MinDocuments)
		return []*core.Cluster{}, nil
	}

	clusters, err := e.compute(ctx, docs)
	if err != nil {
		return nil, err
	}
	if clusters == nil {
		clusters = []*core.Cluster{}
	}

	createdAt := e.now().UTC()
	for i, c := range clusters {
		c.ID = uuid.NewString()
		c.UserID = userID
		c.CreatedAt = createdAt
		c.Name = fmt.Sprintf("Document Cluster %d", i+1)
		c.Description = fmt.Sprintf("Group of %d similar documents", len(c.Members))
	}

	if err := e.store.ReplaceClusters(ctx, userID, clusters); err != nil {
		return nil, core.WrapOp("replace-clusters", userID, err)
	}

	e.logger.Info("clusters created", "user", userID, "documents", len(docs), "clusters", len(clusters))
	return clusters, nil
}

// GetClusters returns the stored clusters of userID.
func (e *Engine) GetClusters(ctx context.Context, userID core.ID) ([]*core.Cluster, error) {
	clusters, err := e.store.GetClusters(ctx, userID)
	if err != nil {
		return nil, core.WrapOp("get-clusters", userID, err)
	}
	return clusters, nil
}

// eligible loads the indexed documents userID can read that have stored text.
func (e *Engine) eligible(ctx context.Context, userID core.ID) ([]Document, error) {
	metas, err := e.store.AccessibleDocuments(ctx, userID)
	if err != nil {
		return nil, core.WrapOp("accessible-documents", userID, err)
	}

	docs := make([]Document, 0, len(metas))
	for _, meta := range metas {
		doc, err := e.termRepo.GetDocument(ctx, meta.ID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Debug("skipping document without stored text", "document", meta.ID)
			continue
		}
		if err != nil {
			return nil, core.WrapOp("load-document", meta.ID, err)
		}
		docs = append(docs, Document{ID: doc.ID, Text: doc.Text, Terms: doc.Terms})
	}
	return docs, nil
}

func (e *Engine) compute(ctx context.Context, docs []Document) ([]*core.Cluster, error) {
	if e.external == nil {
		return GroupByOverlap(docs), nil
	}

	clusters, err := e.external.Cluster(ctx, docs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("external clusterer failed, using term overlap", "err", err)
		return GroupByOverlap(docs), nil
	}
	return e.keepEligible(clusters, docs), nil
}

// keepEligible drops members outside docs and the clusters left too small.
func (e *Engine) keepEligible(clusters []*core.Cluster, docs []Document) []*core.Cluster {
	known := make(map[core.ID]Document, len(docs))
	for _, doc := range docs {
		known[doc.ID] = doc
	}

	kept := make([]*core.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c == nil {
			continue
		}
		seen := make(map[core.ID]struct{}, len(c.Members))
		members := c.Members[:0]
		for _, m := range c.Members {
			if _, ok := known[m.DocumentID]; !ok {
				e.logger.Debug("dropping unknown cluster member", "document", m.DocumentID)
				continue
			}
			if _, dup := seen[m.DocumentID]; dup {
				continue
			}
			seen[m.DocumentID] = struct{}{}
			members = append(members, m)
		}
		if len(members) < core.MinClusterSize {
			continue
		}
		c.Members = members

		if len(c.Keywords) == 0 {
			grouped := make([]Document, len(members))
			for i, m := range members {
				grouped[i] = known[m.DocumentID]
			}
			c.Keywords = TopKeywords(grouped, KeywordCount)
		} else if len(c.Keywords) > KeywordCount {
			c.Keywords = c.Keywords[:KeywordCount]
		}
		kept = append(kept, c)
	}
	return kept
}
