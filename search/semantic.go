package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/poiesic/docseek/ai"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/metadata"
	"github.com/poiesic/docseek/storage"
	"github.com/poiesic/docseek/text"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageSize is the page size used when Options.PageSize is not set.
	DefaultPageSize = 20
	// CandidatePoolSize bounds how many recently updated documents are scored
	// by embedding similarity per search.
	CandidatePoolSize = 100
	// SimilarityThreshold is the exclusive lower bound on cosine similarity
	// for a semantic match.
	SimilarityThreshold = 0.7

	defaultGenerationRate  = rate.Limit(5)
	defaultGenerationBurst = 10
)

// Options describes one semantic search request.
type Options struct {
	Query    string
	Page     int // 1-based, defaults to 1
	PageSize int // defaults to DefaultPageSize
	FolderID core.ID
	From     time.Time
	To       time.Time
	MimeType string
	UserID   core.ID
	UseAI    bool
}

func (o Options) withDefaults() Options {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = DefaultPageSize
	}
	return o
}

func (o Options) filter() metadata.Filter {
	return metadata.Filter{
		UserID:   o.UserID,
		FolderID: o.FolderID,
		From:     o.From,
		To:       o.To,
		MimeType: o.MimeType,
	}
}

// Response is one page of search results.
type Response struct {
	Results  []*core.SearchResult
	// Total is exact on the lexical path. On the semantic path it is the
	// size of the candidate pool, which approximates rather than counts the
	// matches above SimilarityThreshold.
	Total     int
	Page      int
	PageSize  int
	Query     string
	MatchType core.MatchType
	// Degraded is set when the embedding provider failed and the results
	// come from the lexical fallback.
	Degraded bool
}

// CandidateSource selects the documents a search may return.
// metadata.Store satisfies it.
type CandidateSource interface {
	Candidates(ctx context.Context, filter metadata.Filter, limit int) ([]*core.DocumentMeta, error)
}

// Semantic ranks candidate documents by embedding similarity to the query
// and falls back to lexical ranking when embeddings are unavailable.
type Semantic struct {
	lexical       *Lexical
	termRepo      storage.TermIndexRepository
	embeddingRepo storage.EmbeddingRepository
	candidates    CandidateSource
	embedder      ai.Embedder
	model         string
	aiEnabled     bool
	poolSize      int
	limiter       *rate.Limiter
	generating    singleflight.Group
	logger        *slog.Logger
}

// Option configures a Semantic searcher.
type Option func(*Semantic) error

// WithEmbedder sets the embedding provider and the model name recorded on
// generated embeddings. Embedders other than *ai.GuardedEmbedder are wrapped
// in one with default settings.
func WithEmbedder(embedder ai.Embedder, model string) Option {
	return func(s *Semantic) error {
		s.embedder = embedder
		s.model = model
		return nil
	}
}

// WithAIEnabled turns the embedding path on or off for every request.
// Default is enabled.
func WithAIEnabled(enabled bool) Option {
	return func(s *Semantic) error {
		s.aiEnabled = enabled
		return nil
	}
}

// WithGenerationRate bounds how fast missing or stale document embeddings
// are generated during searches. Candidates refused by the limiter are
// skipped for that search.
func WithGenerationRate(limit rate.Limit, burst int) Option {
	return func(s *Semantic) error {
		if burst < 0 {
			return fmt.Errorf("generation burst must not be negative: %d", burst)
		}
		s.limiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithCandidatePoolSize sets how many candidates are scored per search.
// Default is CandidatePoolSize.
func WithCandidatePoolSize(n int) Option {
	return func(s *Semantic) error {
		if n <= 0 {
			return fmt.Errorf("candidate pool size must be positive: %d", n)
		}
		s.poolSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Semantic) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSemantic creates a semantic searcher.
func NewSemantic(termRepo storage.TermIndexRepository, embeddingRepo storage.EmbeddingRepository, candidates CandidateSource, opts ...Option) (*Semantic, error) {
	if termRepo == nil {
		return nil, ErrTermRepositoryRequired
	}
	if embeddingRepo == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if candidates == nil {
		return nil, ErrCandidateSourceRequired
	}

	s := &Semantic{
		termRepo:      termRepo,
		embeddingRepo: embeddingRepo,
		candidates:    candidates,
		aiEnabled:     true,
		poolSize:      CandidatePoolSize,
		limiter:       rate.NewLimiter(defaultGenerationRate, defaultGenerationBurst),
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	lexical, err := NewLexical(termRepo, WithLexicalLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.lexical = lexical

	if s.embedder != nil {
		if _, guarded := s.embedder.(*ai.GuardedEmbedder); !guarded {
			g, err := ai.NewGuardedEmbedder(s.embedder, ai.WithGuardLogger(s.logger))
			if err != nil {
				return nil, err
			}
			s.embedder = g
		}
	}
	s.logger = s.logger.With("component", "semantic-search")

	return s, nil
}

// Lexical returns the lexical engine used for fallback.
func (s *Semantic) Lexical() *Lexical {
	return s.lexical
}

// Search runs a search without monitoring.
func (s *Semantic) Search(ctx context.Context, opts Options) (*Response, error) {
	return s.SearchWithMonitor(ctx, opts, &noopMonitor{})
}

// SearchWithMonitor runs a search and reports each stage to monitor.
func (s *Semantic) SearchWithMonitor(ctx context.Context, opts Options, monitor SearchMonitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	opts = opts.withDefaults()
	monitor.Start(opts)

	resp := &Response{
		Results:   []*core.SearchResult{},
		Page:      opts.Page,
		PageSize:  opts.PageSize,
		Query:     opts.Query,
		MatchType: core.MatchTypeLexical,
	}
	if strings.TrimSpace(opts.Query) == "" {
		monitor.Finish(resp)
		return resp, nil
	}

	if !s.aiEnabled || !opts.UseAI {
		if err := s.lexicalPage(ctx, opts, resp, monitor); err != nil {
			return nil, err
		}
		monitor.Finish(resp)
		return resp, nil
	}

	query, err := s.embedQuery(ctx, opts.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("semantic search degraded to lexical", "query", opts.Query, "err", err)
		monitor.Degraded(err)
		resp.Degraded = true
		if err := s.lexicalPage(ctx, opts, resp, monitor); err != nil {
			return nil, err
		}
		monitor.Finish(resp)
		return resp, nil
	}

	if err := s.semanticPage(ctx, opts, query, resp, monitor); err != nil {
		return nil, err
	}
	monitor.Finish(resp)
	return resp, nil
}

func (s *Semantic) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return s.embedder.EmbedText(ctx, query)
}

// lexicalPage fills resp from the full lexical ranking restricted to the
// documents matching the request's filters.
func (s *Semantic) lexicalPage(ctx context.Context, opts Options, resp *Response, monitor SearchMonitor) error {
	docs, err := s.candidates.Candidates(ctx, opts.filter(), 0)
	if err != nil {
		return core.WrapOp("candidates", opts.UserID, err)
	}
	allowed := make(map[core.ID]struct{}, len(docs))
	for _, doc := range docs {
		allowed[doc.ID] = struct{}{}
	}

	ranked, err := s.lexical.rank(ctx, opts.Query, func(id core.ID) bool {
		_, ok := allowed[id]
		return ok
	})
	if err != nil {
		return err
	}
	monitor.AfterLexicalRanking(scoredIDs(ranked))

	results, err := s.lexical.results(ctx, opts.Query, paginate(ranked, opts.Page, opts.PageSize))
	if err != nil {
		return err
	}
	resp.Results = results
	resp.Total = len(ranked)
	resp.MatchType = core.MatchTypeLexical
	return nil
}

func (s *Semantic) semanticPage(ctx context.Context, opts Options, query []float32, resp *Response, monitor SearchMonitor) error {
	docs, err := s.candidates.Candidates(ctx, opts.filter(), s.poolSize)
	if err != nil {
		return core.WrapOp("candidates", opts.UserID, err)
	}
	ids := make([]core.ID, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	monitor.AfterCandidateSelection(ids)

	texts := make(map[core.ID]string)
	var hits []scored
	for _, meta := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := s.termRepo.GetDocument(ctx, meta.ID)
		if errors.Is(err, storage.ErrNotFound) {
			monitor.EmbeddingSkipped(meta.ID, "no stored text")
			continue
		}
		if err != nil {
			return core.WrapOp("semantic-search", opts.Query, err)
		}

		embedding, ok := s.embeddingFor(ctx, doc, len(query), monitor)
		if !ok {
			continue
		}
		similarity := cosine(query, embedding.Vector)
		if similarity <= SimilarityThreshold {
			continue
		}
		monitor.SemanticHit(doc.ID, similarity)
		hits = append(hits, scored{id: doc.ID, score: similarity})
		texts[doc.ID] = doc.Text
	}
	sortScored(hits)

	tokens := text.UniqueTokens(opts.Query)
	page := paginate(hits, opts.Page, opts.PageSize)
	results := make([]*core.SearchResult, 0, len(page))
	for _, hit := range page {
		results = append(results, &core.SearchResult{
			DocumentID: hit.id,
			Score:      hit.score,
			Snippet:    GenerateSnippet(texts[hit.id], tokens),
			MatchType:  core.MatchTypeSemantic,
		})
	}

	s.logger.Debug("semantic search", "query", opts.Query, "candidates", len(docs), "matches", len(hits))
	resp.Results = results
	resp.Total = len(docs)
	resp.MatchType = core.MatchTypeSemantic
	return nil
}

// embeddingFor returns a cached embedding computed from the document's
// current text, generating and caching one when the cache misses. It returns
// false when no usable embedding could be had for this search.
func (s *Semantic) embeddingFor(ctx context.Context, doc *core.DocumentText, dims int, monitor SearchMonitor) (*core.Embedding, bool) {
	cached, err := s.embeddingRepo.GetEmbedding(ctx, doc.ID)
	switch {
	case err == nil && cached.FreshFor(doc) && len(cached.Vector) == dims:
		return cached, true
	case err == nil:
		s.logger.Debug("cached embedding is stale", "document", doc.ID)
	case errors.Is(err, storage.ErrNotFound):
	default:
		s.logger.Warn("unreadable cached embedding", "document", doc.ID, "err", err)
	}

	if !s.limiter.Allow() {
		monitor.EmbeddingSkipped(doc.ID, "generation rate limited")
		return nil, false
	}

	// The generation is shared by every search waiting on the key, so it runs
	// detached from this caller's cancellation. The guarded embedder bounds
	// each attempt.
	genCtx := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%d:%s", doc.ID, doc.ContentHash)
	ch := s.generating.DoChan(key, func() (any, error) {
		vector, err := s.embedder.EmbedText(genCtx, core.EmbeddingChunk(doc.Text))
		if err != nil {
			return nil, err
		}
		embedding := &core.Embedding{
			DocumentID: doc.ID,
			Vector:     vector,
			SourceHash: doc.ContentHash,
			Model:      s.model,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.embeddingRepo.PutEmbedding(genCtx, embedding); err != nil {
			s.logger.Warn("failed to cache embedding", "document", doc.ID, "err", err)
		}
		return embedding, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		monitor.EmbeddingSkipped(doc.ID, "search canceled")
		return nil, false
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		s.logger.Debug("embedding generation failed", "document", doc.ID, "err", err)
		monitor.EmbeddingSkipped(doc.ID, "generation failed")
		return nil, false
	}
	monitor.EmbeddingGenerated(doc.ID)
	return v.(*core.Embedding), true
}

// cosine computes cosine similarity in float64. Vectors of different length
// or zero magnitude have similarity 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// paginate returns the 1-based page of items. Pages past the end are empty;
// page and size are compared by division so huge values cannot overflow.
func paginate[T any](items []T, page, size int) []T {
	if len(items) == 0 || page < 1 || size < 1 {
		return nil
	}
	if pages := (len(items)-1)/size + 1; page > pages {
		return nil
	}
	start := (page - 1) * size
	return items[start : start+min(size, len(items)-start)]
}

func scoredIDs(ranked []scored) []core.ID {
	ids := make([]core.ID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	return ids
}
