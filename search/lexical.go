package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
	"github.com/poiesic/docseek/text"
)

// DefaultLimit is the number of lexical results returned when no limit is given.
const DefaultLimit = 20

// Lexical ranks documents by term frequency.
type Lexical struct {
	termRepo storage.TermIndexRepository
	logger   *slog.Logger
}

// LexicalOption configures a Lexical searcher.
type LexicalOption func(*Lexical) error

// WithLexicalLogger sets a custom logger.
// Default is slog.Default().
func WithLexicalLogger(logger *slog.Logger) LexicalOption {
	return func(l *Lexical) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// NewLexical creates a new lexical searcher.
func NewLexical(termRepo storage.TermIndexRepository, opts ...LexicalOption) (*Lexical, error) {
	if termRepo == nil {
		return nil, ErrTermRepositoryRequired
	}

	l := &Lexical{
		termRepo: termRepo,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "lexical-search")

	return l, nil
}

// scored is a ranked document before its snippet is attached.
type scored struct {
	id    core.ID
	score float64
}

// Search returns up to limit documents containing any stem of query, best
// first. A limit of zero or less means DefaultLimit.
func (l *Lexical) Search(ctx context.Context, query string, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return l.SearchFiltered(ctx, query, limit, nil)
}

// SearchFiltered is Search restricted to documents accepted by accept, which
// may be nil. The filter runs before truncation. A negative limit returns the
// full ranking and zero means DefaultLimit.
func (l *Lexical) SearchFiltered(ctx context.Context, query string, limit int, accept func(core.ID) bool) ([]*core.SearchResult, error) {
	ranked, err := l.rank(ctx, query, accept)
	if err != nil {
		return nil, err
	}

	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return l.results(ctx, query, ranked)
}

// rank scores every document matching a stem of query. The result is sorted
// by score descending and then by ascending document ID.
func (l *Lexical) rank(ctx context.Context, query string, accept func(core.ID) bool) ([]scored, error) {
	stems := text.UniqueStems(query)
	if len(stems) == 0 {
		return []scored{}, nil
	}

	scores := make(map[core.ID]float64)
	for _, stem := range stems {
		postings, err := l.termRepo.FindPostings(ctx, stem)
		if err != nil {
			l.logger.Error("error reading postings", "term", stem, "err", err)
			return nil, core.WrapOp("lexical-search", query, err)
		}
		for _, p := range postings {
			scores[p.DocumentID] += float64(p.Frequency)
		}
	}

	ranked := make([]scored, 0, len(scores))
	for id, score := range scores {
		if accept != nil && !accept(id) {
			continue
		}
		ranked = append(ranked, scored{id: id, score: score})
	}
	sortScored(ranked)

	l.logger.Debug("lexical ranking", "query", query, "stems", len(stems), "matches", len(ranked))
	return ranked, nil
}

// results attaches snippets built from the query's original tokens.
func (l *Lexical) results(ctx context.Context, query string, ranked []scored) ([]*core.SearchResult, error) {
	tokens := text.UniqueTokens(query)
	results := make([]*core.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		stored, _, err := l.termRepo.GetStoredText(ctx, r.id)
		if err != nil {
			return nil, core.WrapOp("lexical-search", query, err)
		}
		results = append(results, &core.SearchResult{
			DocumentID: r.id,
			Score:      r.score,
			Snippet:    GenerateSnippet(stored, tokens),
			MatchType:  core.MatchTypeLexical,
		})
	}
	return results, nil
}

func sortScored(ranked []scored) {
	slices.SortFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
}
