package search

import (
	"github.com/poiesic/docseek/core"
)

// SearchMonitor provides hooks to observe the semantic search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(opts Options)
	// Degraded is called when the embedding provider could not answer and
	// the search falls back to the lexical ranking.
	Degraded(err error)
	AfterCandidateSelection(ids []core.ID)
	EmbeddingGenerated(id core.ID)
	EmbeddingSkipped(id core.ID, reason string)
	SemanticHit(id core.ID, similarity float64)
	AfterLexicalRanking(ids []core.ID)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Options)                         {}
func (n *noopMonitor) Degraded(_ error)                        {}
func (n *noopMonitor) AfterCandidateSelection(_ []core.ID)     {}
func (n *noopMonitor) EmbeddingGenerated(_ core.ID)            {}
func (n *noopMonitor) EmbeddingSkipped(_ core.ID, _ string)    {}
func (n *noopMonitor) SemanticHit(_ core.ID, _ float64)        {}
func (n *noopMonitor) AfterLexicalRanking(_ []core.ID)         {}
func (n *noopMonitor) Finish(_ *Response)                      {}
