package cluster

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/poiesic/docseek/core"
)

const (
	// SimilarityThreshold is the exclusive lower bound on the Jaccard
	// similarity between a seed and a document joining its cluster.
	SimilarityThreshold = 0.25
	// KeywordCount is the number of keywords kept per cluster.
	KeywordCount = 5

	minTermRunes = 4
)

// Document is a clustering input: an eligible document's text and term
// frequencies.
type Document struct {
	ID    core.ID
	Text  string
	Terms map[string]int
}

// TermSet returns the stems of terms longer than three runes.
func TermSet(terms map[string]int) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for term, freq := range terms {
		if freq > 0 && utf8.RuneCountInString(term) >= minTermRunes {
			set[term] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	shared := 0
	for term := range a {
		if _, ok := b[term]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// GroupByOverlap clusters docs by term set overlap with a seed document.
// The returned clusters carry members and keywords only.
func GroupByOverlap(docs []Document) []*core.Cluster {
	docs = slices.Clone(docs)
	slices.SortFunc(docs, func(a, b Document) int { return cmp.Compare(a.ID, b.ID) })

	sets := make([]map[string]struct{}, len(docs))
	for i, doc := range docs {
		sets[i] = TermSet(doc.Terms)
	}

	processed := make([]bool, len(docs))
	var clusters []*core.Cluster
	for i := range docs {
		if processed[i] {
			continue
		}
		processed[i] = true

		members := []core.ClusterMember{{DocumentID: docs[i].ID, Similarity: 1.0}}
		grouped := []Document{docs[i]}
		for j := i + 1; j < len(docs); j++ {
			if processed[j] {
				continue
			}
			if sim := Jaccard(sets[i], sets[j]); sim > SimilarityThreshold {
				processed[j] = true
				members = append(members, core.ClusterMember{DocumentID: docs[j].ID, Similarity: sim})
				grouped = append(grouped, docs[j])
			}
		}

		if len(members) < core.MinClusterSize {
			continue
		}
		clusters = append(clusters, &core.Cluster{
			Keywords: TopKeywords(grouped, KeywordCount),
			Members:  members,
		})
	}
	return clusters
}

// TopKeywords returns the n terms with the highest total frequency across
// docs, ties broken by term. Only terms that count toward term sets are
// considered.
func TopKeywords(docs []Document, n int) []string {
	totals := make(map[string]int)
	for _, doc := range docs {
		for term, freq := range doc.Terms {
			if freq > 0 && utf8.RuneCountInString(term) >= minTermRunes {
				totals[term] += freq
			}
		}
	}

	terms := make([]string, 0, len(totals))
	for term := range totals {
		terms = append(terms, term)
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(totals[b], totals[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
