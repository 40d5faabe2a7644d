package core

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for documents and users.
// Document IDs are assigned by the metadata store.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentHash returns a hex encoded BLAKE2b-256 digest of text.
// Embeddings record the hash of the text they were computed from, so a
// changed document can never be served an embedding of its old text.
func ContentHash(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// MaxEmbeddingChunk is the number of runes of a document's text sent to the
// embedding provider.
const MaxEmbeddingChunk = 8000

// EmbeddingChunk returns the leading part of text used for document embeddings.
func EmbeddingChunk(text string) string {
	n := 0
	for i := range text {
		if n == MaxEmbeddingChunk {
			return text[:i]
		}
		n++
	}
	return text
}

// DocumentText is the indexed form of a document: its text and the
// frequency of every stem in it. It is replaced wholesale on re-index.
type DocumentText struct {
	ID          ID
	Text        string
	Terms       map[string]int
	ContentHash string
	IndexedAt   time.Time
}

// Embedding is a cached vector embedding for a document.
type Embedding struct {
	DocumentID ID
	Vector     []float32
	SourceHash string // ContentHash of the text the vector was computed from
	Model      string
	CreatedAt  time.Time
}

// FreshFor reports whether the embedding was computed from the document's
// current text.
func (e *Embedding) FreshFor(doc *DocumentText) bool {
	if e == nil || doc == nil || len(e.Vector) == 0 {
		return false
	}
	return e.SourceHash == doc.ContentHash
}

// DocumentMeta is the metadata the external store keeps about a document.
type DocumentMeta struct {
	ID        ID
	OwnerID   ID
	FolderID  ID // 0 means no folder
	Title     string
	MimeType  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Indexed   bool
	IndexedAt time.Time
}

// MatchType identifies which engine produced a search result.
type MatchType string

const (
	MatchTypeLexical  MatchType = "lexical"
	MatchTypeSemantic MatchType = "semantic"
)

// SearchResult is a single ranked hit. It is never persisted.
type SearchResult struct {
	DocumentID ID
	Score      float64
	Snippet    string
	MatchType  MatchType
}

// ClusterMember is a document's membership in a cluster.
type ClusterMember struct {
	DocumentID ID
	Similarity float64
}

// Cluster is a named group of similar documents produced by one clustering run.
type Cluster struct {
	ID          string
	UserID      ID
	Name        string
	Description string
	Keywords    []string
	Members     []ClusterMember
	CreatedAt   time.Time
}

// DocumentIDs returns the IDs of the cluster's members in membership order.
func (c *Cluster) DocumentIDs() []ID {
	ids := make([]ID, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.DocumentID
	}
	return ids
}

// Checkpoint records how far a long-running processor got, so an interrupted
// run can resume after the last document it completed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}
