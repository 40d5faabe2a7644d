// Package metadata defines the document metadata store the engine reads
// candidate sets and access rights from, and writes cluster results to.
//
// The store is owned by the surrounding application. The engine only needs
// the narrow set of typed operations below; metadata/sqlite provides the
// implementation used by the CLI and by tests.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/poiesic/docseek/core"
)

var (
	// ErrDocumentNotFound is returned when a document ID is not in the store.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocument is returned for metadata without an ID or owner.
	ErrInvalidDocument = errors.New("invalid document metadata")
)

// Querier is the raw parameterized SQL surface. Statements use ? placeholders.
// Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// Filter narrows the candidate set of a semantic search. Zero values mean
// "no constraint". UserID is required: only documents the user owns or that
// are shared with the user are returned.
type Filter struct {
	UserID   core.ID
	FolderID core.ID
	From     time.Time
	To       time.Time
	MimeType string
}

// Matches reports whether doc passes every filter except access, which needs
// the share table.
func (f Filter) Matches(doc *core.DocumentMeta) bool {
	if f.FolderID != 0 && doc.FolderID != f.FolderID {
		return false
	}
	if !f.From.IsZero() && doc.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && doc.CreatedAt.After(f.To) {
		return false
	}
	if f.MimeType != "" && doc.MimeType != f.MimeType {
		return false
	}
	return true
}

// Store is the typed view of the metadata store used by the engine.
type Store interface {
	// PutDocument inserts or replaces a document's metadata. The indexed flag
	// is preserved on update and only changed by MarkIndexed.
	PutDocument(ctx context.Context, doc *core.DocumentMeta) error

	// ShareDocument grants userID access to a document it does not own.
	ShareDocument(ctx context.Context, documentID, userID core.ID) error

	// GetDocument returns ErrDocumentNotFound for unknown IDs.
	GetDocument(ctx context.Context, id core.ID) (*core.DocumentMeta, error)

	// MarkIndexed sets the indexed flag and timestamp of a document.
	MarkIndexed(ctx context.Context, id core.ID, at time.Time) error

	// Candidates returns up to limit indexed documents accessible to
	// filter.UserID and matching the filter, most recently updated first.
	Candidates(ctx context.Context, filter Filter, limit int) ([]*core.DocumentMeta, error)

	// AccessibleDocuments returns every indexed document owned by or shared
	// with userID, in ascending ID order.
	AccessibleDocuments(ctx context.Context, userID core.ID) ([]*core.DocumentMeta, error)

	// ReplaceClusters deletes all clusters of userID and inserts clusters in
	// one transaction. Either every row changes or none does.
	ReplaceClusters(ctx context.Context, userID core.ID, clusters []*core.Cluster) error

	// GetClusters returns the stored clusters of userID in creation order.
	GetClusters(ctx context.Context, userID core.ID) ([]*core.Cluster, error)

	Close() error
}
