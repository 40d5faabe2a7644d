// Package sqlite implements metadata.Store on SQLite using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/metadata"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         INTEGER PRIMARY KEY,
	owner_id   INTEGER NOT NULL,
	folder_id  INTEGER NOT NULL DEFAULT 0,
	title      TEXT NOT NULL DEFAULT '',
	mime_type  TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0,
	indexed    INTEGER NOT NULL DEFAULT 0,
	indexed_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

CREATE TABLE IF NOT EXISTS document_shares (
	document_id INTEGER NOT NULL,
	user_id     INTEGER NOT NULL,
	PRIMARY KEY (document_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_shares_user ON document_shares(user_id);

CREATE TABLE IF NOT EXISTS clusters (
	id            TEXT PRIMARY KEY,
	user_id       INTEGER NOT NULL,
	position      INTEGER NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL,
	keywords_json TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clusters_user ON clusters(user_id);

CREATE TABLE IF NOT EXISTS cluster_documents (
	cluster_id  TEXT NOT NULL,
	document_id INTEGER NOT NULL,
	position    INTEGER NOT NULL,
	similarity  REAL NOT NULL,
	PRIMARY KEY (cluster_id, document_id)
);
`

const documentColumns = `d.id, d.owner_id, d.folder_id, d.title, d.mime_type, d.created_at, d.updated_at, d.indexed, d.indexed_at`

// accessible restricts d to documents owned by or shared with a user. It
// takes the user ID twice.
const accessible = `(d.owner_id = ? OR EXISTS (
	SELECT 1 FROM document_shares s WHERE s.document_id = d.id AND s.user_id = ?))`

// Store is a SQLite-backed metadata.Store.
type Store struct {
	db   *sql.DB
	path string
}

var _ metadata.Store = (*Store)(nil)

// Open opens or creates the metadata database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return open(path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

// OpenMemory opens a private in-memory database, for tests and demos.
func OpenMemory() (*Store, error) {
	return open(":memory:", "")
}

func open(dsn, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Querier exposes the raw SQL surface of the store.
func (s *Store) Querier() metadata.Querier {
	return s.db
}

// PutDocument inserts or updates a document's metadata.
func (s *Store) PutDocument(ctx context.Context, doc *core.DocumentMeta) error {
	if doc == nil || doc.ID == 0 || doc.OwnerID == 0 {
		return metadata.ErrInvalidDocument
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE documents
			SET owner_id = ?, folder_id = ?, title = ?, mime_type = ?, created_at = ?, updated_at = ?
			WHERE id = ?`,
			int64(doc.OwnerID), int64(doc.FolderID), doc.Title, doc.MimeType,
			toMicro(doc.CreatedAt), toMicro(doc.UpdatedAt), int64(doc.ID))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO documents
			(id, owner_id, folder_id, title, mime_type, created_at, updated_at, indexed, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(doc.ID), int64(doc.OwnerID), int64(doc.FolderID), doc.Title, doc.MimeType,
			toMicro(doc.CreatedAt), toMicro(doc.UpdatedAt), boolToInt(doc.Indexed), toMicro(doc.IndexedAt))
		return err
	})
}

// ShareDocument grants userID access to a document.
func (s *Store) ShareDocument(ctx context.Context, documentID, userID core.ID) error {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO document_shares (document_id, user_id) VALUES (?, ?)`,
		int64(documentID), int64(userID))
	return err
}

// GetDocument returns a document's metadata.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.DocumentMeta, error) {
	docs, err := s.queryDocuments(ctx, s.db, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, int64(id))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, metadata.ErrDocumentNotFound
	}
	return docs[0], nil
}

// MarkIndexed sets the indexed flag of a document.
func (s *Store) MarkIndexed(ctx context.Context, id core.ID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET indexed = 1, indexed_at = ? WHERE id = ?`, toMicro(at), int64(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return metadata.ErrDocumentNotFound
	}
	return nil
}

// Candidates returns the semantic search candidate pool.
func (s *Store) Candidates(ctx context.Context, filter metadata.Filter, limit int) ([]*core.DocumentMeta, error) {
	var (
		where = []string{"d.indexed = 1", accessible}
		args  = []any{int64(filter.UserID), int64(filter.UserID)}
	)
	if filter.FolderID != 0 {
		where = append(where, "d.folder_id = ?")
		args = append(args, int64(filter.FolderID))
	}
	if !filter.From.IsZero() {
		where = append(where, "d.created_at >= ?")
		args = append(args, toMicro(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "d.created_at <= ?")
		args = append(args, toMicro(filter.To))
	}
	if filter.MimeType != "" {
		where = append(where, "d.mime_type = ?")
		args = append(args, filter.MimeType)
	}

	query := `SELECT ` + documentColumns + ` FROM documents d WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY d.updated_at DESC, d.id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDocuments(ctx, s.db, query, args...)
}

// AccessibleDocuments returns every indexed document userID can read.
func (s *Store) AccessibleDocuments(ctx context.Context, userID core.ID) ([]*core.DocumentMeta, error) {
	return s.queryDocuments(ctx, s.db,
		`SELECT `+documentColumns+` FROM documents d WHERE d.indexed = 1 AND `+accessible+` ORDER BY d.id ASC`,
		int64(userID), int64(userID))
}

// ReplaceClusters swaps the stored clusters of userID for clusters.
func (s *Store) ReplaceClusters(ctx context.Context, userID core.ID, clusters []*core.Cluster) error {
	for _, c := range clusters {
		if c.UserID != userID {
			return fmt.Errorf("%w: cluster %s belongs to user %d", core.ErrInvalidCluster, c.ID, c.UserID)
		}
		if err := core.ValidateCluster(c); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_documents
			WHERE cluster_id IN (SELECT id FROM clusters WHERE user_id = ?)`, int64(userID)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM clusters WHERE user_id = ?`, int64(userID)); err != nil {
			return err
		}

		for pos, c := range clusters {
			keywords, err := json.Marshal(c.Keywords)
			if err != nil {
				return err
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = time.Now().UTC()
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO clusters
				(id, user_id, position, name, description, keywords_json, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID, int64(userID), pos, c.Name, c.Description, string(keywords), toMicro(c.CreatedAt)); err != nil {
				return err
			}
			for mpos, m := range c.Members {
				if _, err := tx.ExecContext(ctx, `INSERT INTO cluster_documents
					(cluster_id, document_id, position, similarity) VALUES (?, ?, ?, ?)`,
					c.ID, int64(m.DocumentID), mpos, m.Similarity); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetClusters returns the stored clusters of userID.
func (s *Store) GetClusters(ctx context.Context, userID core.ID) ([]*core.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT c.id, c.name, c.description, c.keywords_json, c.created_at,
			m.document_id, m.similarity
		FROM clusters c JOIN cluster_documents m ON m.cluster_id = c.id
		WHERE c.user_id = ?
		ORDER BY c.position ASC, m.position ASC`, int64(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		clusters []*core.Cluster
		current  *core.Cluster
	)
	for rows.Next() {
		var (
			id, name, description, keywords string
			createdAt, documentID           int64
			similarity                      float64
		)
		if err := rows.Scan(&id, &name, &description, &keywords, &createdAt, &documentID, &similarity); err != nil {
			return nil, err
		}
		if current == nil || current.ID != id {
			current = &core.Cluster{
				ID:          id,
				UserID:      userID,
				Name:        name,
				Description: description,
				CreatedAt:   fromMicro(createdAt),
			}
			if err := json.Unmarshal([]byte(keywords), &current.Keywords); err != nil {
				return nil, fmt.Errorf("decoding keywords of cluster %s: %w", id, err)
			}
			clusters = append(clusters, current)
		}
		current.Members = append(current.Members, core.ClusterMember{
			DocumentID: core.ID(documentID),
			Similarity: similarity,
		})
	}
	return clusters, rows.Err()
}

func (s *Store) queryDocuments(ctx context.Context, q metadata.Querier, query string, args ...any) ([]*core.DocumentMeta, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*core.DocumentMeta
	for rows.Next() {
		var (
			id, owner, folder, created, updated, indexedAt int64
			indexed                                        int
			doc                                            core.DocumentMeta
		)
		if err := rows.Scan(&id, &owner, &folder, &doc.Title, &doc.MimeType,
			&created, &updated, &indexed, &indexedAt); err != nil {
			return nil, err
		}
		doc.ID = core.ID(id)
		doc.OwnerID = core.ID(owner)
		doc.FolderID = core.ID(folder)
		doc.CreatedAt = fromMicro(created)
		doc.UpdatedAt = fromMicro(updated)
		doc.Indexed = indexed != 0
		doc.IndexedAt = fromMicro(indexedAt)
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func toMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicro(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
