package badger

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

// TermIndexRepository implements storage.TermIndexRepository for BadgerDB.
//
// Each document has one text record plus one posting key per distinct stem.
// Posting keys sort by stem and then by big-endian document ID, so a prefix
// scan over a stem yields its documents in ascending ID order.
type TermIndexRepository struct {
	backend *Backend
}

var _ storage.TermIndexRepository = (*TermIndexRepository)(nil)

// NewTermIndexRepository creates a new TermIndexRepository.
func NewTermIndexRepository(backend *Backend) (*TermIndexRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &TermIndexRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database handle.
func (r *TermIndexRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *TermIndexRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ReplaceDocument stores doc and rewrites its postings in a single transaction.
func (r *TermIndexRepository) ReplaceDocument(ctx context.Context, doc *core.DocumentText) error {
	if err := core.ValidateDocumentText(doc); err != nil {
		return err
	}
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)

		old, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if old != nil {
			for term := range old.Terms {
				if doc.Terms[term] > 0 {
					continue
				}
				if err := tx.Delete(makePostingKey(term, doc.ID)); err != nil {
					return err
				}
			}
		}

		for term, freq := range doc.Terms {
			if freq == 0 {
				continue
			}
			if err := tx.Set(makePostingKey(term, doc.ID), storage.MarshalFrequency(freq)); err != nil {
				return err
			}
		}

		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes a document's text and all of its postings.
func (r *TermIndexRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		old, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		for term := range old.Terms {
			if err := tx.Delete(makePostingKey(term, id)); err != nil {
				return err
			}
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves the indexed form of a document by ID.
func (r *TermIndexRepository) GetDocument(ctx context.Context, id core.ID) (*core.DocumentText, error) {
	var result *core.DocumentText
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetTermFrequencies returns the stem frequencies of a document.
func (r *TermIndexRepository) GetTermFrequencies(ctx context.Context, id core.ID) (map[string]int, error) {
	doc, err := r.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Terms, nil
}

// GetStoredText returns the text a document was last indexed with.
func (r *TermIndexRepository) GetStoredText(ctx context.Context, id core.ID) (string, bool, error) {
	doc, err := r.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return doc.Text, true, nil
}

// FindPostings returns every document containing term with its frequency.
func (r *TermIndexRepository) FindPostings(ctx context.Context, term string) ([]storage.Posting, error) {
	var postings []storage.Posting
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialPostingKey(term), func(key, val []byte) error {
			id, err := postingDocumentID(key)
			if err != nil {
				return err
			}
			freq, err := storage.UnmarshalFrequency(val)
			if err != nil {
				return err
			}
			postings = append(postings, storage.Posting{DocumentID: id, Frequency: freq})
			return nil
		})
	}, false)
	return postings, err
}

// ListDocumentIDs returns every indexed document ID in ascending order.
func (r *TermIndexRepository) ListDocumentIDs(ctx context.Context) ([]core.ID, error) {
	var ids []core.ID
	prefix := documentTextPrefix + ":"
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw := strings.TrimPrefix(string(iter.Item().Key()), prefix)
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return storage.ErrTruncatedData
			}
			ids = append(ids, core.ID(id))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Text keys use decimal IDs and do not sort numerically.
	slices.Sort(ids)
	return ids, nil
}

// readDocument returns nil, nil when the key does not exist.
func (r *TermIndexRepository) readDocument(tx *badger.Txn, key []byte) (*core.DocumentText, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.DocumentText
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
