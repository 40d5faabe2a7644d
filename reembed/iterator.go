// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"errors"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

const (
	// DefaultBatchSize is the default number of documents loaded per batch
	DefaultBatchSize = 100
)

// DocumentIterator walks the term index in ascending document ID order.
type DocumentIterator struct {
	repo      storage.TermIndexRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch; values <= 0 select DefaultBatchSize
func NewDocumentIterator(repo storage.TermIndexRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Remaining returns the IDs of indexed documents greater than after.
func (it *DocumentIterator) Remaining(ctx context.Context, after core.ID) ([]core.ID, error) {
	ids, err := it.repo.ListDocumentIDs(ctx)
	if err != nil {
		return nil, err
	}
	start := 0
	for start < len(ids) && ids[start] <= after {
		start++
	}
	return ids[start:], nil
}

// ForEach calls fn with batches of documents whose ID is greater than after.
// Documents removed after listing are skipped. Iteration stops on the first
// error from fn; ctx is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, after core.ID, fn func([]*core.DocumentText) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids, err := it.Remaining(ctx, after)
	if err != nil {
		return err
	}

	for i := 0; i < len(ids); i += it.batchSize {
		end := min(i+it.batchSize, len(ids))

		batch := make([]*core.DocumentText, 0, end-i)
		for _, id := range ids[i:end] {
			doc, err := it.repo.GetDocument(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			batch = append(batch, doc)
		}

		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
