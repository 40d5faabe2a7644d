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


package core

import (
	"fmt"
)

// MinClusterSize is the smallest number of members a cluster may have.
const MinClusterSize = 2

// ValidateDocumentText validates a DocumentText according to domain rules.
//
// Validation rules:
//   - ID must not be zero
//   - Every term frequency must be non-negative
//
// NOT validated:
//   - Text (empty text is a no-op for the indexer, never stored)
//   - ContentHash (set by the indexer)
func ValidateDocumentText(doc *DocumentText) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.ID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrZeroID)
	}

	for term, count := range doc.Terms {
		if count < 0 {
			return fmt.Errorf("%w: %w: %q=%d", ErrInvalidDocument, ErrNegativeFrequency, term, count)
		}
	}

	return nil
}

// ValidateEmbedding validates an Embedding according to domain rules.
//
// Validation rules:
//   - DocumentID must not be zero
//   - Vector must not be empty
func ValidateEmbedding(e *Embedding) error {
	if e == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}

	if e.DocumentID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrZeroID)
	}

	if len(e.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, ErrEmptyVector)
	}

	return nil
}

// ValidateCluster validates a Cluster according to domain rules.
//
// Validation rules:
//   - UserID must not be zero
//   - At least MinClusterSize members
//   - No member may have a zero DocumentID
func ValidateCluster(c *Cluster) error {
	if c == nil {
		return fmt.Errorf("%w: cluster is nil", ErrInvalidCluster)
	}

	if c.UserID == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCluster, ErrZeroID)
	}

	if len(c.Members) < MinClusterSize {
		return fmt.Errorf("%w: %w: %d", ErrInvalidCluster, ErrTooFewMembers, len(c.Members))
	}

	for _, m := range c.Members {
		if m.DocumentID == 0 {
			return fmt.Errorf("%w: member %w", ErrInvalidCluster, ErrZeroID)
		}
	}

	return nil
}
