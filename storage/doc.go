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


// Package storage provides the storage abstraction layer for docseek.
//
// This package defines repository interfaces that decouple the term index and
// the embedding cache from business logic. The BadgerDB implementation lives
// in storage/badger.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return concrete repository
// types; consumers accept the interfaces defined here:
//
//	termRepo, err := badger.NewTermIndexRepository(backend)  // *badger.TermIndexRepository
//	searcher, err := search.NewLexical(termRepo)              // accepts storage.TermIndexRepository
//
// # Architecture
//
//   - Repository: transaction support and lifecycle
//   - TermIndexRepository: stored text, term frequencies and postings
//   - EmbeddingRepository: write-through embedding cache keyed by document
//
// Records are replaced wholesale. Re-indexing a document rewrites its text and
// every posting in one transaction, so readers never observe a mix of old and
// new terms.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	termRepo, embeddingRepo, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
