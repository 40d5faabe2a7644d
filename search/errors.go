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


package search

import "errors"

var (
	// ErrTermRepositoryRequired is returned when a term index repository is not provided.
	ErrTermRepositoryRequired = errors.New("term index repository required")

	// ErrEmbeddingRepositoryRequired is returned when an embedding repository is not provided.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository required")

	// ErrCandidateSourceRequired is returned when no metadata store is provided.
	ErrCandidateSourceRequired = errors.New("candidate source required")
)

// ErrNoEmbedder is reported to the monitor when AI search is enabled but no
// embedding provider is configured.
var ErrNoEmbedder = errors.New("no embedder configured")
