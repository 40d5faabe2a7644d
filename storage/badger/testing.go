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


package badger

import "log/slog"

// Repositories groups the repositories that share one Backend.
type Repositories struct {
	Backend     *Backend
	Terms       *TermIndexRepository
	Embeddings  *EmbeddingRepository
	Checkpoints *CheckpointRepository
}

// Close closes the shared backend.
func (r *Repositories) Close() error {
	return r.Backend.Close()
}

// OpenRepositories opens the backend at filePath (or in memory) and builds
// every repository on top of it.
func OpenRepositories(filePath string, inMemory bool, logger *slog.Logger) (*Repositories, error) {
	backend, err := OpenBackendWithLogger(filePath, inMemory, logger)
	if err != nil {
		return nil, err
	}

	terms, err := NewTermIndexRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	embeddings, err := NewEmbeddingRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:     backend,
		Terms:       terms,
		Embeddings:  embeddings,
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// NewMemoryRepositories opens in-memory term and embedding repositories for
// tests. The caller closes the returned backend.
func NewMemoryRepositories() (*TermIndexRepository, *EmbeddingRepository, *Backend, error) {
	repos, err := OpenRepositories("", true, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	return repos.Terms, repos.Embeddings, repos.Backend, nil
}
