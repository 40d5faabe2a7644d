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


package docseek

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/docseek/ai"
	"github.com/poiesic/docseek/ai/openai"
	"github.com/poiesic/docseek/cluster"
	"github.com/poiesic/docseek/index"
	"github.com/poiesic/docseek/metadata"
	"github.com/poiesic/docseek/metadata/sqlite"
	"github.com/poiesic/docseek/reembed"
	"github.com/poiesic/docseek/search"
	"github.com/poiesic/docseek/storage"
	"github.com/poiesic/docseek/storage/badger"
)

const (
	// IndexDir is the badger directory under the data directory.
	IndexDir = "index"
	// MetadataFile is the SQLite database under the data directory.
	MetadataFile = "metadata.db"
)

// ErrAIDisabled is returned by operations that need an embedding provider
// when the database was opened without one.
var ErrAIDisabled = errors.New("embedding provider disabled")

// Database owns the term index, the embedding cache, the metadata store and
// the embedding provider, and builds the engines that use them.
type Database struct {
	backend        *badger.Backend
	termRepo       *badger.TermIndexRepository
	embeddingRepo  *badger.EmbeddingRepository
	checkpointRepo *badger.CheckpointRepository
	meta           *sqlite.Store
	provider       ai.AIProvider
	embedder       *ai.GuardedEmbedder
	logger         *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig  *ai.Config
	provider  ai.AIProvider
	disableAI bool
	inMemory  bool
	logger    *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
// Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of creating an OpenAI-compatible one.
// The Database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithoutAI opens the database with no embedding provider. Semantic
// searches then always take the lexical path.
func WithoutAI() DatabaseOption {
	return func(o *databaseOptions) {
		o.disableAI = true
	}
}

// WithInMemory keeps the index and the metadata in memory. The data
// directory is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens or creates a database in dir.
func NewDatabase(dir string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	repos, err := badger.OpenRepositories(filepath.Join(dir, IndexDir), options.inMemory, options.logger)
	if err != nil {
		return nil, err
	}
	backend := repos.Backend

	var meta *sqlite.Store
	if options.inMemory {
		meta, err = sqlite.OpenMemory()
	} else {
		meta, err = sqlite.Open(filepath.Join(dir, MetadataFile))
	}
	if err != nil {
		backend.Close()
		return nil, err
	}

	db := &Database{
		backend:        backend,
		termRepo:       repos.Terms,
		embeddingRepo:  repos.Embeddings,
		checkpointRepo: repos.Checkpoints,
		meta:           meta,
		logger:         options.logger,
	}

	if !options.disableAI {
		if err := db.openProvider(options); err != nil {
			meta.Close()
			backend.Close()
			return nil, err
		}
	}

	return db, nil
}

func (db *Database) openProvider(options *databaseOptions) error {
	provider := options.provider
	guardOpts := []ai.GuardOption{ai.WithGuardLogger(options.logger)}
	if provider == nil {
		cfg := options.aiConfig
		if cfg == nil {
			cfg = ai.DefaultConfig()
		}
		p, err := openai.NewProvider(cfg)
		if err != nil {
			return err
		}
		provider = p
		guardOpts = append(guardOpts, ai.WithAttemptTimeout(cfg.Timeout), ai.WithGuardMaxAttempts(cfg.MaxAttempts))
	}

	embedder, err := ai.NewGuardedEmbedder(provider.Embedder(), guardOpts...)
	if err != nil {
		provider.Close()
		return err
	}
	db.provider = provider
	db.embedder = embedder
	return nil
}

// Close closes the provider, the metadata store and the badger backend.
func (db *Database) Close() error {
	// Close AI provider first
	if db.provider != nil {
		if err := db.provider.Close(); err != nil {
			db.logger.Error("error closing AI provider", "err", err)
		}
	}

	if err := db.meta.Close(); err != nil {
		db.logger.Error("error closing metadata store", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) TermIndex() storage.TermIndexRepository {
	return db.termRepo
}

func (db *Database) Embeddings() storage.EmbeddingRepository {
	return db.embeddingRepo
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpointRepo
}

func (db *Database) Metadata() metadata.Store {
	return db.meta
}

// Provider returns the embedding provider, or nil when AI is disabled.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

func (db *Database) NewIndexer(opts ...index.Option) (*index.Indexer, error) {
	base := []index.Option{
		index.WithEmbeddingRepository(db.embeddingRepo),
		index.WithLogger(db.logger),
	}
	return index.NewIndexer(db.termRepo, db.meta, append(base, opts...)...)
}

func (db *Database) NewLexical(opts ...search.LexicalOption) (*search.Lexical, error) {
	base := []search.LexicalOption{search.WithLexicalLogger(db.logger)}
	return search.NewLexical(db.termRepo, append(base, opts...)...)
}

// NewSemantic builds a semantic searcher over the metadata store's
// candidates. Without a provider every search degrades to lexical.
func (db *Database) NewSemantic(opts ...search.Option) (*search.Semantic, error) {
	base := []search.Option{search.WithLogger(db.logger)}
	if db.embedder != nil {
		base = append(base, search.WithEmbedder(db.embedder, db.provider.Model()))
	}
	return search.NewSemantic(db.termRepo, db.embeddingRepo, db.meta, append(base, opts...)...)
}

func (db *Database) NewClusterEngine(opts ...cluster.Option) (*cluster.Engine, error) {
	base := []cluster.Option{cluster.WithLogger(db.logger)}
	return cluster.NewEngine(db.meta, db.termRepo, append(base, opts...)...)
}

// NewReembedder builds an eager embedding run that checkpoints its progress
// in the badger backend. It calls the provider's embedder directly; the run
// has its own retry policy.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer, opts ...reembed.Option) (*reembed.Reembedder, error) {
	if db.provider == nil {
		return nil, ErrAIDisabled
	}
	base := []reembed.Option{
		reembed.WithCheckpoints(db.checkpointRepo),
		reembed.WithLogger(db.logger),
	}
	return reembed.NewReembedder(db.termRepo, db.embeddingRepo, db.provider.Embedder(), db.provider.Model(),
		config, progress, append(base, opts...)...)
}
