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


package openai

import (
	"log/slog"
	"sync/atomic"

	"github.com/poiesic/docseek/ai"
)

// Provider serves embeddings from an OpenAI-compatible endpoint.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger
	closed   atomic.Bool
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider validates config, which also normalizes the host to end in
// /v1, and connects an embedder to it.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("embedding provider ready", "host", config.EmbeddingHost, "model", config.EmbeddingModel)

	return &Provider{
		config:   config,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// Embedder returns the shared embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Model returns the configured embedding model.
func (p *Provider) Model() string {
	return p.config.EmbeddingModel
}

// Close marks the provider closed. The langchaingo client holds no
// resources of its own, so repeated calls are harmless.
func (p *Provider) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.logger.Debug("closing embedding provider")
	}
	return nil
}
