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


// Package ai provides abstractions for the embedding services used in docseek.
//
// The engine depends on two interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - AIProvider: Owns an embedder and its lifecycle
//
// Embedding providers are remote and unreliable. GuardedEmbedder wraps any
// Embedder with a per-attempt timeout, a single retry and a circuit breaker,
// so semantic search can fall back to lexical search within a bounded time.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder) return CONCRETE types to enable test assertions and
// behavior injection via the mock's public fields and methods.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockEmbed := mock.NewMockEmbedder()          // returns *mock.MockEmbedder
//	count := mockEmbed.CallCount()               // test assertion
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	guarded, err := ai.NewGuardedEmbedder(provider.Embedder(),
//	    ai.WithAttemptTimeout(config.Timeout),
//	    ai.WithGuardMaxAttempts(config.MaxAttempts),
//	)
//	vector, err := guarded.EmbedText(ctx, "lease termination notice")
package ai
