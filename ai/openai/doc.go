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


// Package openai embeds document text through an OpenAI-compatible
// embeddings endpoint using langchaingo. Ollama, LocalAI and vLLM all expose
// one, and the host is normalized to its /v1 root.
//
// Input is cleaned before it is sent: NUL bytes and surrounding whitespace are
// removed, and text that is empty afterwards fails with ErrEmptyInput instead
// of costing a request.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("embeddinggemma"),
//	))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "quarterly budget review")
package openai
