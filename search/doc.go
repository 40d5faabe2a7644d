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


// Package search answers lexical and semantic queries over indexed documents.
//
// Lexical ranks documents by the summed raw frequency of the query's stems.
// Ties are broken by ascending document ID so rankings are deterministic.
//
// Semantic embeds the query, scores a bounded pool of recently updated
// candidates by cosine similarity and keeps matches above 0.7. Missing or
// stale document embeddings are generated on demand under a rate limit.
// Whenever the embedding provider cannot answer, Semantic falls back to the
// lexical ranking with the same filters and marks the response degraded.
//
// Both engines attach keyword-proximity snippets built by GenerateSnippet.
package search
