// Package reembed generates embeddings for indexed documents ahead of search.
//
// Semantic search embeds documents lazily under a rate limit. A reembed run
// walks the whole term index in batches instead, skipping documents whose
// cached embedding already matches their current text unless forced. Batches
// are retried with exponential backoff, progress is reported to a writer and
// an optional checkpoint lets an interrupted run resume.
package reembed
