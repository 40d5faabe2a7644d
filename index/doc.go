// Package index maintains the term index of extracted document text.
//
// The Indexer normalizes a document's text, replaces its stored text and
// postings atomically, and then flags the document as indexed in the
// metadata store. Batches run on a worker pool; writes for a single document
// are serialized so concurrent re-index calls never interleave.
//
// Empty or whitespace-only text is not an error. It is logged and leaves any
// previous index of the document untouched.
package index
