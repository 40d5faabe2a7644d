package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
)

// Key prefixes for different data types
const (
	documentTextPrefix = "doctxt"
	documentTermPrefix = "dterm"
	embeddingPrefix    = "emb"
	checkpointSuffix   = "chkpt"
)

// termSeparator ends the stem inside a posting key. Stems never contain it.
const termSeparator = 0x00

// makeDocumentKey generates a key for a document's stored text by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentTextPrefix, id))
}

// makePostingKey generates a composite key for the term index.
// Format: prefix:term\x00id
func makePostingKey(term string, id core.ID) []byte {
	prefix := makePartialPostingKey(term)
	buf := make([]byte, len(prefix)+8) // 8 bytes for the document ID
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialPostingKey generates the prefix shared by every posting of term.
// Format: prefix:term\x00
func makePartialPostingKey(term string) []byte {
	prefix := documentTermPrefix + ":"
	buf := make([]byte, 0, len(prefix)+len(term)+1)
	buf = append(buf, prefix...)
	buf = append(buf, term...)
	return append(buf, termSeparator)
}

// postingDocumentID extracts the document ID from the tail of a posting key.
func postingDocumentID(key []byte) (core.ID, error) {
	if len(key) < 8 || bytes.IndexByte(key, termSeparator) != len(key)-9 {
		return 0, storage.ErrTruncatedData
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

// makeEmbeddingKey generates a key for a cached document embedding.
func makeEmbeddingKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", embeddingPrefix, id))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:%s", processorType, checkpointSuffix))
}
