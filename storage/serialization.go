package storage

import (
	"fmt"

	"github.com/poiesic/docseek/core"
)

// MarshalFrequency encodes a posting's term frequency.
func MarshalFrequency(freq int) []byte {
	buf := make([]byte, frequencyMUS.Size(freq))
	frequencyMUS.Marshal(freq, buf)
	return buf
}

// UnmarshalFrequency decodes a posting value.
func UnmarshalFrequency(data []byte) (int, error) {
	freq, _, err := frequencyMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return freq, nil
}

// MarshalDocument encodes a DocumentText. Terms are kept with the text so a
// re-index can find and delete the previous postings.
func MarshalDocument(doc *core.DocumentText) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrSerializationFailed)
	}
	buf := make([]byte, documentMUS.Size(*doc))
	documentMUS.Marshal(*doc, buf)
	return buf, nil
}

// UnmarshalDocument decodes a DocumentText.
func UnmarshalDocument(data []byte) (*core.DocumentText, error) {
	doc, _, err := documentMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalEmbedding encodes an Embedding.
func MarshalEmbedding(e *core.Embedding) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil embedding", ErrSerializationFailed)
	}
	buf := make([]byte, embeddingMUS.Size(*e))
	embeddingMUS.Marshal(*e, buf)
	return buf, nil
}

// UnmarshalEmbedding decodes an Embedding. A record without a vector is
// corrupt.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	e, _, err := embeddingMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if len(e.Vector) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, core.ErrEmptyVector)
	}
	return &e, nil
}

// MarshalCheckpoint encodes a Checkpoint.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	if checkpoint == nil {
		return nil, fmt.Errorf("%w: nil checkpoint", ErrSerializationFailed)
	}
	buf := make([]byte, checkpointMUS.Size(*checkpoint))
	checkpointMUS.Marshal(*checkpoint, buf)
	return buf, nil
}

// UnmarshalCheckpoint decodes a Checkpoint.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	checkpoint, _, err := checkpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}
