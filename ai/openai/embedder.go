package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docseek/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrEmptyInput is returned for texts with nothing left to embed after scrubbing.
	ErrEmptyInput = errors.New("no embeddable text")

	// ErrShortResponse is returned when the service sends back fewer vectors
	// than texts.
	ErrShortResponse = errors.New("embedding response is missing vectors")
)

// Embedder embeds text through langchaingo's OpenAI client.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local servers ignore the token but the client requires one.
	token := config.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder returns a standalone embedder for config, without a provider.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds one scrubbed text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts scrubs every text and embeds them in one request. A text that
// scrubs to nothing fails the batch before any request is made.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	total := 0
	for i, text := range texts {
		inputs[i] = scrubText(text)
		if inputs[i] == "" {
			return nil, ErrEmptyInput
		}
		total += len(inputs[i])
	}
	e.logger.Debug("requesting embeddings", "count", len(inputs), "bytes", total)

	vectors, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		e.logger.Error("embedding request failed", "count", len(inputs), "err", err)
		return nil, err
	}
	if len(vectors) < len(inputs) {
		e.logger.Warn("embedding response too short", "want", len(inputs), "got", len(vectors))
		return nil, ErrShortResponse
	}
	return vectors, nil
}
