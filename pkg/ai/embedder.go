package ai

import "context"

// Embedder provides embeddings for text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder optionally supports embedding multiple texts at once.
// Ingestion prefers it over per-chunk calls.
type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
